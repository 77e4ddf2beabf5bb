package supervisor

import (
	"github.com/redline-embedded/pmucore/mathx"
	"github.com/redline-embedded/pmucore/util"
)

// HbridgeSetMode commands an H-bridge into coast/forward/reverse/brake.
// PID and wiper_park are entered via HbridgeSetPID/HbridgeSetPosition
// respectively, which imply the mode.
func (s *Supervisor) HbridgeSetMode(bridge int, mode HBridgeMode, duty int) error {
	if bridge < 0 || bridge >= NumHBridges {
		return ErrBridgeIndex
	}
	if duty < 0 || duty > 1000 {
		return ErrInvalidDuty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &s.bridges[bridge]
	if b.lockedOut {
		return ErrLockedOut
	}
	b.Mode = mode
	b.Duty = duty
	b.State = BridgeRunning
	if mode == ModeCoast {
		b.State = BridgeIdle
	}
	b.runStartMs = 0
	b.RunTimeMs = 0
	return nil
}

// HbridgeSetPosition arms wiper_park mode toward target (0..1000).
func (s *Supervisor) HbridgeSetPosition(bridge int, target int) error {
	if bridge < 0 || bridge >= NumHBridges {
		return ErrBridgeIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &s.bridges[bridge]
	if b.lockedOut {
		return ErrLockedOut
	}
	b.Mode = ModeWiperPark
	b.TargetPosition = int(util.Clamp(float64(target), 0, 1000))
	b.State = BridgeRunning
	b.runStartMs = 0
	b.RunTimeMs = 0
	return nil
}

// HbridgeSetPID configures the PID gains and arms pid mode, targeting
// the current TargetPosition (set via HbridgeSetPosition beforehand or
// concurrently).
func (s *Supervisor) HbridgeSetPID(bridge int, kp, ki, kd float64) error {
	if bridge < 0 || bridge >= NumHBridges {
		return ErrBridgeIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &s.bridges[bridge]
	if b.lockedOut {
		return ErrLockedOut
	}
	b.PID.Kp, b.PID.Ki, b.PID.Kd = kp, ki, kd
	if b.PID.OutputMin == 0 && b.PID.OutputMax == 0 {
		b.PID.OutputMin, b.PID.OutputMax = -1000, 1000
	}
	b.Mode = ModePID
	b.State = BridgeRunning
	b.PID.Integral = 0
	b.PID.PrevError = 0
	return nil
}

// HbridgeClearFaults resets fault state and lockout, returning the
// bridge to idle/coast.
func (s *Supervisor) HbridgeClearFaults(bridge int) error {
	if bridge < 0 || bridge >= NumHBridges {
		return ErrBridgeIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &s.bridges[bridge]
	b.FaultFlags = 0
	b.FaultCount = 0
	b.lockedOut = false
	b.Mode = ModeCoast
	b.State = BridgeIdle
	b.Duty = 0
	b.RunTimeMs = 0
	return nil
}

func (s *Supervisor) bridgeFault(b *HBridge, bit byte, lockoutCount int) {
	b.FaultFlags |= bit
	b.FaultCount++
	b.State = BridgeFault
	b.Mode = ModeCoast
	b.Duty = 0
	if b.FaultCount >= lockoutCount {
		b.lockedOut = true
	}
}

// tickHBridge runs the 1 kHz current filter, stall/overcurrent
// detection, and either the 100 Hz PID loop (every 10th tick) or the
// wiper-park state machine (every tick) for one bridge (spec.md §4.3 algorithms
// 1-2, 3, 5-6).
func (s *Supervisor) tickHBridge(i int, nowMs int64, runPID bool) {
	b := &s.bridges[i]
	lim := s.blimits[i]

	if s.bridgeDrv != nil {
		if cur, err := s.bridgeDrv.ReadCurrentMA(i); err == nil {
			b.MeasuredCurrentMA = cur
		}
	}
	b.filteredCurrentMA = b.filteredCurrentMA*0.75 + float64(b.MeasuredCurrentMA)*0.25

	if b.State == BridgeFault {
		s.driveBridge(i, true, 0, true, false)
		return
	}

	if b.State == BridgeRunning || b.State == BridgeParking {
		b.RunTimeMs += 1
	}

	if b.Duty > 500 && b.filteredCurrentMA > float64(lim.StallThresholdMA) && b.RunTimeMs > lim.StallTimeMs {
		s.bridgeFault(b, FaultStall, lim.FaultLockoutCount)
		s.driveBridge(i, true, 0, true, false)
		return
	}
	if b.filteredCurrentMA > float64(lim.CurrentLimitMA) {
		bit := FaultOvercurrentFwd
		if b.Mode == ModeReverse {
			bit = FaultOvercurrentRev
		}
		s.bridgeFault(b, bit, lim.FaultLockoutCount)
		s.driveBridge(i, true, 0, true, false)
		return
	}

	switch b.Mode {
	case ModeCoast:
		s.driveBridge(i, true, 0, false, false)
	case ModeForward:
		s.driveBridge(i, true, b.Duty, false, false)
	case ModeReverse:
		s.driveBridge(i, false, b.Duty, false, false)
	case ModeBrake:
		s.driveBridge(i, true, 0, false, true)
	case ModeWiperPark:
		s.tickWiperPark(b, lim)
		forward := b.TargetPosition >= b.Position
		if b.State == BridgeParked {
			s.driveBridge(i, true, 0, false, true)
		} else {
			s.driveBridge(i, forward, b.Duty, false, false)
		}
	case ModePID:
		if runPID {
			s.tickPID(b)
		}
		forward := b.PID.PrevError >= 0
		s.driveBridge(i, forward, b.Duty, false, false)
	}
}

func (s *Supervisor) tickWiperPark(b *HBridge, lim Thresholds) {
	b.Duty = 600
	err := b.TargetPosition - b.Position
	if absInt(err) < lim.ParkTolerance {
		b.State = BridgeParked
		b.Duty = 0
		return
	}
	if b.RunTimeMs > lim.ParkTimeoutMs {
		b.FaultFlags |= FaultPositionLost
		b.FaultCount++
		b.State = BridgeFault
		b.Mode = ModeCoast
		return
	}
	b.State = BridgeParking
}

// tickPID runs one 100 Hz PID update (spec.md §4.3 algorithm 5),
// clamping to the configured output range and undoing the last
// integral increment on saturation (anti-windup).
func (s *Supervisor) tickPID(b *HBridge) {
	const dt = 0.01 // 100 Hz
	errVal := float64(b.TargetPosition - b.Position)
	prevIntegral := b.PID.Integral
	b.PID.Integral += errVal * dt
	d := (errVal - b.PID.PrevError) / dt
	out := b.PID.Kp*errVal + b.PID.Ki*b.PID.Integral + b.PID.Kd*d

	clamped := util.Clamp(out, b.PID.OutputMin, b.PID.OutputMax)
	if clamped != out {
		b.PID.Integral = prevIntegral
	}
	b.PID.PrevError = errVal
	b.Duty = int(mathx.Round(util.Clamp(absFloat(clamped), 0, 1000), 1))
}

func (s *Supervisor) driveBridge(i int, forward bool, duty int, coast, brake bool) {
	if s.bridgeDrv == nil {
		return
	}
	_ = s.bridgeDrv.Drive(i, forward, duty, coast, brake)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

