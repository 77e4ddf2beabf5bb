package supervisor

import "github.com/redline-embedded/pmucore/util"

// SetState commands a power output fully on or off. Rejected if the
// output is locked out pending an explicit fault clear.
func (s *Supervisor) SetState(output int, on bool) error {
	if output < 0 || output >= NumPowerOutputs {
		return ErrOutputIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &s.outputs[output]
	if o.lockedOut {
		return ErrLockedOut
	}
	if on {
		o.State = PowerOn
		o.CommandedDuty = 1000
	} else {
		o.State = PowerOff
		o.CommandedDuty = 0
	}
	return nil
}

// SetPWM commands a power output to a duty cycle in [0,1000] per mille.
// A duty of 0 is equivalent to off; 1000 is equivalent to on.
func (s *Supervisor) SetPWM(output int, dutyPerMille int) error {
	if output < 0 || output >= NumPowerOutputs {
		return ErrOutputIndex
	}
	if dutyPerMille < 0 || dutyPerMille > 1000 {
		return ErrInvalidDuty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &s.outputs[output]
	if o.lockedOut {
		return ErrLockedOut
	}
	o.CommandedDuty = dutyPerMille
	switch {
	case dutyPerMille == 0:
		o.State = PowerOff
	case dutyPerMille == 1000:
		o.State = PowerOn
	default:
		o.State = PowerPWM
	}
	return nil
}

// GetCurrent returns the last-filtered current measurement in mA.
func (s *Supervisor) GetCurrent(output int) (int32, error) {
	if output < 0 || output >= NumPowerOutputs {
		return 0, ErrOutputIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int32(s.outputs[output].filteredCurrentMA), nil
}

// GetTemperature returns the last temperature measurement in Celsius.
func (s *Supervisor) GetTemperature(output int) (int32, error) {
	if output < 0 || output >= NumPowerOutputs {
		return 0, ErrOutputIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[output].MeasuredTempC, nil
}

// ClearFaults resets one power output's fault state and lockout,
// returning it to off. Clearing is always manual per spec.md §4.3.
func (s *Supervisor) ClearFaults(output int) error {
	if output < 0 || output >= NumPowerOutputs {
		return ErrOutputIndex
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &s.outputs[output]
	o.FaultFlags = 0
	o.FaultCount = 0
	o.lockedOut = false
	o.overLimitActive = false
	o.State = PowerOff
	o.CommandedDuty = 0
	return nil
}

func (s *Supervisor) fault(o *PowerOutput, bit byte, lockoutCount int, nowMs int64) {
	o.FaultFlags |= bit
	o.FaultCount++
	o.LastFaultMs = nowMs
	o.State = PowerFault
	o.CommandedDuty = 0
	if o.FaultCount >= lockoutCount {
		o.lockedOut = true
	}
}

// hasFault reports whether bit is set in flags, using the same bit
// convention channel.Flags and protocol fault words share.
func hasFault(flags, bit byte) bool {
	return util.GetBit(flags, uint(trailingZeros(bit)))
}

func trailingZeros(mask byte) uint {
	idx := uint(0)
	for mask > 1 {
		mask >>= 1
		idx++
	}
	return idx
}

// tickPowerOutput runs the 1 kHz current filter and protection checks
// for one output (spec.md §4.3 algorithms 1, 3, 4).
func (s *Supervisor) tickPowerOutput(i int, nowMs int64) {
	o := &s.outputs[i]
	lim := s.limits[i]

	if s.powerDrv != nil {
		if cur, err := s.powerDrv.ReadCurrentMA(i); err == nil {
			o.MeasuredCurrentMA = cur
		}
		if temp, err := s.powerDrv.ReadTempC(i); err == nil {
			o.MeasuredTempC = temp
		}
	}

	// EMA current filter, weight 1/4 new (spec.md §4.3 algorithm 1).
	o.filteredCurrentMA = o.filteredCurrentMA*0.75 + float64(o.MeasuredCurrentMA)*0.25

	if o.State == PowerFault {
		s.driveOutput(i, false, 0)
		return
	}

	if o.filteredCurrentMA > float64(lim.CurrentLimitMA) {
		if !o.overLimitActive {
			o.overLimitActive = true
			o.overLimitSinceMs = nowMs
		} else if nowMs-o.overLimitSinceMs >= lim.DebounceMs {
			s.fault(o, FaultOvercurrent, lim.FaultLockoutCount, nowMs)
			s.driveOutput(i, false, 0)
			return
		}
	} else {
		o.overLimitActive = false
	}

	if o.MeasuredTempC >= lim.ThermalShutdownC {
		s.fault(o, FaultThermal, lim.FaultLockoutCount, nowMs)
		s.driveOutput(i, false, 0)
		return
	}

	on := o.State == PowerOn || o.State == PowerPWM
	s.driveOutput(i, on, o.CommandedDuty)
}

func (s *Supervisor) driveOutput(i int, on bool, duty int) {
	if s.powerDrv == nil {
		return
	}
	_ = s.powerDrv.Drive(i, on, duty)
}
