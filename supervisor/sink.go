package supervisor

import "github.com/redline-embedded/pmucore/logic"

// SetPowerOutput implements logic.OutputSink, letting the logic engine
// drive a power output the same way an explicit SET_OUTPUT/SET_PWM
// command would, including fault-lockout rejection.
func (s *Supervisor) SetPowerOutput(index int, on bool, dutyPerMille int) {
	if on {
		_ = s.SetPWM(index, dutyPerMille)
		return
	}
	_ = s.SetState(index, false)
}

// SetHBridge implements logic.OutputSink for H-bridge destinations.
func (s *Supervisor) SetHBridge(index int, dir logic.HBridgeDirection, dutyPerMille int, coast bool) {
	if coast {
		_ = s.HbridgeSetMode(index, ModeCoast, 0)
		return
	}
	mode := ModeForward
	if dir == logic.DirReverse {
		mode = ModeReverse
	}
	_ = s.HbridgeSetMode(index, mode, dutyPerMille)
}
