package core

import (
	"github.com/redline-embedded/pmucore/channel"
	"github.com/redline-embedded/pmucore/supervisor"
)

// powerOutputDriver is the channel.OutputDriver backing
// channel.ClassPowerOutput: a channel-level SetValue in [0,1000]
// (per-mille duty, 0 meaning off) reaches the same SetState/SetPWM
// calls a direct SET_OUTPUT/SET_PWM command would make.
type powerOutputDriver struct {
	sup *supervisor.Supervisor
}

func (d powerOutputDriver) Drive(physicalIndex int, value int32) error {
	if value <= 0 {
		return d.sup.SetState(physicalIndex, false)
	}
	duty := int(value)
	if duty > 1000 {
		duty = 1000
	}
	return d.sup.SetPWM(physicalIndex, duty)
}

// hbridgeOutputDriver is the channel.OutputDriver backing
// channel.ClassHBridgeOutput: value's sign selects direction, its
// magnitude the duty, mirroring logic.Engine's OutputSink convention
// for DestHBridge (logic/engine.go).
type hbridgeOutputDriver struct {
	sup *supervisor.Supervisor
}

func (d hbridgeOutputDriver) Drive(physicalIndex int, value int32) error {
	if value == 0 {
		return d.sup.HbridgeSetMode(physicalIndex, supervisor.ModeCoast, 0)
	}
	mode := supervisor.ModeForward
	if value < 0 {
		mode = supervisor.ModeReverse
		value = -value
	}
	duty := int(value)
	if duty > 1000 {
		duty = 1000
	}
	return d.sup.HbridgeSetMode(physicalIndex, mode, duty)
}

// bindOutputDrivers installs the drivers giving channel-level SetValue
// calls somewhere real to land, per spec.md §4.1's dispatch-by-class
// contract: power outputs and H-bridges both reach the same Supervisor
// a direct protocol command would.
func bindOutputDrivers(reg *channel.Registry, sup *supervisor.Supervisor) {
	reg.BindOutput(channel.ClassPowerOutput, powerOutputDriver{sup: sup})
	reg.BindOutput(channel.ClassHBridgeOutput, hbridgeOutputDriver{sup: sup})
}

// powerCommander routes a SET_OUTPUT/SET_PWM command through the
// channel registry instead of the supervisor directly, so an incoming
// wire command exercises the same BindOutput dispatch a channel-level
// write would. physicalIndex falls back to commanding the supervisor
// directly when no channel is registered for that slot — the wire
// protocol addresses physical outputs whether or not a channel table
// describes them.
type powerCommander struct {
	reg *channel.Registry
	sup *supervisor.Supervisor
}

func (c *powerCommander) SetState(output int, on bool) error {
	id, ok := c.reg.LookupPhysical(channel.ClassPowerOutput, output)
	if !ok {
		return c.sup.SetState(output, on)
	}
	v := int32(0)
	if on {
		v = 1000
	}
	if outcome := c.reg.SetValue(id, v); outcome != channel.OK {
		return outcome
	}
	return nil
}

func (c *powerCommander) SetPWM(output int, dutyPerMille int) error {
	id, ok := c.reg.LookupPhysical(channel.ClassPowerOutput, output)
	if !ok {
		return c.sup.SetPWM(output, dutyPerMille)
	}
	if outcome := c.reg.SetValue(id, int32(dutyPerMille)); outcome != channel.OK {
		return outcome
	}
	return nil
}

// bridgeCommander is powerCommander's counterpart for SET_HBRIDGE.
type bridgeCommander struct {
	reg *channel.Registry
	sup *supervisor.Supervisor
}

func (c *bridgeCommander) HbridgeSetMode(bridge int, mode supervisor.HBridgeMode, duty int) error {
	id, ok := c.reg.LookupPhysical(channel.ClassHBridgeOutput, bridge)
	if !ok {
		return c.sup.HbridgeSetMode(bridge, mode, duty)
	}
	v := int32(duty)
	if mode == supervisor.ModeReverse {
		v = -v
	} else if mode == supervisor.ModeCoast {
		v = 0
	}
	if outcome := c.reg.SetValue(id, v); outcome != channel.OK {
		return outcome
	}
	return nil
}

func (c *bridgeCommander) HbridgeSetPosition(bridge int, target int) error {
	// Wiper-park targets a position, not a duty; it has no channel-level
	// representation, so it always commands the supervisor directly.
	return c.sup.HbridgeSetPosition(bridge, target)
}
