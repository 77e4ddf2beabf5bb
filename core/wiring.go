package core

import (
	"github.com/redline-embedded/pmucore/canbus"
	"github.com/redline-embedded/pmucore/configstore"
	"github.com/redline-embedded/pmucore/protocol"
	"github.com/redline-embedded/pmucore/scheduler"
	"github.com/redline-embedded/pmucore/supervisor"
)

// ApplyTypedConfig pushes Stored Configuration's protection thresholds
// onto every power output and H-bridge, per spec.md §4.6's contract
// that typed config is read at boot and applied before the control
// loop starts taking commands.
func (c *Core) ApplyTypedConfig(cfg configstore.TypedConfig) {
	t := supervisor.Thresholds{
		CurrentLimitMA:    cfg.Protection.CurrentLimitMA,
		ThermalShutdownC:  cfg.Protection.ThermalShutdownC,
		DebounceMs:        int64(cfg.Protection.DebounceMs),
		StallThresholdMA:  cfg.Protection.StallThresholdMA,
		StallTimeMs:       int64(cfg.Protection.StallTimeMs),
		FaultLockoutCount: int(cfg.Protection.FaultLockoutCount),
		ParkTolerance:     supervisor.DefaultThresholds().ParkTolerance,
		ParkTimeoutMs:     supervisor.DefaultThresholds().ParkTimeoutMs,
	}
	for i := 0; i < supervisor.NumPowerOutputs; i++ {
		_ = c.Supervisor.SetThresholds(i, t)
	}
	for i := 0; i < supervisor.NumHBridges; i++ {
		_ = c.Supervisor.SetBridgeThresholds(i, t)
	}
}

// BuildCANStream wires a canbus.Stream from Stored Configuration's CAN
// settings, or returns nil if the stream is disabled. Analog inputs,
// output states and faults, and bridge status come from the registry
// and supervisor Core already owns; digital inputs, battery voltage,
// total current and both temperatures are always sent as 0.
func (c *Core) BuildCANStream(tx canbus.Transmitter, cfg configstore.CANSettings, inputChannelIDs []uint16) *canbus.Stream {
	if !cfg.Enabled {
		return nil
	}
	src := canbus.Sources{
		AnalogInput: func(i int) uint16 {
			if i >= len(inputChannelIDs) {
				return 0
			}
			return uint16(c.Registry.GetValue(inputChannelIDs[i]))
		},
		DigitalInputs: func() uint8 { return 0 },
		OutputStates: func() uint32 {
			var mask uint32
			for i := 0; i < supervisor.NumPowerOutputs; i++ {
				snap, err := c.Supervisor.Snapshot(i)
				if err == nil && (snap.State == supervisor.PowerOn || snap.State == supervisor.PowerPWM) {
					mask |= 1 << uint(i)
				}
			}
			return mask
		},
		OutputFaultFlags: func() uint8 {
			var flags uint8
			for i := 0; i < supervisor.NumPowerOutputs; i++ {
				snap, err := c.Supervisor.Snapshot(i)
				if err == nil {
					flags |= snap.FaultFlags
				}
			}
			return flags
		},
		BatteryMilliVolts: func() uint16 { return 0 },
		TotalMilliAmps:    func() uint16 { return 0 },
		MCUTempC:          func() int16 { return 0 },
		BoardTempC:        func() int16 { return 0 },
		BridgeStatus: func(b int) (uint8, uint8) {
			snap, err := c.Supervisor.BridgeSnapshot(b)
			if err != nil {
				return 0, 0
			}
			return uint8(snap.Mode), uint8(snap.Duty / 4) // scale 0..1000 into a byte
		},
	}
	specs := canbus.DefaultFrameSpecs(src, float64(cfg.InputRateHz), float64(cfg.StatusRateHz))
	return canbus.New(tx, cfg.BaseID, specs)
}

// BuildDispatcher assembles the protocol.Dispatcher with the standard
// route table bound to this Core's registry/engine/supervisor, per
// spec.md §4.5 and §6.
func (c *Core) BuildDispatcher(write func([]byte) error, inputIDs []uint16) *protocol.Dispatcher {
	d := protocol.NewDispatcher()
	d.Write = write

	d.Handle(protocol.CmdPing, protocol.PingHandler)
	d.Handle(protocol.CmdGetVersion, protocol.VersionHandler)
	d.Handle(protocol.CmdGetSerial, protocol.SerialHandler)
	powerCmd := &powerCommander{reg: c.Registry, sup: c.Supervisor}
	bridgeCmd := &bridgeCommander{reg: c.Registry, sup: c.Supervisor}
	d.Handle(protocol.CmdSetOutput, protocol.SetOutputHandler(powerCmd))
	d.Handle(protocol.CmdSetPWM, protocol.SetPWMHandler(powerCmd))
	d.Handle(protocol.CmdSetHBridge, protocol.SetHBridgeHandler(bridgeCmd))
	d.Handle(protocol.CmdGetOutputs, protocol.GetOutputsHandler(c.Supervisor))
	d.Handle(protocol.CmdGetInputs, protocol.GetInputsHandler(c.Registry, inputIDs))

	c.Dispatcher = d
	return d
}

// BuildScheduler wires the five fixed-period tasks to this Core and
// returns a ready-to-Start scheduler.Scheduler.
func (c *Core) BuildScheduler(hooks Hooks, onReset func(reason string)) *scheduler.Scheduler {
	if onReset == nil {
		onReset = c.NoteWatchdogReset
	}
	return scheduler.New(
		c.ControlTick(hooks),
		c.ProtectionTick(),
		c.CANTick(),
		c.LoggingTick(hooks),
		c.UITick(hooks),
		onReset,
	)
}
