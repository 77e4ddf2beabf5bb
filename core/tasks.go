package core

import (
	"sync/atomic"

	"github.com/redline-embedded/pmucore/supervisor"
)

// SampleInputs is the hook that reads physical inputs (ADC, digital
// pins, CAN-mirrored values) into the registry before the control
// tick runs. It stands in for spec.md §4.4's `adc.sample()`; the
// actual peripheral access is outside this repo's scope (see
// spec.md's "vendor SPI flash command sequences" Non-goal and its
// general "model hardware as an opaque driver interface" stance).
type SampleInputs func(nowMs int64)

// LogSample maps the current registry/supervisor state into the fixed
// set of values one datalogger.Logger.Append call records.
type LogSample func(nowMs int64) (timestampMs uint32, values []int32)

// UIHook drives LEDs/buzzer/button debounce once per UI tick.
type UIHook func(nowMs int64)

// Hooks bundles every external-collaborator callback Core's tasks
// invoke. All fields are optional; a nil hook is simply skipped.
type Hooks struct {
	SampleInputs SampleInputs
	LogSample    LogSample
	UI           UIHook
}

// ControlTick implements spec.md §4.4's Control task body:
// `adc.sample(); channels.tick(); if (i++ % 2 == 0) logic.execute();
// supervisor.tick_1khz(); protocol.pump();` — everything except the
// final `watchdog.refresh()`, which scheduler.Scheduler applies itself
// only after this function returns without panicking.
func (c *Core) ControlTick(hooks Hooks) func(nowMs int64) {
	var tickCount int64
	return func(nowMs int64) {
		atomic.StoreInt64(&c.currentMs, nowMs)

		if hooks.SampleInputs != nil {
			hooks.SampleInputs(nowMs)
		}

		c.Registry.Tick(c)

		if tickCount%2 == 0 {
			c.Engine.Execute(c.Registry, c.Supervisor, nowMs)
		}
		tickCount++

		c.Supervisor.Tick1kHz(nowMs)

		if c.Dispatcher != nil {
			_ = c.Dispatcher.Pump(nowMs)
		}
	}
}

// ProtectionTick implements the Protection task: it runs independently
// of Control (spec.md §4.4 "Protection runs concurrently with control
// and observes its own sampled copy"), here reusing the same
// Supervisor state but computing and publishing a system-wide rollup
// rather than driving outputs, which remains Control's sole job.
func (c *Core) ProtectionTick() func(nowMs int64) {
	return func(nowMs int64) {
		worst := ProtectionNormal
		for i := 0; i < supervisor.NumPowerOutputs; i++ {
			snap, err := c.Supervisor.Snapshot(i)
			if err != nil {
				continue
			}
			if snap.FaultFlags != 0 {
				if worst < ProtectionDegraded {
					worst = ProtectionDegraded
				}
				if snap.State == supervisor.PowerFault {
					worst = ProtectionCritical
				}
			}
		}
		c.SetProtectionStatus(worst)
	}
}

// CANTick implements the CAN task: transmit periodic frames, drain RX.
// RX draining is handled by canbus.RXHandler running on the bus
// library's own goroutine (outside this scheduled task, matching
// spec.md §5's interrupt-handler model for CAN RX); this tick only
// paces the outbound frames.
func (c *Core) CANTick() func(nowMs int64) {
	return func(nowMs int64) {
		if c.CAN == nil {
			return
		}
		_ = c.CAN.Pump(nowMs)
	}
}

// LoggingTick implements the Logging task: sample -> buffer -> block
// storage, via LogSample and the already-open datalogger.Logger.
func (c *Core) LoggingTick(hooks Hooks) func(nowMs int64) {
	return func(nowMs int64) {
		if c.DataLogger == nil || hooks.LogSample == nil {
			return
		}
		ts, values := hooks.LogSample(nowMs)
		_ = c.DataLogger.Append(ts, values)
	}
}

// UITick implements the UI task.
func (c *Core) UITick(hooks Hooks) func(nowMs int64) {
	return func(nowMs int64) {
		if hooks.UI != nil {
			hooks.UI(nowMs)
		}
	}
}
