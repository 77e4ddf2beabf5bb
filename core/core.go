// Package core is the wiring record: it owns the channel registry,
// logic engine, and output supervisor, implements
// channel.SystemRefresher to connect them, and drives the five
// scheduler tasks of spec.md §4.4.
package core

import (
	"sync/atomic"

	"github.com/redline-embedded/pmucore/bootloader"
	"github.com/redline-embedded/pmucore/canbus"
	"github.com/redline-embedded/pmucore/channel"
	"github.com/redline-embedded/pmucore/datalogger"
	"github.com/redline-embedded/pmucore/logic"
	"github.com/redline-embedded/pmucore/protocol"
	"github.com/redline-embedded/pmucore/supervisor"
)

// System input channel ids. These are a small, fixed set of
// housekeeping values in the reserved system band (channel.IDSystemMin
// .. channel.IDSystemMax); spec.md §3 names the system_input class but
// leaves its concrete channel assignments to the implementer.
const (
	ChanUptimeMs           uint16 = 0
	ChanWatchdogResetCount uint16 = 1
	ChanBootReason         uint16 = 2
	ChanAppBootCount       uint16 = 3
	ChanProtectionStatus   uint16 = 4
)

// ProtectionStatus is a coarse system-wide health code mirrored into
// ChanProtectionStatus and the telemetry DATA payload.
type ProtectionStatus int32

const (
	ProtectionNormal ProtectionStatus = iota
	ProtectionDegraded
	ProtectionCritical
)

// Core bundles the C1-C3 runtime objects and the scheduling glue that
// connects them, per spec.md §4.4's "refresh -> channel update ->
// logic execute -> supervisor write" ordering guarantee.
type Core struct {
	Registry   *channel.Registry
	Engine     *logic.Engine
	Supervisor *supervisor.Supervisor

	Dispatcher  *protocol.Dispatcher
	CAN         *canbus.Stream
	DataLogger  *datalogger.Logger
	Bootloader  *bootloader.Bootloader

	startMs        int64
	currentMs      int64 // atomic, set by ControlTick each tick
	watchdogResets int64
	bootReason     bootloader.BootReason
	appBootCount   uint32

	protectionStatus int32 // atomic, ProtectionStatus
}

// New wires a Core around an already-registered channel set. Supervisor
// thresholds are applied separately by ApplyTypedConfig once Stored
// Configuration is read; Engine Destination/SourceBinding entries are
// bound by the caller through Engine.BindDestination/BindSource and are
// not loaded from Stored Configuration.
func New(reg *channel.Registry, eng *logic.Engine, sup *supervisor.Supervisor, startMs int64) *Core {
	bindOutputDrivers(reg, sup)
	return &Core{
		Registry:   reg,
		Engine:     eng,
		Supervisor: sup,
		startMs:    startMs,
	}
}

// SetBootInfo records the outcome of the bootloader's RunSequence so
// RefreshSystemInputs can mirror it into the channel registry.
func (c *Core) SetBootInfo(res bootloader.RunResult) {
	c.bootReason = res.Reason
	c.appBootCount = res.AppBootCount
}

// NoteWatchdogReset is the onReset callback BuildScheduler hands to
// scheduler.New when its caller passes none, so a
// tripped watchdog is visible to telemetry and logic after the next
// boot mirrors shared state; it also increments an in-RAM counter
// usable before reset actually occurs in a host simulation.
func (c *Core) NoteWatchdogReset(reason string) {
	atomic.AddInt64(&c.watchdogResets, 1)
}

// SetProtectionStatus is called by the protection task once per tick
// after it evaluates diagnostic inputs independently of the control
// task (spec.md §4.4: "protection runs concurrently with control").
func (c *Core) SetProtectionStatus(status ProtectionStatus) {
	atomic.StoreInt32(&c.protectionStatus, int32(status))
}

// RefreshSystemInputs implements channel.SystemRefresher.
func (c *Core) RefreshSystemInputs(r *channel.Registry) {
	nowMs := atomic.LoadInt64(&c.currentMs)
	r.UpdateValue(ChanUptimeMs, int32(nowMs-c.startMs))
	r.UpdateValue(ChanWatchdogResetCount, int32(atomic.LoadInt64(&c.watchdogResets)))
	r.UpdateValue(ChanBootReason, int32(c.bootReason))
	r.UpdateValue(ChanAppBootCount, int32(c.appBootCount))
	r.UpdateValue(ChanProtectionStatus, atomic.LoadInt32(&c.protectionStatus))
}

// RefreshOutputMirrors implements channel.SystemRefresher: every
// registered power/H-bridge output channel is updated from the
// supervisor's own state so the logic engine and telemetry see a
// single source of truth for "is this output currently on."
func (c *Core) RefreshOutputMirrors(r *channel.Registry) {
	for _, ch := range r.All() {
		switch ch.Class {
		case channel.ClassPowerOutput:
			snap, err := c.Supervisor.Snapshot(ch.PhysicalIndex)
			if err != nil {
				continue
			}
			v := int32(0)
			if snap.State == supervisor.PowerOn || snap.State == supervisor.PowerPWM {
				v = 1
			}
			r.UpdateValue(ch.ID, v)
		case channel.ClassHBridgeOutput:
			snap, err := c.Supervisor.BridgeSnapshot(ch.PhysicalIndex)
			if err != nil {
				continue
			}
			r.UpdateValue(ch.ID, int32(snap.Mode))
		}
	}
}
