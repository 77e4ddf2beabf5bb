package logic

import (
	"sync"

	"github.com/redline-embedded/pmucore/channel"
)

type timerState struct {
	startMs   int64
	durationMs int64
	active    bool
	expired   bool
}

type counterState struct {
	count     int64
	threshold int64
}

// hysteresisKey identifies one operation instance for latch storage.
type hysteresisKey struct {
	fn int
	op int
}

// Engine is the runtime state of the logic engine: installed
// functions, the vchannel array, timer/counter pools, and the
// source/destination bindings that connect it to the channel registry
// and the output supervisor.
type Engine struct {
	mu sync.Mutex

	functions [KFunctions]Function

	vchan     [KVChan]float64
	prevVChan [KVChan]float64
	updated   [KVChan]bool

	prevChannel    map[uint16]float64
	pendingChannel map[uint16]float64

	timers   [TMax]timerState
	counters [CMax]counterState

	hysteresis map[hysteresisKey]bool

	sources      []SourceBinding
	destinations []Destination

	opsThisTick int
}

// NewEngine returns an Engine with all functions disabled and all
// vchannels zeroed.
func NewEngine() *Engine {
	return &Engine{
		prevChannel:    make(map[uint16]float64),
		pendingChannel: make(map[uint16]float64),
		hysteresis:     make(map[hysteresisKey]bool),
	}
}

// Install replaces one of the KFunctions slots. Out-of-range indices
// and over-long operation lists are rejected at install time, per
// spec.md §4.2 "Configuration-time errors are surfaced at install time".
func (e *Engine) Install(functionIndex int, fn Function) error {
	if functionIndex < 0 || functionIndex >= KFunctions {
		return ErrFunctionIndex
	}
	if len(fn.Operations) > KOpsPerFn {
		return ErrTooManyOps
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions[functionIndex] = fn
	return nil
}

// Enable toggles a function without touching its operations.
func (e *Engine) Enable(functionIndex int, enabled bool) error {
	if functionIndex < 0 || functionIndex >= KFunctions {
		return ErrFunctionIndex
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions[functionIndex].Enabled = enabled
	return nil
}

// StartTimer (re)arms a single-shot timer against nowMs. Single-shot:
// a subsequent StartTimer call rearms it from scratch.
func (e *Engine) StartTimer(index int, durationMs int64, nowMs int64) error {
	if index < 0 || index >= TMax {
		return ErrTimerIndex
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timers[index] = timerState{startMs: nowMs, durationMs: durationMs, active: true}
	return nil
}

// TimerExpired reports whether the given timer has expired. An
// out-of-range index reads as not expired rather than panicking.
func (e *Engine) TimerExpired(index int) bool {
	if index < 0 || index >= TMax {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timers[index].expired
}

func (e *Engine) advanceTimers(nowMs int64) {
	for i := range e.timers {
		t := &e.timers[i]
		if t.active && nowMs-t.startMs >= t.durationMs {
			t.expired = true
			t.active = false
		}
	}
}

// IncrementCounter, CounterValue and ResetCounter expose the C_MAX
// counter pool named in spec.md §3. No op_kind in §3's table drives a
// counter directly; these exist for the scripting/command surface
// (EXECUTE and friends) to manipulate addressable counter state.
func (e *Engine) IncrementCounter(index int) error {
	if index < 0 || index >= CMax {
		return ErrCounterIndex
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[index].count++
	return nil
}

// CounterValue returns the current count, or 0 for an out-of-range index.
func (e *Engine) CounterValue(index int) int64 {
	if index < 0 || index >= CMax {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters[index].count
}

// ResetCounter zeroes a counter's count.
func (e *Engine) ResetCounter(index int) error {
	if index < 0 || index >= CMax {
		return ErrCounterIndex
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters[index].count = 0
	return nil
}

// GetVChannel reads a vchannel. Out-of-range reads as 0.
func (e *Engine) GetVChannel(index int) float64 {
	if index < 0 || index >= KVChan {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vchan[index]
}

// SetVChannel writes a vchannel directly (e.g. from the command
// protocol or a script). Out-of-range writes are silently dropped.
func (e *Engine) SetVChannel(index int, v float64) {
	if index < 0 || index >= KVChan {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vchan[index] = v
	e.updated[index] = true
}

// BindSource registers a refresh-phase binding: every tick, vchan[vc]
// is set to channel(id)'s current value times scale.
func (e *Engine) BindSource(vchan int, channelID uint16, scale float64) error {
	if vchan < 0 || vchan >= KVChan {
		return ErrVChanIndex
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources = append(e.sources, SourceBinding{VChan: vchan, ChannelID: channelID, Scale: scale})
	return nil
}

// BindDestination registers an apply-phase destination for a vchannel.
func (e *Engine) BindDestination(d Destination) error {
	if d.VChan < 0 || d.VChan >= KVChan {
		return ErrDestVChanIndex
	}
	if d.Index < 0 {
		return ErrDestOutputIndex
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destinations = append(e.destinations, d)
	return nil
}

// Execute runs one tick: refresh, advance timers, compute all enabled
// functions in order, apply virtual outputs, and snapshot prev-values.
// nowMs is a monotonically increasing millisecond counter supplied by
// the scheduler (spec.md §4.2's "now"). sink may be nil, in which case
// the apply phase is skipped but the rest of the tick still runs.
func (e *Engine) Execute(reg *channel.Registry, sink OutputSink, nowMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refreshSources(reg)
	e.advanceTimers(nowMs)
	e.runFunctions(reg)
	if sink != nil {
		e.applyDestinations(sink)
	}
	e.snapshot()
}

func (e *Engine) refreshSources(reg *channel.Registry) {
	for _, sb := range e.sources {
		v := reg.GetValue(sb.ChannelID)
		e.vchan[sb.VChan] = float64(v) * sb.Scale
	}
}

func (e *Engine) runFunctions(reg *channel.Registry) {
	e.opsThisTick = 0
	for fnIdx := range e.functions {
		fn := &e.functions[fnIdx]
		if !fn.Enabled {
			continue
		}
		for opIdx := range fn.Operations {
			if e.opsThisTick >= OpCap {
				return
			}
			e.opsThisTick++
			op := fn.Operations[opIdx]
			result := e.evaluate(reg, fnIdx, opIdx, op)
			if op.Output >= 0 && op.Output < KVChan {
				e.vchan[op.Output] = result
				e.updated[op.Output] = true
			}
		}
	}
}

func (e *Engine) applyDestinations(sink OutputSink) {
	for _, d := range e.destinations {
		if !e.updated[d.VChan] {
			continue
		}
		v := e.vchan[d.VChan]
		switch d.Kind {
		case DestPowerOutput:
			duty := permille(v)
			on := duty >= 500
			sink.SetPowerOutput(d.Index, on, duty)
		case DestHBridge:
			if abs(v) < 0.01 {
				sink.SetHBridge(d.Index, DirForward, 0, true)
				continue
			}
			dir := DirForward
			if v < 0 {
				dir = DirReverse
			}
			sink.SetHBridge(d.Index, dir, permille(abs(v)), false)
		}
	}
}

// permille scales a [0,1]-ish logic value to the [0,1000] duty domain
// power outputs and H-bridges use.
func permille(v float64) int {
	d := int(v * 1000)
	if d < 0 {
		d = 0
	}
	if d > 1000 {
		d = 1000
	}
	return d
}

func (e *Engine) snapshot() {
	copy(e.prevVChan[:], e.vchan[:])
	for k := range e.updated {
		e.updated[k] = false
	}
	for id, v := range e.pendingChannel {
		e.prevChannel[id] = v
	}
	for id := range e.pendingChannel {
		delete(e.pendingChannel, id)
	}
}
