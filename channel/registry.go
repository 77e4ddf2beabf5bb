package channel

import (
	"sync"

	"github.com/redline-embedded/pmucore/util"
)

// Registry is the addressable store of typed signals described in
// spec.md §4.1. All operations are total: malformed ids or values are
// rejected with a named Outcome, never a panic.
type Registry struct {
	mu   sync.RWMutex
	byID map[uint16]*Channel
	drv  drivers
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[uint16]*Channel),
		drv:  newDrivers(),
	}
}

// Register inserts a channel by channel_id. Spec.Flags.Enabled is
// honored as given; callers that want a channel live on registration
// should set it themselves.
func (r *Registry) Register(s Spec) Outcome {
	if !InRange(s.ID) {
		return OutOfRange
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return Duplicate
	}
	ch := newChannel(s)
	if ch.Min > ch.Max {
		ch.Min, ch.Max = ch.Max, ch.Min
	}
	r.byID[s.ID] = ch
	return OK
}

// Unregister removes a channel. It is a no-op if the id is unknown.
func (r *Registry) Unregister(id uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *Registry) lookup(id uint16) (*Channel, bool) {
	ch, ok := r.byID[id]
	return ch, ok
}

func clampValue(ch *Channel, v int32) int32 {
	lim := util.Limiter{Min: float64(ch.Min), Max: float64(ch.Max)}
	return int32(lim.Clamp(float64(v)))
}

// invert implements the symmetric formatting transform: substituting
// max - v is its own inverse, so applying it once on write and once on
// read round-trips the caller's logical value (spec.md §8 "Inversion
// symmetry") while the cache and the driver always see the hardware
// level.
func invert(ch *Channel, v int32) int32 {
	if ch.Flags.Inverted {
		return ch.Max - v
	}
	return v
}

// GetValue dispatches to the backing driver for input channels,
// refreshing the cache, and returns the cached last-commanded value for
// output channels. Disabled or missing channels yield 0.
func (r *Registry) GetValue(id uint16) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.byID[id]
	if !ok || !ch.Flags.Enabled {
		return 0
	}
	if ch.Direction == DirectionInput {
		if d, ok := r.drv.input[ch.Class]; ok {
			raw, err := d.Sample(ch.PhysicalIndex)
			if err == nil {
				ch.Value = clampValue(ch, raw)
			}
		}
	}
	return invert(ch, ch.Value)
}

// SetValue clamps v to [min,max], applies inversion, updates the cache,
// then dispatches to the driver for the channel's Class.
func (r *Registry) SetValue(id uint16, v int32) Outcome {
	r.mu.Lock()
	ch, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return Missing
	}
	if ch.Direction != DirectionOutput {
		r.mu.Unlock()
		return NotOutput
	}
	if !ch.Flags.Enabled {
		r.mu.Unlock()
		return Disabled
	}
	clamped := clampValue(ch, v)
	stored := invert(ch, clamped)
	stored = clampValue(ch, stored)
	ch.Value = stored
	d, hasDriver := r.drv.output[ch.Class]
	physIdx := ch.PhysicalIndex
	driveVal := ch.Value
	r.mu.Unlock()

	if hasDriver {
		_ = d.Drive(physIdx, driveVal)
	}
	return OK
}

// UpdateValue refreshes an input channel's cache without invoking a
// driver write. Used by the scheduler for system inputs sampled outside
// the per-channel driver table (battery, currents, temperatures...).
func (r *Registry) UpdateValue(id uint16, v int32) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.byID[id]
	if !ok {
		return Missing
	}
	ch.Value = clampValue(ch, v)
	return OK
}

// LookupByName performs a linear scan for a channel with the given
// name among enabled channels; acceptable at this cardinality per
// spec.md §4.1.
func (r *Registry) LookupByName(name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, ch := range r.byID {
		if ch.Flags.Enabled && ch.Name == name {
			return id, true
		}
	}
	return 0, false
}

// LookupPhysical finds the enabled channel of the given Class backing
// a physical index, the inverse of the id-to-hardware-slot mapping
// Spec.PhysicalIndex records. Acceptable as a linear scan at this
// cardinality, same as LookupByName.
func (r *Registry) LookupPhysical(c Class, physicalIndex int) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, ch := range r.byID {
		if ch.Flags.Enabled && ch.Class == c && ch.PhysicalIndex == physicalIndex {
			return id, true
		}
	}
	return 0, false
}

// Snapshot returns a defensive copy of a channel's current record, or
// false if the id is unknown.
func (r *Registry) Snapshot(id uint16) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byID[id]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}

// All returns a defensive copy of every registered channel, for
// telemetry and debug surfaces.
func (r *Registry) All() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.byID))
	for _, ch := range r.byID {
		out = append(out, *ch)
	}
	return out
}

// SystemRefresher supplies the values the registry mirrors into system
// input channels once per Tick, and the output channels it mirrors back
// from supervisor state (status code, current, voltage, active flag,
// duty). Implemented by core.Core in production; a fake in tests.
type SystemRefresher interface {
	RefreshSystemInputs(r *Registry)
	RefreshOutputMirrors(r *Registry)
}

// Tick refreshes system inputs and recomputes output sub-channels that
// mirror supervisor state, as invoked by the scheduler each control
// tick (spec.md §4.1 "tick()").
func (r *Registry) Tick(sr SystemRefresher) {
	if sr == nil {
		return
	}
	sr.RefreshSystemInputs(r)
	sr.RefreshOutputMirrors(r)
}
