// Package canbus implements the optional CAN stream (spec.md §6): 16
// predefined frames at a configurable base_id, paced per-frame with a
// rate limiter and transmitted over a github.com/brutella/can socket.
package canbus

import (
	"context"
	"encoding/binary"

	"golang.org/x/time/rate"
)

// FrameCount is the fixed number of predefined frames.
const FrameCount = 16

// StandardFrameCount is how many of the 16 frames use standard
// (11-bit) IDs; the rest use extended IDs, per spec.md §6.
const StandardFrameCount = 8

// Rate classes named in spec.md §6: inputs may run at the faster
// 62.5 Hz or the common 20 Hz; everything from frame 8 up runs at
// 20 Hz with extended IDs.
const (
	RateInputs20Hz   = 20.0
	RateInputs62Hz   = 62.5
	RateExtended20Hz = 20.0
)

// FrameSpec describes one of the 16 predefined frames: its offset
// from base_id, whether it uses an extended identifier, its rate, and
// the function that renders the current system state into its fixed
// 8-byte body.
type FrameSpec struct {
	Index    int
	Extended bool
	RateHz   float64
	Build    func(nowMs int64) [8]byte
}

// Transmitter is the subset of brutella/can's *Bus this package needs,
// kept as an interface so the pacing/build logic can be exercised
// without an actual SocketCAN interface.
type Transmitter interface {
	Publish(frame Frame) error
}

// Frame mirrors can.Frame's field shape so callers can construct one
// without importing brutella/can directly in frame-building code.
type Frame struct {
	ID     uint32
	Length uint8
	Data   [8]byte
}

// frameID computes the on-wire identifier for a spec given base_id,
// setting the SocketCAN extended-ID bit for extended frames (frames
// 8..15, per spec.md §6) via WithExtended.
func frameID(baseID uint32, spec FrameSpec) uint32 {
	id := baseID + uint32(spec.Index)
	if spec.Extended {
		id = WithExtended(id)
	}
	return id
}

// Stream paces and transmits the 16 predefined frames against a
// Transmitter.
type Stream struct {
	baseID   uint32
	tx       Transmitter
	specs    []FrameSpec
	limiters []*rate.Limiter
}

// New builds a Stream for the given base_id and frame specs. specs
// must have exactly FrameCount entries, frames[0:StandardFrameCount]
// standard and the remainder extended, matching spec.md §6.
func New(tx Transmitter, baseID uint32, specs []FrameSpec) *Stream {
	limiters := make([]*rate.Limiter, len(specs))
	for i, s := range specs {
		limiters[i] = rate.NewLimiter(rate.Limit(s.RateHz), 1)
	}
	return &Stream{baseID: baseID, tx: tx, specs: specs, limiters: limiters}
}

// Pump transmits every frame whose limiter currently allows a send,
// non-blocking — the CAN task (§4.4, 10 ms period) calls this once per
// tick rather than waiting on each limiter individually, since
// spec.md §5 forbids blocking inside a fixed-period task.
func (s *Stream) Pump(nowMs int64) error {
	for i, spec := range s.specs {
		if !s.limiters[i].Allow() {
			continue
		}
		body := spec.Build(nowMs)
		frame := Frame{ID: frameID(s.baseID, spec), Length: 8, Data: body}
		if err := s.tx.Publish(frame); err != nil {
			return err
		}
	}
	return nil
}

// WaitAndPublish blocks until frame i's limiter admits a send, then
// publishes it. It exists for callers (tests, offline tools) that
// want strict pacing rather than the non-blocking Pump used by the
// scheduled CAN task.
func (s *Stream) WaitAndPublish(ctx context.Context, i int, nowMs int64) error {
	if err := s.limiters[i].Wait(ctx); err != nil {
		return err
	}
	body := s.specs[i].Build(nowMs)
	frame := Frame{ID: frameID(s.baseID, s.specs[i]), Length: 8, Data: body}
	return s.tx.Publish(frame)
}

func putU16(buf []byte, off int, v uint16) { binary.LittleEndian.PutUint16(buf[off:off+2], v) }
func putI16(buf []byte, off int, v int16)  { binary.LittleEndian.PutUint16(buf[off:off+2], uint16(v)) }
