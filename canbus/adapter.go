package canbus

import "github.com/brutella/can"

// extendedFlag mirrors Linux SocketCAN's CAN_EFF_FLAG bit, which
// brutella/can carries straight through in Frame.ID.
const extendedFlag = 0x80000000

// BusTransmitter adapts a *can.Bus to the Transmitter interface. It
// passes frame IDs through unchanged; the extended-frame bit for
// frames 8..15 (spec.md §6) is already set by Stream via WithExtended.
type BusTransmitter struct {
	Bus *can.Bus
}

// Publish sends frame over the underlying CAN bus. frame.ID already
// carries the extended-ID flag for extended frames, set by Stream via
// WithExtended.
func (t BusTransmitter) Publish(frame Frame) error {
	return t.Bus.Publish(can.Frame{
		ID:     frame.ID,
		Length: frame.Length,
		Data:   frame.Data,
	})
}

// WithExtended sets the SocketCAN extended-ID flag on id.
func WithExtended(id uint32) uint32 { return id | extendedFlag }

// RXHandler drains inbound CAN frames into fn, the "drain RX" half of
// spec.md §4.4's CAN task description. It is meant to be registered
// with can.Bus.SubscribeFunc and simply forwards; any queuing or
// back-pressure policy belongs to fn, not this adapter.
func RXHandler(fn func(Frame)) func(can.Frame) {
	return func(f can.Frame) {
		fn(Frame{ID: f.ID, Length: f.Length, Data: f.Data})
	}
}
