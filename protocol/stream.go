package protocol

// Streamer tracks the unsolicited DATA packet cadence armed by
// START_STREAM, per spec.md §4.5: the device emits a DATA packet
// every 1000/rate_hz ms, carrying the original START_STREAM command
// byte and a monotonically increasing stream counter.
type Streamer struct {
	active   bool
	cmd      Command
	rateHz   int
	counter  uint32
	lastMs   int64
	started  bool
	build    func(counter uint32, nowMs int64) []byte
}

// due reports whether a DATA packet should be emitted at nowMs, and
// if so builds it and advances the counter/timestamp.
func (s *Streamer) due(nowMs int64) (bool, Packet) {
	if !s.active || s.rateHz <= 0 || s.build == nil {
		return false, Packet{}
	}
	periodMs := int64(1000 / s.rateHz)
	if periodMs <= 0 {
		periodMs = 1
	}
	if !s.started {
		s.started = true
		s.lastMs = nowMs
	} else if nowMs-s.lastMs < periodMs {
		return false, Packet{}
	} else {
		s.lastMs += periodMs
	}

	payload := s.build(s.counter, nowMs)
	s.counter++
	return true, Packet{Cmd: s.cmd, Payload: payload}
}
