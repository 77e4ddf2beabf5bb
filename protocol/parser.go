package protocol

import "encoding/binary"

// ParserState names a position in the byte-driven state machine of
// spec.md §4.5.
type ParserState uint8

const (
	StateIdle ParserState = iota
	StateHaveStart
	StateHaveCmd
	StateHaveLen
	StateHavePayload
)

// Parser consumes bytes one at a time (as they arrive from a UART RX
// interrupt or a stream.Read loop) and reports completed packets. It
// holds no goroutines or locks of its own; callers serialize access,
// matching the single-threaded ISR-fed design it stands in for.
type Parser struct {
	state ParserState

	cmd       byte
	lenBuf    [2]byte
	lenIdx    int
	length    int
	payload   []byte
	payloadAt int
	crcBuf    [2]byte
	crcIdx    int

	lastByteMs int64
	rxErrors   int
}

// NewParser returns a Parser ready to consume bytes from IDLE.
func NewParser() *Parser {
	return &Parser{state: StateIdle}
}

// RxErrors reports how many times the parser has stalled or rejected
// a malformed packet, for the debug HTTP mirror's link-health report.
func (p *Parser) RxErrors() int { return p.rxErrors }

// Feed consumes one byte at time nowMs, returning a completed and
// CRC-validated Packet when the frame is whole. ok is false on every
// call that doesn't complete a packet, including ones that drop a
// stalled or malformed frame (those are only visible via RxErrors).
func (p *Parser) Feed(b byte, nowMs int64) (Packet, bool) {
	if p.state != StateIdle && p.lastByteMs != 0 && nowMs-p.lastByteMs > StallTimeoutMs {
		p.reset()
		p.rxErrors++
	}
	p.lastByteMs = nowMs

	switch p.state {
	case StateIdle:
		if b == Start {
			p.state = StateHaveStart
		}
		return Packet{}, false

	case StateHaveStart:
		p.cmd = b
		p.state = StateHaveCmd
		p.lenIdx = 0
		return Packet{}, false

	case StateHaveCmd:
		p.lenBuf[p.lenIdx] = b
		p.lenIdx++
		if p.lenIdx < 2 {
			return Packet{}, false
		}
		p.length = int(binary.LittleEndian.Uint16(p.lenBuf[:]))
		if p.length > MaxPayload {
			p.reset()
			p.rxErrors++
			return Packet{}, false
		}
		p.payload = make([]byte, p.length)
		p.payloadAt = 0
		p.state = StateHaveLen
		if p.length == 0 {
			p.state = StateHavePayload
			p.crcIdx = 0
		}
		return Packet{}, false

	case StateHaveLen:
		p.payload[p.payloadAt] = b
		p.payloadAt++
		if p.payloadAt == p.length {
			p.state = StateHavePayload
			p.crcIdx = 0
		}
		return Packet{}, false

	case StateHavePayload:
		p.crcBuf[p.crcIdx] = b
		p.crcIdx++
		if p.crcIdx < 2 {
			return Packet{}, false
		}
		pkt, ok := p.finish()
		p.reset()
		return pkt, ok

	default:
		p.reset()
		return Packet{}, false
	}
}

func (p *Parser) finish() (Packet, bool) {
	frame := make([]byte, 0, 4+p.length+2)
	frame = append(frame, Start, p.cmd)
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(p.length))
	frame = append(frame, lenBuf...)
	frame = append(frame, p.payload...)
	frame = append(frame, p.crcBuf[:]...)

	pkt, err := Decode(frame)
	if err != nil {
		p.rxErrors++
		return Packet{}, false
	}
	return pkt, true
}

func (p *Parser) reset() {
	p.state = StateIdle
	p.lenIdx = 0
	p.payloadAt = 0
	p.crcIdx = 0
	p.payload = nil
}

// FeedBytes runs Feed over every byte of buf at a single timestamp,
// for tests and bulk log replay where per-byte arrival time doesn't
// matter.
func (p *Parser) FeedBytes(buf []byte, nowMs int64) []Packet {
	var out []Packet
	for _, b := range buf {
		if pkt, ok := p.Feed(b, nowMs); ok {
			out = append(out, pkt)
		}
	}
	return out
}
