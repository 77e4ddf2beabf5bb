package protocol

import "sync"

// HandlerFunc answers one request packet with exactly one response
// packet: ACK, NACK, or a domain-specific reply, per spec.md §4.5's
// response grammar.
type HandlerFunc func(req Packet) Packet

// RouteTable maps a command byte to the handler that answers it,
// mirroring the shape of server.RouteTable for the wire protocol
// instead of HTTP.
type RouteTable map[Command]HandlerFunc

// Dispatcher is the Control task's protocol.pump() body: it holds
// packets assembled by byte-at-a-time reception (the UART RX
// interrupt handler of spec.md §5) until the next control tick, then
// dispatches each to its handler and hands the response to Write.
//
// OnByteReceived and Pump are meant to run on different goroutines —
// the former from whatever feeds bytes off the wire, the latter from
// the scheduler's Control task — so the queue is mutex-guarded.
type Dispatcher struct {
	mu     sync.Mutex
	parser *Parser
	table  RouteTable
	queue  []Packet

	Write func(frame []byte) error

	stream Streamer
}

// NewDispatcher builds a Dispatcher with an empty route table. Write
// must be set before Pump is called with anything to send.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{parser: NewParser(), table: RouteTable{}}
}

// Handle registers the handler for cmd, overwriting any prior one.
func (d *Dispatcher) Handle(cmd Command, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table[cmd] = fn
}

// OnByteReceived feeds one wire byte into the parser. It is the
// moral equivalent of the per-byte UART RX interrupt of spec.md §5:
// it never dispatches a handler or blocks, it only ever queues a
// completed packet for the next Pump.
func (d *Dispatcher) OnByteReceived(b byte, nowMs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pkt, ok := d.parser.Feed(b, nowMs); ok {
		d.queue = append(d.queue, pkt)
	}
}

// RxErrors reports the parser's cumulative stall/malformed-frame count.
func (d *Dispatcher) RxErrors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parser.RxErrors()
}

// StartStream arms periodic DATA emission at rateHz, using build to
// render each DATA payload's enabled telemetry sections.
func (d *Dispatcher) StartStream(cmd Command, rateHz int, build func(counter uint32, nowMs int64) []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stream = Streamer{active: true, cmd: cmd, rateHz: rateHz, build: build}
}

// StopStream disarms periodic DATA emission.
func (d *Dispatcher) StopStream() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stream.active = false
}

// Pump drains queued inbound packets through their handlers, writes
// every response, and emits a DATA packet if streaming is due. It is
// the "protocol.pump()" step of the Control task's per-tick sequence
// (spec.md §4.4) and must never block on I/O (Write is expected to be
// a buffered, non-blocking send).
func (d *Dispatcher) Pump(nowMs int64) error {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	table := d.table
	write := d.Write
	d.mu.Unlock()

	for _, req := range pending {
		resp, ok := table[req.Cmd]
		var out Packet
		if !ok {
			out = Nack(req.Cmd, "unsupported command")
		} else {
			out = resp(req)
		}
		if write == nil {
			continue
		}
		frame, err := Encode(out)
		if err != nil {
			return err
		}
		if err := write(frame); err != nil {
			return err
		}
	}

	d.mu.Lock()
	due, dataPkt := d.stream.due(nowMs)
	d.mu.Unlock()
	if due && write != nil {
		frame, err := Encode(dataPkt)
		if err != nil {
			return err
		}
		return write(frame)
	}
	return nil
}
