// Package protocol implements the framed host command protocol (spec
// component C5): packet framing with a CRC-CCITT trailer, a
// byte-driven parser state machine, and the command/response dispatch
// table that the scheduler's Control task pumps once per tick.
package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/snksoft/crc"
)

// Start is the fixed framing magic byte, spec.md §4.5.
const Start byte = 0x7E

// MaxPayload bounds a single packet's payload. 512 bytes suffices for
// every command in this protocol, per spec.md §4.5.
const MaxPayload = 512

// StallTimeoutMs is the per-packet parser stall timeout; a partially
// received packet older than this is dropped and counted as an error.
const StallTimeoutMs = 1000

var (
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds MaxPayload")
	ErrCRCMismatch     = errors.New("protocol: CRC16 mismatch")
	ErrShortPacket     = errors.New("protocol: packet shorter than frame overhead")
)

// crcTable computes CRC-CCITT (poly 0x1021, init 0xFFFF), matching the
// checksum the host tool and the firmware both compute over
// START..payload before appending it little-endian.
var crcTable = crc.NewTable(crc.CCITT)

// CRC16 returns the CRC-CCITT checksum of buf.
func CRC16(buf []byte) uint16 {
	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, buf)
	return crcTable.CRC16(crcUint)
}

// Packet is a fully framed command or response, independent of wire
// byte order.
type Packet struct {
	Cmd     Command
	Payload []byte
}

// Encode renders p into the wire frame START|CMD|LEN_LE|PAYLOAD|CRC16_LE.
func Encode(p Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, 0, 4+len(p.Payload)+2)
	buf = append(buf, Start, byte(p.Cmd))
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(p.Payload)))
	buf = append(buf, lenBuf...)
	buf = append(buf, p.Payload...)

	crcVal := CRC16(buf)
	crcBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(crcBuf, crcVal)
	buf = append(buf, crcBuf...)
	return buf, nil
}

// Decode validates and unpacks a complete wire frame (as delivered by
// the Parser once it reaches HAVE_PAYLOAD+CRC). It re-derives the CRC
// independently of the Parser so callers assembling frames by other
// means (tests, log replay) get the same validation.
func Decode(frame []byte) (Packet, error) {
	if len(frame) < 6 {
		return Packet{}, ErrShortPacket
	}
	if frame[0] != Start {
		return Packet{}, errors.New("protocol: missing start byte")
	}
	cmd := Command(frame[1])
	length := binary.LittleEndian.Uint16(frame[2:4])
	if int(length) > MaxPayload {
		return Packet{}, ErrPayloadTooLarge
	}
	end := 4 + int(length)
	if len(frame) != end+2 {
		return Packet{}, ErrShortPacket
	}
	payload := frame[4:end]
	wantCRC := binary.LittleEndian.Uint16(frame[end : end+2])
	gotCRC := CRC16(frame[:end])
	if wantCRC != gotCRC {
		return Packet{}, ErrCRCMismatch
	}
	return Packet{Cmd: cmd, Payload: payload}, nil
}
