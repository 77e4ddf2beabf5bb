// Package datalogger implements the data logger (spec component C8):
// a session-header-indexed append log of per-tick channel samples,
// written in page-sized chunks to a flashsim.Device, with linear-scan
// recovery of prior sessions by header magic.
package datalogger

import (
	"encoding/binary"
	"errors"
	"sync"
)

const (
	// Magic identifies a session header, per spec.md §4.8.
	Magic = 0x444C4F47 // "DLOG"

	// DefaultPageSize is the RAM staging buffer size samples are
	// batched into before a single WriteAt call, per spec.md §4.8's
	// "small RAM staging buffer (page-sized writes)".
	DefaultPageSize = 256

	fixedHeaderSize = 24 // everything in SessionHeader but the channel map
)

var (
	ErrChannelCountMismatch = errors.New("datalogger: value count does not match channel map")
	ErrRegionTooSmall       = errors.New("datalogger: region too small for header")
	ErrNotStarted           = errors.New("datalogger: no active session")
)

// SessionHeader precedes every logged session, per spec.md §4.8.
type SessionHeader struct {
	Magic        uint32
	SessionID    uint32
	StartTimeMs  uint32
	SampleRateHz uint16
	ChannelCount uint16
	HeaderSize   uint16
	DataSize     uint32 // placeholder until Stop patches in the final value
	ChannelMap   []uint16
}

func (h SessionHeader) encode() []byte {
	buf := make([]byte, int(h.HeaderSize))
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.SessionID)
	binary.LittleEndian.PutUint32(buf[8:12], h.StartTimeMs)
	binary.LittleEndian.PutUint16(buf[12:14], h.SampleRateHz)
	binary.LittleEndian.PutUint16(buf[14:16], h.ChannelCount)
	binary.LittleEndian.PutUint16(buf[16:18], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.DataSize)
	for i, id := range h.ChannelMap {
		off := fixedHeaderSize + i*2
		binary.LittleEndian.PutUint16(buf[off:off+2], id)
	}
	return buf
}

func decodeSessionHeader(buf []byte) (SessionHeader, error) {
	if len(buf) < fixedHeaderSize {
		return SessionHeader{}, ErrRegionTooSmall
	}
	h := SessionHeader{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		SessionID:    binary.LittleEndian.Uint32(buf[4:8]),
		StartTimeMs:  binary.LittleEndian.Uint32(buf[8:12]),
		SampleRateHz: binary.LittleEndian.Uint16(buf[12:14]),
		ChannelCount: binary.LittleEndian.Uint16(buf[14:16]),
		HeaderSize:   binary.LittleEndian.Uint16(buf[16:18]),
		DataSize:     binary.LittleEndian.Uint32(buf[20:24]),
	}
	need := fixedHeaderSize + int(h.ChannelCount)*2
	if len(buf) < need {
		return h, ErrRegionTooSmall
	}
	h.ChannelMap = make([]uint16, h.ChannelCount)
	for i := range h.ChannelMap {
		off := fixedHeaderSize + i*2
		h.ChannelMap[i] = binary.LittleEndian.Uint16(buf[off : off+2])
	}
	return h, nil
}

// sampleSize is the on-flash size of one sample record: a u32
// timestamp followed by one i32 value per mapped channel.
func sampleSize(channelCount int) uint32 {
	return 4 + uint32(channelCount)*4
}

func encodeSample(buf []byte, timestampMs uint32, values []int32) {
	binary.LittleEndian.PutUint32(buf[0:4], timestampMs)
	for i, v := range values {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(v))
	}
}

// Logger appends timestamped channel samples to a staging region of a
// flashsim.Device, batching them through a RAM page buffer so the
// device only sees page-sized writes.
type Logger struct {
	mu sync.Mutex

	dev        Device
	regionBase uint32
	regionSize uint32

	header      SessionHeader
	sampleBytes uint32

	page       []byte
	pageFill   int
	writeAt    uint32
	dataWritten uint32

	history *History
}

// Device is the subset of flashsim.Device the data logger needs.
type Device interface {
	ReadAt(addr uint32, p []byte) error
	WriteAt(addr uint32, p []byte) error
	Erase(addr, size uint32) error
	Size() uint32
}

// NewSession erases regionSize bytes at regionBase, writes a fresh
// SessionHeader there, and returns a Logger ready to accept samples,
// per spec.md §4.8's "On start" paragraph. pageSize of 0 selects
// DefaultPageSize. historyDepth, if > 0, keeps the last N samples of
// each channel in memory via a ringo-backed History for cheap recent
// access (e.g. a debug HTTP mirror) without re-reading flash.
func NewSession(dev Device, regionBase, regionSize uint32, sessionID, startTimeMs uint32, sampleRateHz uint16, channelIDs []uint16, pageSize uint32, historyDepth int) (*Logger, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	headerSize := fixedHeaderSize + len(channelIDs)*2
	if regionSize < uint32(headerSize) {
		return nil, ErrRegionTooSmall
	}

	h := SessionHeader{
		Magic:        Magic,
		SessionID:    sessionID,
		StartTimeMs:  startTimeMs,
		SampleRateHz: sampleRateHz,
		ChannelCount: uint16(len(channelIDs)),
		HeaderSize:   uint16(headerSize),
		DataSize:     0,
		ChannelMap:   append([]uint16(nil), channelIDs...),
	}

	if err := dev.Erase(regionBase, regionSize); err != nil {
		return nil, err
	}
	if err := dev.WriteAt(regionBase, h.encode()); err != nil {
		return nil, err
	}

	l := &Logger{
		dev:         dev,
		regionBase:  regionBase,
		regionSize:  regionSize,
		header:      h,
		sampleBytes: sampleSize(len(channelIDs)),
		page:        make([]byte, pageSize),
		writeAt:     regionBase + uint32(headerSize),
	}
	if historyDepth > 0 {
		l.history = NewHistory(channelIDs, historyDepth)
	}
	return l, nil
}

// History returns the in-RAM recent-sample ring buffers, or nil if
// NewSession was called with historyDepth 0.
func (l *Logger) History() *History { return l.history }

// Append records one tick's sample. values must be in the same order
// as the channelIDs NewSession was given.
func (l *Logger) Append(timestampMs uint32, values []int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(values) != len(l.header.ChannelMap) {
		return ErrChannelCountMismatch
	}

	rec := make([]byte, l.sampleBytes)
	encodeSample(rec, timestampMs, values)

	for len(rec) > 0 {
		n := copy(l.page[l.pageFill:], rec)
		l.pageFill += n
		rec = rec[n:]
		if l.pageFill == len(l.page) {
			if err := l.flushPage(); err != nil {
				return err
			}
		}
	}
	l.dataWritten += l.sampleBytes

	if l.history != nil {
		l.history.append(l.header.ChannelMap, values)
	}
	return nil
}

func (l *Logger) flushPage() error {
	if l.pageFill == 0 {
		return nil
	}
	if err := l.dev.WriteAt(l.writeAt, l.page[:l.pageFill]); err != nil {
		return err
	}
	l.writeAt += uint32(l.pageFill)
	l.pageFill = 0
	return nil
}

// Stop flushes any partially filled page and patches the session
// header's DataSize with the final total, per spec.md §4.8's "On
// stop: flush."
func (l *Logger) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushPage(); err != nil {
		return err
	}
	l.header.DataSize = l.dataWritten
	return l.dev.WriteAt(l.regionBase, l.header.encode())
}

// ScanSessions linear-scans [regionBase, regionBase+regionSize) at
// stride-byte intervals for a valid session header magic, per
// spec.md §4.8's "Sessions are recovered by linear scan for header
// magic." stride should not exceed the smallest plausible header size.
func ScanSessions(dev Device, regionBase, regionSize uint32, stride uint32) ([]SessionHeader, error) {
	if stride == 0 {
		stride = 4
	}
	var found []SessionHeader
	probe := make([]byte, fixedHeaderSize)
	for addr := regionBase; addr+fixedHeaderSize <= regionBase+regionSize; addr += stride {
		if err := dev.ReadAt(addr, probe); err != nil {
			break
		}
		if binary.LittleEndian.Uint32(probe[0:4]) != Magic {
			continue
		}
		headerSize := binary.LittleEndian.Uint16(probe[16:18])
		if headerSize < fixedHeaderSize || addr+uint32(headerSize) > regionBase+regionSize {
			continue
		}
		full := make([]byte, headerSize)
		if err := dev.ReadAt(addr, full); err != nil {
			continue
		}
		hdr, err := decodeSessionHeader(full)
		if err != nil {
			continue
		}
		found = append(found, hdr)
	}
	return found, nil
}
