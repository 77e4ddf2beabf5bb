package configstore

import (
	"github.com/redline-embedded/pmucore/flashsim"
)

// JSONStore persists a free-form JSON configuration blob across two
// equal-sized external-flash slots for wear leveling, per spec.md
// §4.6. The reader always trusts the header `write_count`, never an
// in-RAM "which slot is active" pointer, so a crash mid-write leaves
// the previous valid slot canonical.
type JSONStore struct {
	dev      flashsim.Device
	slotAddr [2]uint32
	slotSize uint32
}

// NewJSONStore binds a JSONStore to two equal-sized slots on dev.
func NewJSONStore(dev flashsim.Device, slotAAddr, slotBAddr, slotSize uint32) *JSONStore {
	return &JSONStore{dev: dev, slotAddr: [2]uint32{slotAAddr, slotBAddr}, slotSize: slotSize}
}

type slotRead struct {
	valid bool
	hdr   JSONHeader
	body  []byte
}

func (s *JSONStore) readSlot(i int) slotRead {
	hdrBuf := make([]byte, jsonHeaderSize)
	if err := s.dev.ReadAt(s.slotAddr[i], hdrBuf); err != nil {
		return slotRead{}
	}
	hdr := decodeJSONHeader(hdrBuf)
	if CRC32(hdrBuf[:20]) != hdr.HeaderCRC32 {
		return slotRead{}
	}
	if hdr.Magic != MagicJSON {
		return slotRead{}
	}
	if uint64(jsonHeaderSize)+uint64(hdr.JSONSize) > uint64(s.slotSize) {
		return slotRead{}
	}
	body := make([]byte, hdr.JSONSize)
	if err := s.dev.ReadAt(s.slotAddr[i]+jsonHeaderSize, body); err != nil {
		return slotRead{}
	}
	if CRC32(body) != hdr.JSONCRC32 {
		return slotRead{}
	}
	return slotRead{valid: true, hdr: hdr, body: body}
}

// Load picks whichever valid slot has the strictly greater
// write_count and returns its JSON body. If neither slot validates,
// it returns ErrNoConfig.
func (s *JSONStore) Load() ([]byte, error) {
	a := s.readSlot(0)
	b := s.readSlot(1)

	switch {
	case a.valid && b.valid:
		if a.hdr.WriteCount >= b.hdr.WriteCount {
			return a.body, nil
		}
		return b.body, nil
	case a.valid:
		return a.body, nil
	case b.valid:
		return b.body, nil
	default:
		return nil, ErrNoConfig
	}
}

// Store writes json to the slot not currently holding the highest
// write_count, erasing it first and writing the active-slot body
// before the header's write_count gives readers a strictly higher
// count to prefer, per spec.md §4.6's "Store (external JSON)" sequence.
func (s *JSONStore) Store(json []byte, timestamp uint32) error {
	a := s.readSlot(0)
	b := s.readSlot(1)

	target := 0
	var nextCount uint32 = 1
	switch {
	case a.valid && b.valid:
		if a.hdr.WriteCount <= b.hdr.WriteCount {
			target = 0
			nextCount = b.hdr.WriteCount + 1
		} else {
			target = 1
			nextCount = a.hdr.WriteCount + 1
		}
	case a.valid:
		target = 1
		nextCount = a.hdr.WriteCount + 1
	case b.valid:
		target = 0
		nextCount = b.hdr.WriteCount + 1
	default:
		target = 0
		nextCount = 1
	}

	padded := padTo(json, ProgramGranularity)
	hdr := JSONHeader{
		Magic:      MagicJSON,
		JSONSize:   uint32(len(json)),
		JSONCRC32:  CRC32(json),
		WriteCount: nextCount,
		Timestamp:  timestamp,
	}
	hdrBuf := hdr.encode()
	hdr.HeaderCRC32 = CRC32(hdrBuf[:20])
	hdrBuf = hdr.encode()

	addr := s.slotAddr[target]
	if err := s.dev.Erase(addr, s.slotSize); err != nil {
		return err
	}
	if err := s.dev.WriteAt(addr+jsonHeaderSize, padded); err != nil {
		return err
	}
	return s.dev.WriteAt(addr, hdrBuf)
}
