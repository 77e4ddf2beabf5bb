// Package configstore implements Stored Configuration (spec component
// C6): a single-sector typed record in internal flash and a
// dual-slot, wear-leveled JSON blob in external flash, both guarded by
// CRC32 headers, plus the export/import envelope used over the wire.
package configstore

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/redline-embedded/pmucore/flashsim"
)

// Magic values distinguish a valid header from erased or garbage flash.
const (
	MagicTyped = 0x50544347 // "PTCG"
	MagicJSON  = 0x4A534F4E // "JSON"

	VersionMajor = 1
	VersionMinor = 0

	// typedHeaderSize is the on-flash size of ConfigHeader, fixed so
	// data always starts at the same offset regardless of content.
	typedHeaderSize = 28
	jsonHeaderSize  = 24

	// ProgramGranularity is the padding unit data is rounded up to
	// before being written, standing in for a NOR part's minimum
	// program size.
	ProgramGranularity = 16
)

var (
	ErrBadMagic      = errors.New("configstore: bad magic")
	ErrHeaderCRC     = errors.New("configstore: header CRC mismatch")
	ErrDataCRC       = errors.New("configstore: data CRC mismatch")
	ErrVersion       = errors.New("configstore: incompatible version")
	ErrNoConfig      = errors.New("configstore: no valid config in either slot")
	ErrEnvelopeShort = errors.New("configstore: import envelope too short")
	ErrEnvelopeCRC   = errors.New("configstore: import envelope CRC mismatch")
)

// crc32Table is the zlib/IEEE-reflected CRC32 polynomial 0xEDB88320
// spec.md §4.7 names explicitly; Go's crc32.IEEETable is exactly that
// polynomial.
var crc32Table = crc32.IEEETable

// CRC32 computes the zlib-reflected CRC32 of buf.
func CRC32(buf []byte) uint32 {
	return crc32.Checksum(buf, crc32Table)
}

// ConfigHeader precedes the typed configuration record in internal
// flash, per spec.md §6.
type ConfigHeader struct {
	Magic        uint32
	VersionMajor uint8
	VersionMinor uint8
	DataSize     uint16
	DataCRC32    uint32
	WriteCount   uint32
	Timestamp    uint32
	SlotActive   uint8
	_            [3]byte // padding to a 4-byte boundary before HeaderCRC32
	HeaderCRC32  uint32
}

func (h ConfigHeader) encode() []byte {
	buf := make([]byte, typedHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.VersionMajor
	buf[5] = h.VersionMinor
	binary.LittleEndian.PutUint16(buf[6:8], h.DataSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.DataCRC32)
	binary.LittleEndian.PutUint32(buf[12:16], h.WriteCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.Timestamp)
	buf[20] = h.SlotActive
	// bytes 21..23 stay zero padding
	binary.LittleEndian.PutUint32(buf[24:28], h.HeaderCRC32)
	return buf
}

func decodeConfigHeader(buf []byte) ConfigHeader {
	return ConfigHeader{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		VersionMajor: buf[4],
		VersionMinor: buf[5],
		DataSize:     binary.LittleEndian.Uint16(buf[6:8]),
		DataCRC32:    binary.LittleEndian.Uint32(buf[8:12]),
		WriteCount:   binary.LittleEndian.Uint32(buf[12:16]),
		Timestamp:    binary.LittleEndian.Uint32(buf[16:20]),
		SlotActive:   buf[20],
		HeaderCRC32:  binary.LittleEndian.Uint32(buf[24:28]),
	}
}

// JSONHeader precedes each external-flash JSON slot, per spec.md §6.
type JSONHeader struct {
	Magic       uint32
	JSONSize    uint32
	JSONCRC32   uint32
	WriteCount  uint32
	Timestamp   uint32
	HeaderCRC32 uint32
}

func (h JSONHeader) encode() []byte {
	buf := make([]byte, jsonHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.JSONSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.JSONCRC32)
	binary.LittleEndian.PutUint32(buf[12:16], h.WriteCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[20:24], h.HeaderCRC32)
	return buf
}

func decodeJSONHeader(buf []byte) JSONHeader {
	return JSONHeader{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		JSONSize:    binary.LittleEndian.Uint32(buf[4:8]),
		JSONCRC32:   binary.LittleEndian.Uint32(buf[8:12]),
		WriteCount:  binary.LittleEndian.Uint32(buf[12:16]),
		Timestamp:   binary.LittleEndian.Uint32(buf[16:20]),
		HeaderCRC32: binary.LittleEndian.Uint32(buf[20:24]),
	}
}

func padTo(data []byte, granularity int) []byte {
	rem := len(data) % granularity
	if rem == 0 {
		return data
	}
	pad := make([]byte, granularity-rem)
	for i := range pad {
		pad[i] = flashsim.ErasedByte
	}
	return append(data, pad...)
}
