// Package bootloader implements the bootloader (spec component C7):
// firmware/update header validation, the reset-time run sequence,
// apply-update and rollback over a flashsim.Device, and a staging-file
// watch for incoming OTA images.
package bootloader

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/redline-embedded/pmucore/flashsim"
)

const (
	MagicFirmware = 0x46575048 // "FWPH"
	MagicUpdate   = 0x55504844 // "UPDH"
	MagicShared   = 0x424F4F54 // "BOOT"

	firmwareHeaderSize = 32
	updateHeaderSize   = 28
	sharedStateSize    = 20

	// MaxBootAttempts is the boot-count cap before an automatic
	// rollback is attempted, per spec.md §4.7.
	MaxBootAttempts = 3
)

var crcTable = crc32.IEEETable

// CRC32 computes the zlib-reflected CRC32 spec.md §4.7 names.
func CRC32(buf []byte) uint32 { return crc32.Checksum(buf, crcTable) }

var (
	ErrBadMagic     = errors.New("bootloader: bad magic")
	ErrHeaderCRC    = errors.New("bootloader: header CRC mismatch")
	ErrImageCRC     = errors.New("bootloader: application CRC mismatch")
	ErrVectorTable  = errors.New("bootloader: vector table sanity check failed")
	ErrNoValidImage = errors.New("bootloader: no valid application or backup image")
)

// BootReason explains why the bootloader is running, per spec.md
// §4.7 step 2's priority order: shared override > IWDG reset >
// software reset > power-on.
type BootReason uint32

const (
	ReasonPowerOn BootReason = iota
	ReasonSoftwareReset
	ReasonWatchdogReset
	ReasonSharedOverride
	ReasonNoApp
)

func (r BootReason) String() string {
	switch r {
	case ReasonPowerOn:
		return "power_on"
	case ReasonSoftwareReset:
		return "software_reset"
	case ReasonWatchdogReset:
		return "watchdog_reset"
	case ReasonSharedOverride:
		return "shared_override"
	case ReasonNoApp:
		return "no_app"
	default:
		return "unknown"
	}
}

// UpdateStatus is the staging header's lifecycle field.
type UpdateStatus uint8

const (
	UpdatePending UpdateStatus = iota
	UpdateApplied
	UpdateFailed
)

// FirmwareHeader precedes the application and backup regions, per
// spec.md §3.
type FirmwareHeader struct {
	Magic          uint32
	VersionMajor   uint8
	VersionMinor   uint8
	VersionPatch   uint8
	VersionBuild   uint8
	VectorTableAddr uint32
	AppSize        uint32
	AppCRC32       uint32
	HeaderCRC32    uint32
}

func (h FirmwareHeader) encode() []byte {
	buf := make([]byte, firmwareHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.VersionMajor
	buf[5] = h.VersionMinor
	buf[6] = h.VersionPatch
	buf[7] = h.VersionBuild
	binary.LittleEndian.PutUint32(buf[8:12], h.VectorTableAddr)
	binary.LittleEndian.PutUint32(buf[12:16], h.AppSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.AppCRC32)
	binary.LittleEndian.PutUint32(buf[28:32], h.HeaderCRC32)
	return buf
}

func decodeFirmwareHeader(buf []byte) FirmwareHeader {
	return FirmwareHeader{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		VersionMajor:    buf[4],
		VersionMinor:    buf[5],
		VersionPatch:    buf[6],
		VersionBuild:    buf[7],
		VectorTableAddr: binary.LittleEndian.Uint32(buf[8:12]),
		AppSize:         binary.LittleEndian.Uint32(buf[12:16]),
		AppCRC32:        binary.LittleEndian.Uint32(buf[16:20]),
		HeaderCRC32:     binary.LittleEndian.Uint32(buf[28:32]),
	}
}

// UpdateHeader precedes the external-flash update staging region, per
// spec.md §3.
type UpdateHeader struct {
	Magic             uint32
	FirmwareSize      uint32
	FirmwareCRC32     uint32
	OffsetToFWHeader  uint32
	Status            UpdateStatus
	Timestamp         uint32
	HeaderCRC32       uint32
}

func (h UpdateHeader) encode() []byte {
	buf := make([]byte, updateHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.FirmwareSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.FirmwareCRC32)
	binary.LittleEndian.PutUint32(buf[12:16], h.OffsetToFWHeader)
	buf[16] = byte(h.Status)
	binary.LittleEndian.PutUint32(buf[20:24], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[24:28], h.HeaderCRC32)
	return buf
}

func decodeUpdateHeader(buf []byte) UpdateHeader {
	return UpdateHeader{
		Magic:            binary.LittleEndian.Uint32(buf[0:4]),
		FirmwareSize:     binary.LittleEndian.Uint32(buf[4:8]),
		FirmwareCRC32:    binary.LittleEndian.Uint32(buf[8:12]),
		OffsetToFWHeader: binary.LittleEndian.Uint32(buf[12:16]),
		Status:           UpdateStatus(buf[16]),
		Timestamp:        binary.LittleEndian.Uint32(buf[20:24]),
		HeaderCRC32:      binary.LittleEndian.Uint32(buf[24:28]),
	}
}

// SharedState is the small battery-backed structure surviving reset,
// per spec.md §3 and §6.
type SharedState struct {
	Magic            uint32
	BootReason       uint32
	AppBootCount     uint32
	UpdateRequested  uint8
	Checksum         uint32
}

func (s SharedState) encode() []byte {
	buf := make([]byte, sharedStateSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], s.BootReason)
	binary.LittleEndian.PutUint32(buf[8:12], s.AppBootCount)
	buf[12] = s.UpdateRequested
	return buf
}

func decodeSharedState(buf []byte) SharedState {
	return SharedState{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		BootReason:      binary.LittleEndian.Uint32(buf[4:8]),
		AppBootCount:    binary.LittleEndian.Uint32(buf[8:12]),
		UpdateRequested: buf[12],
		Checksum:        binary.LittleEndian.Uint32(buf[sharedStateSize-4:]),
	}
}

func checksumSharedState(s SharedState) uint32 {
	buf := s.encode()
	return CRC32(buf[:13])
}

// SignatureVerifier is the optional signature-check hook spec.md
// §4.7 leaves as an interface; NoopVerifier always accepts.
type SignatureVerifier interface {
	Verify(image []byte, header UpdateHeader) error
}

// NoopVerifier implements SignatureVerifier by accepting every image.
type NoopVerifier struct{}

// Verify always succeeds.
func (NoopVerifier) Verify([]byte, UpdateHeader) error { return nil }
