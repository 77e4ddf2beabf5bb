package bootloader

import (
	"encoding/binary"

	"github.com/redline-embedded/pmucore/flashsim"
)

// AddressRange is an inclusive [Min,Max] bound used for vector-table
// sanity checks. Plain uint32 comparisons are used rather than
// util.Limiter, which clamps float64 values; address ranges need
// exact integer containment, not clamping.
type AddressRange struct {
	Min, Max uint32
}

func (r AddressRange) contains(addr uint32) bool {
	return addr >= r.Min && addr <= r.Max
}

// Regions describes the fixed flash layout spec.md §4.7 assumes.
type Regions struct {
	AppAddr     uint32
	BackupAddr  uint32
	RegionSize  uint32 // shared by Application and Backup
	StagingAddr uint32
	StagingSize uint32
	SharedAddr  uint32

	SRAMRange  AddressRange
	FlashRange AddressRange
}

// Bootloader runs the reset-time sequence and update/rollback
// machinery of spec.md §4.7 against a flashsim.Device standing in for
// internal + external flash and battery-backed shared memory alike.
type Bootloader struct {
	dev       flashsim.Device
	regions   Regions
	verifier  SignatureVerifier
	chunkSize uint32
}

// New binds a Bootloader to dev. chunkSize is the program-sized chunk
// used by apply-update and rollback copies (spec.md §4.7 "in
// program-sized chunks"); verifier may be nil, in which case
// NoopVerifier is used.
func New(dev flashsim.Device, regions Regions, verifier SignatureVerifier, chunkSize uint32) *Bootloader {
	if verifier == nil {
		verifier = NoopVerifier{}
	}
	if chunkSize == 0 {
		chunkSize = 256
	}
	return &Bootloader{dev: dev, regions: regions, verifier: verifier, chunkSize: chunkSize}
}

// readHeader reads and CRC-validates a FirmwareHeader at addr.
func (b *Bootloader) readHeader(addr uint32) (FirmwareHeader, error) {
	buf := make([]byte, firmwareHeaderSize)
	if err := b.dev.ReadAt(addr, buf); err != nil {
		return FirmwareHeader{}, err
	}
	hdr := decodeFirmwareHeader(buf)
	if hdr.Magic != MagicFirmware {
		return hdr, ErrBadMagic
	}
	if CRC32(buf[:28]) != hdr.HeaderCRC32 {
		return hdr, ErrHeaderCRC
	}
	return hdr, nil
}

// ValidateImage checks magic, header CRC, application CRC over the
// declared size, and vector-table sanity (initial SP in SRAM, reset
// handler in flash), per spec.md §4.7 step 5.
func (b *Bootloader) ValidateImage(addr uint32) (FirmwareHeader, error) {
	hdr, err := b.readHeader(addr)
	if err != nil {
		return hdr, err
	}

	appBuf := make([]byte, hdr.AppSize)
	if err := b.dev.ReadAt(addr+firmwareHeaderSize, appBuf); err != nil {
		return hdr, err
	}
	if CRC32(appBuf) != hdr.AppCRC32 {
		return hdr, ErrImageCRC
	}

	vt := make([]byte, 8)
	if err := b.dev.ReadAt(hdr.VectorTableAddr, vt); err != nil {
		return hdr, err
	}
	initialSP := binary.LittleEndian.Uint32(vt[0:4])
	resetHandler := binary.LittleEndian.Uint32(vt[4:8])
	if !b.regions.SRAMRange.contains(initialSP) {
		return hdr, ErrVectorTable
	}
	if !b.regions.FlashRange.contains(resetHandler) {
		return hdr, ErrVectorTable
	}
	return hdr, nil
}

func (b *Bootloader) copyRegion(dstAddr, srcAddr, size uint32) error {
	if err := b.dev.Erase(dstAddr, size); err != nil {
		return err
	}
	buf := make([]byte, b.chunkSize)
	for off := uint32(0); off < size; off += b.chunkSize {
		n := b.chunkSize
		if off+n > size {
			n = size - off
		}
		chunk := buf[:n]
		if err := b.dev.ReadAt(srcAddr+off, chunk); err != nil {
			return err
		}
		if err := b.dev.WriteAt(dstAddr+off, chunk); err != nil {
			return err
		}
	}
	return nil
}

// BackupApplication copies the current application image into the
// backup region, in program-sized chunks, per spec.md §4.7's
// "Apply update" step.
func (b *Bootloader) BackupApplication() error {
	return b.copyRegion(b.regions.BackupAddr, b.regions.AppAddr, b.regions.RegionSize)
}

// ApplyUpdate reads the staging header, verifies the incoming image,
// backs up the current application, copies the staged image into the
// application region, and marks the staging header APPLIED. On any
// validation failure before the copy begins, the application region
// is left untouched.
func (b *Bootloader) ApplyUpdate() error {
	hdrBuf := make([]byte, updateHeaderSize)
	if err := b.dev.ReadAt(b.regions.StagingAddr, hdrBuf); err != nil {
		return err
	}
	uh := decodeUpdateHeader(hdrBuf)
	if uh.Magic != MagicUpdate {
		return ErrBadMagic
	}
	if CRC32(hdrBuf[:24]) != uh.HeaderCRC32 {
		return ErrHeaderCRC
	}

	fwAddr := b.regions.StagingAddr + uh.OffsetToFWHeader
	fwBuf := make([]byte, uh.FirmwareSize)
	if err := b.dev.ReadAt(fwAddr, fwBuf); err != nil {
		return err
	}
	if CRC32(fwBuf) != uh.FirmwareCRC32 {
		return ErrImageCRC
	}
	if err := b.verifier.Verify(fwBuf, uh); err != nil {
		return err
	}

	if err := b.BackupApplication(); err != nil {
		return err
	}
	if err := b.copyRegion(b.regions.AppAddr, fwAddr, uh.FirmwareSize); err != nil {
		return err
	}
	if _, err := b.ValidateImage(b.regions.AppAddr); err != nil {
		return err
	}

	uh.Status = UpdateApplied
	newHdrBuf := uh.encode()
	uh.HeaderCRC32 = CRC32(newHdrBuf[:24])
	newHdrBuf = uh.encode()
	return b.dev.WriteAt(b.regions.StagingAddr, newHdrBuf)
}

// Rollback validates the backup image and, if valid, restores it to
// the application region, per spec.md §4.7's "Rollback" step.
func (b *Bootloader) Rollback() error {
	if _, err := b.ValidateImage(b.regions.BackupAddr); err != nil {
		return err
	}
	if err := b.copyRegion(b.regions.AppAddr, b.regions.BackupAddr, b.regions.RegionSize); err != nil {
		return err
	}
	_, err := b.ValidateImage(b.regions.AppAddr)
	return err
}
