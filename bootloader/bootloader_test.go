package bootloader_test

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/redline-embedded/pmucore/bootloader"
	"github.com/redline-embedded/pmucore/flashsim"
)

const (
	appAddr     = 0
	backupAddr  = 0x10000
	regionSize  = 0x10000
	stagingAddr = 0x20000
	stagingSize = 0x10000
	sharedAddr  = 0x30000
)

func newTestDevice(t *testing.T) *flashsim.FileDevice {
	t.Helper()
	dev, err := flashsim.OpenFile(filepath.Join(t.TempDir(), "flash.bin"), 0x40000)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func testRegions() bootloader.Regions {
	return bootloader.Regions{
		AppAddr:     appAddr,
		BackupAddr:  backupAddr,
		RegionSize:  regionSize,
		StagingAddr: stagingAddr,
		StagingSize: stagingSize,
		SharedAddr:  sharedAddr,
		SRAMRange:   bootloader.AddressRange{Min: 0x20000000, Max: 0x20020000},
		FlashRange:  bootloader.AddressRange{Min: 0, Max: backupAddr + regionSize},
	}
}

// writeValidImage writes a firmware header + vector table + body at
// addr so ValidateImage accepts it.
func writeValidImage(t *testing.T, dev flashsim.Device, addr uint32, body []byte) {
	t.Helper()
	vtAddr := addr + 256 // inside the region, away from the header
	vt := make([]byte, 8)
	binary.LittleEndian.PutUint32(vt[0:4], 0x20001000) // initial SP, in SRAM range
	binary.LittleEndian.PutUint32(vt[4:8], addr+4)     // reset handler, in flash range
	if err := dev.WriteAt(vtAddr, vt); err != nil {
		t.Fatalf("write vector table: %v", err)
	}

	headerBuf := make([]byte, 32)
	binary.LittleEndian.PutUint32(headerBuf[0:4], bootloader.MagicFirmware)
	headerBuf[4] = 1 // version major
	binary.LittleEndian.PutUint32(headerBuf[8:12], vtAddr)
	binary.LittleEndian.PutUint32(headerBuf[12:16], uint32(len(body)))
	binary.LittleEndian.PutUint32(headerBuf[16:20], bootloader.CRC32(body))
	binary.LittleEndian.PutUint32(headerBuf[28:32], bootloader.CRC32(headerBuf[:28]))

	if err := dev.WriteAt(addr, headerBuf); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := dev.WriteAt(addr+32, body); err != nil {
		t.Fatalf("write body: %v", err)
	}
}

func TestValidateImageAcceptsWellFormedImage(t *testing.T) {
	dev := newTestDevice(t)
	body := make([]byte, 512)
	for i := range body {
		body[i] = byte(i)
	}
	writeValidImage(t, dev, appAddr, body)

	b := bootloader.New(dev, testRegions(), nil, 64)
	if _, err := b.ValidateImage(appAddr); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateImageRejectsCorruptedCRC(t *testing.T) {
	dev := newTestDevice(t)
	body := make([]byte, 64)
	writeValidImage(t, dev, appAddr, body)

	corrupt := make([]byte, 1)
	dev.ReadAt(32+10, corrupt)
	corrupt[0] ^= 0xFF
	dev.WriteAt(32+10, corrupt)

	b := bootloader.New(dev, testRegions(), nil, 64)
	if _, err := b.ValidateImage(appAddr); err == nil {
		t.Fatalf("expected corrupted application body to fail validation")
	}
}

func TestRollbackRestoresBackupToApplication(t *testing.T) {
	dev := newTestDevice(t)
	goodBody := make([]byte, 64)
	for i := range goodBody {
		goodBody[i] = 0xAA
	}
	writeValidImage(t, dev, backupAddr, goodBody)

	// corrupt the application region so it no longer validates
	badBody := make([]byte, 64)
	writeValidImage(t, dev, appAddr, badBody)
	corrupt := make([]byte, 1)
	dev.ReadAt(32+5, corrupt)
	corrupt[0] ^= 0xFF
	dev.WriteAt(32+5, corrupt)

	b := bootloader.New(dev, testRegions(), nil, 64)
	if _, err := b.ValidateImage(appAddr); err == nil {
		t.Fatalf("expected the deliberately corrupted application to fail validation")
	}

	if err := b.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := b.ValidateImage(appAddr); err != nil {
		t.Fatalf("expected application region to validate after rollback, got %v", err)
	}
}

func TestRunSequenceBootsIntoValidApplication(t *testing.T) {
	dev := newTestDevice(t)
	writeValidImage(t, dev, appAddr, make([]byte, 64))

	b := bootloader.New(dev, testRegions(), nil, 64)
	res, err := b.RunSequence(bootloader.RunOptions{})
	if err != nil {
		t.Fatalf("run sequence: %v", err)
	}
	if !res.BootIntoApp {
		t.Fatalf("expected BootIntoApp true for a valid application")
	}
	if res.AppBootCount != 1 {
		t.Fatalf("got app boot count %d, want 1 on first boot", res.AppBootCount)
	}
}

func TestRunSequenceStrictlyIncreasesBootCountUntilCleared(t *testing.T) {
	dev := newTestDevice(t)
	writeValidImage(t, dev, appAddr, make([]byte, 64))
	b := bootloader.New(dev, testRegions(), nil, 64)

	for i := 1; i <= 2; i++ {
		res, err := b.RunSequence(bootloader.RunOptions{})
		if err != nil {
			t.Fatalf("run sequence: %v", err)
		}
		if int(res.AppBootCount) != i {
			t.Fatalf("got boot count %d, want %d", res.AppBootCount, i)
		}
	}

	if err := b.ClearBootCount(); err != nil {
		t.Fatalf("clear boot count: %v", err)
	}
	res, err := b.RunSequence(bootloader.RunOptions{})
	if err != nil {
		t.Fatalf("run sequence: %v", err)
	}
	if res.AppBootCount != 1 {
		t.Fatalf("got boot count %d, want reset to 1 after ClearBootCount", res.AppBootCount)
	}
}

func TestRunSequenceRemainsResidentWhenBootButtonAsserted(t *testing.T) {
	dev := newTestDevice(t)
	writeValidImage(t, dev, appAddr, make([]byte, 64))
	b := bootloader.New(dev, testRegions(), nil, 64)

	res, err := b.RunSequence(bootloader.RunOptions{BootButtonAsserted: true})
	if err != nil {
		t.Fatalf("run sequence: %v", err)
	}
	if res.BootIntoApp {
		t.Fatalf("expected to remain in bootloader when the boot button is asserted")
	}
}

func TestNoopVerifierAccepts(t *testing.T) {
	var v bootloader.NoopVerifier
	if err := v.Verify(nil, bootloader.UpdateHeader{}); err != nil {
		t.Fatalf("NoopVerifier should never reject: %v", err)
	}
}
