package flashsim_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/redline-embedded/pmucore/flashsim"
)

func TestNewDeviceReadsAsErased(t *testing.T) {
	dev, err := flashsim.OpenFile(filepath.Join(t.TempDir(), "flash.bin"), 4096)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer dev.Close()

	buf := make([]byte, 16)
	if err := dev.ReadAt(0, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, b := range buf {
		if b != flashsim.ErasedByte {
			t.Fatalf("fresh device not erased: %X", buf)
		}
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dev, err := flashsim.OpenFile(filepath.Join(t.TempDir(), "flash.bin"), 4096)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer dev.Close()

	data := []byte("configuration-blob")
	if err := dev.WriteAt(128, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(data))
	if err := dev.ReadAt(128, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("got %q, want %q", buf, data)
	}
}

func TestEraseResetsToErasedByte(t *testing.T) {
	dev, err := flashsim.OpenFile(filepath.Join(t.TempDir(), "flash.bin"), 4096)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer dev.Close()

	dev.WriteAt(0, []byte{0x01, 0x02, 0x03})
	if err := dev.Erase(0, 3); err != nil {
		t.Fatalf("erase: %v", err)
	}
	buf := make([]byte, 3)
	dev.ReadAt(0, buf)
	for _, b := range buf {
		if b != flashsim.ErasedByte {
			t.Fatalf("erase left %X, want all 0xFF", buf)
		}
	}
}

func TestOutOfRangeRejected(t *testing.T) {
	dev, err := flashsim.OpenFile(filepath.Join(t.TempDir(), "flash.bin"), 64)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer dev.Close()

	if err := dev.WriteAt(60, make([]byte, 16)); err != flashsim.ErrOutOfRange {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}
}

func TestReopenPreservesSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	dev, err := flashsim.OpenFile(path, 4096)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	dev.WriteAt(0, []byte("persisted"))
	dev.Close()

	dev2, err := flashsim.OpenFile(path, 4096)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer dev2.Close()
	if dev2.Size() != 4096 {
		t.Fatalf("got size %d, want 4096", dev2.Size())
	}
	buf := make([]byte, len("persisted"))
	dev2.ReadAt(0, buf)
	if string(buf) != "persisted" {
		t.Fatalf("got %q, want persisted data to survive reopen", buf)
	}
}
