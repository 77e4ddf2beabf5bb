package configstore_test

import (
	"path/filepath"
	"testing"

	"github.com/redline-embedded/pmucore/configstore"
	"github.com/redline-embedded/pmucore/flashsim"
)

func newDevice(t *testing.T, size uint32) *flashsim.FileDevice {
	t.Helper()
	dev, err := flashsim.OpenFile(filepath.Join(t.TempDir(), "flash.bin"), size)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestTypedStoreRoundTrip(t *testing.T) {
	dev := newDevice(t, 4096)
	store := configstore.NewTypedStore(dev, 0, 2048)

	cfg := configstore.DefaultTypedConfig()
	cfg.DeviceID = 42
	copy(cfg.Serial[:], []byte("PMU-TEST-0001"))
	cfg.Protection.CurrentLimitMA = 12000

	if err := store.Store(cfg, 1, 1000); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.DeviceID != 42 || got.Protection.CurrentLimitMA != 12000 {
		t.Fatalf("got %+v, want DeviceID=42 CurrentLimitMA=12000", got)
	}
}

func TestTypedStoreDetectsBitFlip(t *testing.T) {
	dev := newDevice(t, 4096)
	store := configstore.NewTypedStore(dev, 0, 2048)
	cfg := configstore.DefaultTypedConfig()
	store.Store(cfg, 1, 1000)

	buf := make([]byte, 1)
	dev.ReadAt(40, buf)
	buf[0] ^= 0x01
	dev.WriteAt(40, buf)

	if _, err := store.Load(); err == nil {
		t.Fatalf("expected a single-bit flip in stored data to be detected")
	}
}

func TestTypedStoreLoadOnVirginFlashReturnsDefaultsAndError(t *testing.T) {
	dev := newDevice(t, 4096)
	store := configstore.NewTypedStore(dev, 0, 2048)
	cfg, err := store.Load()
	if err == nil {
		t.Fatalf("expected virgin flash to fail validation")
	}
	if cfg.UpdateRateHz != configstore.DefaultTypedConfig().UpdateRateHz {
		t.Fatalf("expected defaults on load failure")
	}
}

func TestJSONStoreDualSlotSelection(t *testing.T) {
	dev := newDevice(t, 8192)
	store := configstore.NewJSONStore(dev, 0, 4096, 4096)

	store.Store([]byte(`{"v":1}`), 100)
	store.Store([]byte(`{"v":2}`), 200)
	store.Store([]byte(`{"v":3}`), 300)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"v":3}` {
		t.Fatalf("got %s, want the most recently written blob", got)
	}
}

func TestJSONStoreSurvivesInterruptedWrite(t *testing.T) {
	dev := newDevice(t, 8192)
	store := configstore.NewJSONStore(dev, 0, 4096, 4096)

	store.Store([]byte(`{"v":1}`), 100) // slot A, write_count 1
	store.Store([]byte(`{"v":2}`), 200) // slot B, write_count 2
	store.Store([]byte(`{"v":3}`), 300) // slot A, write_count 3

	// Simulate the third write landing in slot A (lower write_count)
	// but the reset/power-loss happening before its header CRC is
	// written: corrupt slot A's header after a real Store call so it
	// no longer validates, standing in for a torn write.
	corrupt := make([]byte, 1)
	dev.ReadAt(0, corrupt)
	corrupt[0] ^= 0xFF
	dev.WriteAt(0, corrupt)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"v":2}` {
		t.Fatalf("got %s, want the older but valid slot B blob", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	data := []byte(`{"device_id":42}`)
	env := configstore.Export(data)
	got, err := configstore.Import(env)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %s, want %s", got, data)
	}
}

func TestImportRejectsCorruptedCRC(t *testing.T) {
	env := configstore.Export([]byte("hello"))
	env[len(env)-1] ^= 0xFF
	if _, err := configstore.Import(env); err != configstore.ErrEnvelopeCRC {
		t.Fatalf("got %v, want ErrEnvelopeCRC", err)
	}
}
