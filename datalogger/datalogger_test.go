package datalogger_test

import (
	"path/filepath"
	"testing"

	"github.com/redline-embedded/pmucore/datalogger"
	"github.com/redline-embedded/pmucore/flashsim"
)

func newDevice(t *testing.T, size uint32) *flashsim.FileDevice {
	t.Helper()
	dev, err := flashsim.OpenFile(filepath.Join(t.TempDir(), "log.bin"), size)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestSessionRoundTripsThroughPagedWrites(t *testing.T) {
	dev := newDevice(t, 0x10000)
	channels := []uint16{1000, 1001, 1002}

	log, err := datalogger.NewSession(dev, 0, 0x8000, 42, 1000, 1000, channels, 32, 4)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	for i := 0; i < 20; i++ {
		vals := []int32{int32(i), int32(i * 2), int32(-i)}
		if err := log.Append(uint32(1000+i), vals); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if err := log.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	sessions, err := datalogger.ScanSessions(dev, 0, 0x8000, 4)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	hdr := sessions[0]
	if hdr.SessionID != 42 {
		t.Fatalf("got session id %d, want 42", hdr.SessionID)
	}
	if hdr.ChannelCount != 3 {
		t.Fatalf("got channel count %d, want 3", hdr.ChannelCount)
	}
	wantData := uint32(20 * (4 + 3*4))
	if hdr.DataSize != wantData {
		t.Fatalf("got data size %d, want %d", hdr.DataSize, wantData)
	}
}

func TestAppendRejectsWrongValueCount(t *testing.T) {
	dev := newDevice(t, 0x4000)
	log, err := datalogger.NewSession(dev, 0, 0x2000, 1, 0, 100, []uint16{1, 2}, 64, 0)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := log.Append(0, []int32{1}); err == nil {
		t.Fatalf("expected a value-count mismatch error")
	}
}

func TestScanSessionsSkipsErasedRegion(t *testing.T) {
	dev := newDevice(t, 0x4000)
	sessions, err := datalogger.ScanSessions(dev, 0, 0x4000, 4)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("got %d sessions on virgin flash, want 0", len(sessions))
	}
}

func TestScanSessionsFindsMultipleSessionsByOffset(t *testing.T) {
	dev := newDevice(t, 0x10000)

	logA, err := datalogger.NewSession(dev, 0, 0x4000, 1, 0, 50, []uint16{1}, 32, 0)
	if err != nil {
		t.Fatalf("session A: %v", err)
	}
	if err := logA.Append(0, []int32{7}); err != nil {
		t.Fatalf("append A: %v", err)
	}
	if err := logA.Stop(); err != nil {
		t.Fatalf("stop A: %v", err)
	}

	logB, err := datalogger.NewSession(dev, 0x4000, 0x4000, 2, 0, 50, []uint16{1}, 32, 0)
	if err != nil {
		t.Fatalf("session B: %v", err)
	}
	if err := logB.Append(0, []int32{9}); err != nil {
		t.Fatalf("append B: %v", err)
	}
	if err := logB.Stop(); err != nil {
		t.Fatalf("stop B: %v", err)
	}

	sessions, err := datalogger.ScanSessions(dev, 0, 0x8000, 4)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].SessionID != 1 || sessions[1].SessionID != 2 {
		t.Fatalf("got session ids %d,%d, want 1,2", sessions[0].SessionID, sessions[1].SessionID)
	}
}

func TestHistoryTracksRecentValuesPerChannel(t *testing.T) {
	dev := newDevice(t, 0x4000)
	log, err := datalogger.NewSession(dev, 0, 0x2000, 1, 0, 100, []uint16{5, 6}, 64, 3)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := log.Append(uint32(i), []int32{int32(i), int32(i * 10)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	recent := log.History().Recent(5)
	if len(recent) != 3 {
		t.Fatalf("got history depth %d, want 3", len(recent))
	}
	if recent[len(recent)-1] != 4 {
		t.Fatalf("got most recent value %v, want 4", recent[len(recent)-1])
	}
}
