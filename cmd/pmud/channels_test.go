package main

import (
	"encoding/json"
	"testing"

	"github.com/redline-embedded/pmucore/channel"
	"github.com/redline-embedded/pmucore/configstore"
	"github.com/redline-embedded/pmucore/flashsim"
)

func TestDefaultChannelTableRegistersCleanly(t *testing.T) {
	reg := channel.NewRegistry()
	for _, e := range defaultChannelTable() {
		if outcome := reg.Register(specFromEntry(e)); outcome != channel.OK {
			t.Fatalf("register %+v: %v", e, outcome)
		}
	}
	if got := len(inputChannelIDs(defaultChannelTable())); got != 8 {
		t.Fatalf("got %d analog input ids, want 8", got)
	}
}

func TestLoadChannelTableFallsBackOnVirginDevice(t *testing.T) {
	dev, err := flashsim.OpenFile(t.TempDir()+"/flash.img", 64*1024)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	store := configstore.NewJSONStore(dev, 0, 32*1024, 32*1024)

	entries, err := loadChannelTable(store)
	if err != nil {
		t.Fatalf("loadChannelTable: %v", err)
	}
	if len(entries) != len(defaultChannelTable()) {
		t.Fatalf("got %d entries, want %d default entries", len(entries), len(defaultChannelTable()))
	}
}

func TestLoadChannelTableRoundTripsStoredJSON(t *testing.T) {
	dev, err := flashsim.OpenFile(t.TempDir()+"/flash.img", 64*1024)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	store := configstore.NewJSONStore(dev, 0, 32*1024, 32*1024)

	want := []channelEntry{{ID: 1000, Class: uint8(channel.ClassAnalogInput), Name: "batt", Min: 0, Max: 30000, Enabled: true}}
	raw, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := store.Store(raw, 1); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := loadChannelTable(store)
	if err != nil {
		t.Fatalf("loadChannelTable: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1000 || got[0].Name != "batt" {
		t.Fatalf("got %+v, want one entry matching %+v", got, want[0])
	}
}

func TestFlashLayoutRegionsDoNotOverlap(t *testing.T) {
	l := buildLayout()
	bounds := []struct {
		name string
		lo   uint32
		hi   uint32
	}{
		{"typedA", l.TypedA, l.TypedA + l.TypedSlotSize},
		{"typedB", l.TypedB, l.TypedB + l.TypedSlotSize},
		{"jsonA", l.JSONA, l.JSONA + l.JSONSlotSize},
		{"jsonB", l.JSONB, l.JSONB + l.JSONSlotSize},
		{"app", l.App, l.App + l.AppRegionSize},
		{"backup", l.Backup, l.Backup + l.AppRegionSize},
		{"staging", l.Staging, l.Staging + l.StagingSize},
		{"log", l.Log, l.Log + l.LogSize},
	}
	for i, a := range bounds {
		for j, b := range bounds {
			if i == j {
				continue
			}
			if a.lo < b.hi && b.lo < a.hi {
				t.Fatalf("region %s [%d,%d) overlaps %s [%d,%d)", a.name, a.lo, a.hi, b.name, b.lo, b.hi)
			}
		}
	}
	if l.Total == 0 || l.Total <= l.Log {
		t.Fatalf("layout total %d does not cover the log region ending at %d", l.Total, l.Log+l.LogSize)
	}
}
