package main

import (
	"encoding/json"

	"github.com/redline-embedded/pmucore/channel"
	"github.com/redline-embedded/pmucore/configstore"
)

// channelEntry is the JSON-serializable shape of channel.Spec, stored
// in a configstore.JSONStore slot as the channel table portion of
// Stored Configuration (spec.md §4.1: channel identity/calibration is
// persisted, not compiled in).
type channelEntry struct {
	ID            uint16  `json:"id"`
	Class         uint8   `json:"class"`
	Format        uint8   `json:"format"`
	PhysicalIndex int     `json:"physical_index"`
	Name          string  `json:"name"`
	Unit          string  `json:"unit"`
	Min           int32   `json:"min"`
	Max           int32   `json:"max"`
	Enabled       bool    `json:"enabled"`
	Inverted      bool    `json:"inverted"`
}

func specFromEntry(e channelEntry) channel.Spec {
	return channel.Spec{
		ID:            e.ID,
		Class:         channel.Class(e.Class),
		Format:        channel.Format(e.Format),
		PhysicalIndex: e.PhysicalIndex,
		Name:          e.Name,
		Unit:          e.Unit,
		Min:           e.Min,
		Max:           e.Max,
		Flags:         channel.Flags{Enabled: e.Enabled, Inverted: e.Inverted},
	}
}

// defaultChannelTable is what a board with no JSON configuration ever
// loaded gets: 8 analog inputs, 4 digital inputs, and 8 power outputs,
// enough to exercise every tick/task without requiring a config file.
func defaultChannelTable() []channelEntry {
	var entries []channelEntry
	for i := 0; i < 8; i++ {
		entries = append(entries, channelEntry{
			ID: uint16(channel.IDPhysicalInputMin + i), Class: uint8(channel.ClassAnalogInput),
			Format: uint8(channel.FormatVoltageMV), PhysicalIndex: i,
			Name: "ain", Min: 0, Max: 24000, Enabled: true,
		})
	}
	for i := 0; i < 4; i++ {
		entries = append(entries, channelEntry{
			ID: uint16(channel.IDPhysicalInputMin + 8 + i), Class: uint8(channel.ClassDigitalInput),
			Format: uint8(channel.FormatBoolean), PhysicalIndex: i,
			Name: "din", Min: 0, Max: 1, Enabled: true,
		})
	}
	for i := 0; i < 8; i++ {
		entries = append(entries, channelEntry{
			ID: uint16(channel.IDPhysicalOutputMin + i), Class: uint8(channel.ClassPowerOutput),
			Format: uint8(channel.FormatBoolean), PhysicalIndex: i,
			Name: "pout", Min: 0, Max: 1, Enabled: true,
		})
	}
	return entries
}

// loadChannelTable reads the JSON channel table from store, falling
// back to defaultChannelTable if the slot has never been written
// (JSONStore.Load returns an error on a virgin device).
func loadChannelTable(store *configstore.JSONStore) ([]channelEntry, error) {
	raw, err := store.Load()
	if err != nil {
		return defaultChannelTable(), nil
	}
	var entries []channelEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// inputChannelIDs extracts the physical-input-ordered channel ids used
// to feed CAN analog frames and the protocol's CmdGetInputs handler.
func inputChannelIDs(entries []channelEntry) []uint16 {
	ids := make([]uint16, 0, len(entries))
	for _, e := range entries {
		if e.Class == uint8(channel.ClassAnalogInput) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
