package main

import (
	"github.com/redline-embedded/pmucore/bootloader"
)

// flashLayout carves the one simulated flash device Config.FlashPath
// names into the fixed regions spec.md §4.6/§4.7 assume: dual-slot
// typed config, dual-slot JSON config, application + backup images, a
// staging slot, battery-backed shared state, and a data logger region.
// Real firmware would pull these addresses from a linker script; here
// they are simply compile-time constants sized generously for a host
// simulation.
type flashLayout struct {
	TypedA, TypedB   uint32
	TypedSlotSize    uint32
	JSONA, JSONB     uint32
	JSONSlotSize     uint32
	App, Backup      uint32
	AppRegionSize    uint32
	Staging          uint32
	StagingSize      uint32
	Shared           uint32
	Log              uint32
	LogSize          uint32
	Total            uint32
}

// Layout is the one flash map pmud wires every store against.
var Layout = buildLayout()

func buildLayout() flashLayout {
	const (
		typedSlotSize = 4 * 1024
		jsonSlotSize  = 16 * 1024
		appRegionSize = 128 * 1024
		stagingSize   = 128 * 1024
		sharedSize    = 4 * 1024
		logSize       = 512 * 1024
	)
	var l flashLayout
	addr := uint32(0)
	l.TypedA, addr = addr, addr+typedSlotSize
	l.TypedB, addr = addr, addr+typedSlotSize
	l.TypedSlotSize = typedSlotSize
	l.JSONA, addr = addr, addr+jsonSlotSize
	l.JSONB, addr = addr, addr+jsonSlotSize
	l.JSONSlotSize = jsonSlotSize
	l.App, addr = addr, addr+appRegionSize
	l.Backup, addr = addr, addr+appRegionSize
	l.AppRegionSize = appRegionSize
	l.Staging, addr = addr, addr+stagingSize
	l.StagingSize = stagingSize
	l.Shared, addr = addr, addr+sharedSize
	l.Log, addr = addr, addr+logSize
	l.LogSize = logSize
	l.Total = addr
	return l
}

// bootloaderRegions maps flashLayout onto bootloader.Regions. The
// vector-table sanity ranges are a generic Cortex-M layout: SRAM at
// 0x2000_0000 and flash (where this simulated device is mapped) at
// 0x0800_0000, matching the constants most STM32-class PMU boards use.
func (l flashLayout) bootloaderRegions() bootloader.Regions {
	return bootloader.Regions{
		AppAddr:     l.App,
		BackupAddr:  l.Backup,
		RegionSize:  l.AppRegionSize,
		StagingAddr: l.Staging,
		StagingSize: l.StagingSize,
		SharedAddr:  l.Shared,
		SRAMRange:   bootloader.AddressRange{Min: 0x20000000, Max: 0x2002FFFF},
		FlashRange:  bootloader.AddressRange{Min: 0x08000000, Max: 0x080FFFFF},
	}
}
