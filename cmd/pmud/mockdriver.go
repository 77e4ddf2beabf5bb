package main

import (
	"sync"

	"github.com/redline-embedded/pmucore/supervisor"
)

// mockPowerDriver and mockBridgeDriver stand in for the PMU's physical
// current-sense and gate-drive hardware, the same role
// nkt.NewMockSuperK plays for a laser head nobody has plugged in: a
// structurally faithful implementation of the driver interface that
// never touches real silicon, letting `pmud run` (with the Mock config
// key set, the default) exercise the whole Core without a board attached.
type mockPowerDriver struct {
	mu   sync.Mutex
	on   [supervisor.NumPowerOutputs]bool
	duty [supervisor.NumPowerOutputs]int
}

func (d *mockPowerDriver) ReadCurrentMA(index int) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.on[index] {
		return 0, nil
	}
	return int32(500 + d.duty[index]/4), nil
}

func (d *mockPowerDriver) ReadTempC(index int) (int32, error) {
	return 30, nil
}

func (d *mockPowerDriver) Drive(index int, on bool, dutyPerMille int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.on[index] = on
	d.duty[index] = dutyPerMille
	return nil
}

type mockBridgeDriver struct {
	mu sync.Mutex
}

func (d *mockBridgeDriver) ReadCurrentMA(index int) (int32, error) {
	return 250, nil
}

func (d *mockBridgeDriver) Drive(index int, forward bool, dutyPerMille int, coast, brake bool) error {
	return nil
}

// mockChannelInputDriver stands in for raw ADC/digital-pin sampling
// hardware, the physical-input counterpart to mockPowerDriver and
// mockBridgeDriver: a channel.InputDriver that never touches real
// silicon, letting channel.ClassAnalogInput/ClassDigitalInput reads
// resolve to something other than a permanently stale cache.
type mockChannelInputDriver struct{}

func (mockChannelInputDriver) Sample(physicalIndex int) (int32, error) {
	return 2500, nil
}
