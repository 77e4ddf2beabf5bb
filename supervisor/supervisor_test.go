package supervisor_test

import (
	"testing"

	"github.com/redline-embedded/pmucore/supervisor"
)

type fakePowerDriver struct {
	currentMA [supervisor.NumPowerOutputs]int32
	tempC     [supervisor.NumPowerOutputs]int32
}

func (f *fakePowerDriver) ReadCurrentMA(i int) (int32, error) { return f.currentMA[i], nil }
func (f *fakePowerDriver) ReadTempC(i int) (int32, error)     { return f.tempC[i], nil }
func (f *fakePowerDriver) Drive(i int, on bool, duty int) error { return nil }

type fakeBridgeDriver struct {
	currentMA [supervisor.NumHBridges]int32
}

func (f *fakeBridgeDriver) ReadCurrentMA(i int) (int32, error) { return f.currentMA[i], nil }
func (f *fakeBridgeDriver) Drive(i int, forward bool, duty int, coast, brake bool) error {
	return nil
}

func TestSetStateAndGetCurrent(t *testing.T) {
	drv := &fakePowerDriver{}
	drv.currentMA[0] = 500
	sup := supervisor.NewSupervisor(drv, &fakeBridgeDriver{})
	if err := sup.SetState(0, true); err != nil {
		t.Fatalf("set state: %v", err)
	}
	sup.Tick1kHz(0)
	cur, err := sup.GetCurrent(0)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if cur <= 0 {
		t.Fatalf("got %d, want filtered current > 0 after one tick", cur)
	}
}

func TestOvercurrentTripsFaultAfterDebounce(t *testing.T) {
	drv := &fakePowerDriver{}
	drv.currentMA[0] = 20000 // above DefaultThresholds().CurrentLimitMA
	sup := supervisor.NewSupervisor(drv, &fakeBridgeDriver{})
	sup.SetState(0, true)

	for ms := int64(0); ms < 100; ms++ {
		sup.Tick1kHz(ms)
		snap, _ := sup.Snapshot(0)
		if snap.State == supervisor.PowerFault {
			if snap.FaultFlags&supervisor.FaultOvercurrent == 0 {
				t.Fatalf("faulted without overcurrent bit set: %+v", snap)
			}
			return
		}
	}
	t.Fatalf("expected overcurrent fault within 100 ticks")
}

func TestFaultLockoutRejectsCommands(t *testing.T) {
	drv := &fakePowerDriver{}
	drv.currentMA[0] = 20000
	sup := supervisor.NewSupervisor(drv, &fakeBridgeDriver{})
	sup.SetState(0, true)
	for ms := int64(0); ms < 500; ms++ {
		sup.Tick1kHz(ms)
		snap, _ := sup.Snapshot(0)
		if snap.FaultCount >= 3 {
			break
		}
		if snap.State == supervisor.PowerFault {
			sup.SetState(0, true) // re-arm to accumulate further faults
		}
	}
	if err := sup.SetState(0, true); err != supervisor.ErrLockedOut {
		t.Fatalf("got %v, want ErrLockedOut after repeated faults", err)
	}
}

func TestClearFaultsUnlocks(t *testing.T) {
	drv := &fakePowerDriver{}
	drv.currentMA[0] = 20000
	sup := supervisor.NewSupervisor(drv, &fakeBridgeDriver{})
	sup.SetState(0, true)
	for ms := int64(0); ms < 100; ms++ {
		sup.Tick1kHz(ms)
	}
	if err := sup.ClearFaults(0); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := sup.SetState(0, true); err != nil {
		t.Fatalf("got %v, want success after ClearFaults", err)
	}
}

func TestHBridgeForwardReverseDrive(t *testing.T) {
	sup := supervisor.NewSupervisor(&fakePowerDriver{}, &fakeBridgeDriver{})
	if err := sup.HbridgeSetMode(0, supervisor.ModeForward, 500); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	sup.Tick1kHz(0)
	snap, _ := sup.BridgeSnapshot(0)
	if snap.Mode != supervisor.ModeForward || snap.Duty != 500 {
		t.Fatalf("got %+v, want forward @500", snap)
	}
}

func TestWiperParkStaysRunningShortOfTimeout(t *testing.T) {
	sup := supervisor.NewSupervisor(&fakePowerDriver{}, &fakeBridgeDriver{})
	sup.HbridgeSetPosition(0, 500)
	for ms := int64(0); ms < 10; ms++ {
		sup.Tick1kHz(ms)
	}
	// Without a real position feedback driver, position never advances in
	// this host simulation; verify wiper_park stays in a non-fault state
	// short of the park timeout instead of asserting Parked.
	snap, _ := sup.BridgeSnapshot(0)
	if snap.State == supervisor.BridgeFault {
		t.Fatalf("unexpected fault before park timeout: %+v", snap)
	}
}

func TestPIDConvergesTowardTarget(t *testing.T) {
	sup := supervisor.NewSupervisor(&fakePowerDriver{}, &fakeBridgeDriver{})
	sup.HbridgeSetPosition(0, 1000)
	sup.HbridgeSetPID(0, 1.0, 0, 0)
	for ms := int64(0); ms < 1000; ms++ {
		sup.Tick1kHz(ms)
	}
	snap, _ := sup.BridgeSnapshot(0)
	if snap.Duty == 0 {
		t.Fatalf("expected nonzero duty under PID with large error")
	}
}
