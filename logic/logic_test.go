package logic_test

import (
	"testing"

	"github.com/redline-embedded/pmucore/channel"
	"github.com/redline-embedded/pmucore/logic"
)

func TestInstallBounds(t *testing.T) {
	e := logic.NewEngine()
	if err := e.Install(-1, logic.Function{}); err != logic.ErrFunctionIndex {
		t.Fatalf("got %v, want ErrFunctionIndex", err)
	}
	if err := e.Install(logic.KFunctions, logic.Function{}); err != logic.ErrFunctionIndex {
		t.Fatalf("got %v, want ErrFunctionIndex", err)
	}
	tooMany := make([]logic.Operation, logic.KOpsPerFn+1)
	if err := e.Install(0, logic.Function{Enabled: true, Operations: tooMany}); err != logic.ErrTooManyOps {
		t.Fatalf("got %v, want ErrTooManyOps", err)
	}
}

func TestExecuteAndWritesVChannel(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	fn := logic.Function{
		Enabled: true,
		Operations: []logic.Operation{
			{Kind: logic.OpAnd, A: logic.Const(1), B: logic.Const(1), Output: 5},
		},
	}
	if err := e.Install(0, fn); err != nil {
		t.Fatalf("install: %v", err)
	}
	e.Execute(reg, nil, 0)
	if got := e.GetVChannel(5); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
}

func TestDisabledFunctionSkipped(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	fn := logic.Function{
		Enabled: false,
		Operations: []logic.Operation{
			{Kind: logic.OpSet, Output: 7},
		},
	}
	if err := e.Install(0, fn); err != nil {
		t.Fatalf("install: %v", err)
	}
	e.Execute(reg, nil, 0)
	if got := e.GetVChannel(7); got != 0 {
		t.Fatalf("got %v, want 0 (function disabled)", got)
	}
}

func TestDivisionByNearZeroYieldsZero(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	fn := logic.Function{
		Enabled: true,
		Operations: []logic.Operation{
			{Kind: logic.OpDiv, A: logic.Const(10), B: logic.Const(0), Output: 0},
		},
	}
	e.Install(0, fn)
	e.Execute(reg, nil, 0)
	if got := e.GetVChannel(0); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestEdgeRisingAcrossTicks(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	reg.Register(channel.Spec{ID: 3100, Class: channel.ClassVirtualOutput, Min: 0, Max: 1, Flags: channel.Flags{Enabled: true}})

	fn := logic.Function{
		Enabled: true,
		Operations: []logic.Operation{
			{Kind: logic.OpEdgeRising, A: logic.Chan(3100), Output: 10},
		},
	}
	e.Install(0, fn)

	// tick 1: channel starts at 0, no rising edge yet
	e.Execute(reg, nil, 0)
	if got := e.GetVChannel(10); got != 0 {
		t.Fatalf("tick1: got %v, want 0", got)
	}

	reg.SetValue(3100, 1)
	// tick 2: 0 -> 1 is a rising edge
	e.Execute(reg, nil, 1)
	if got := e.GetVChannel(10); got != 1 {
		t.Fatalf("tick2: got %v, want 1 (rising edge)", got)
	}

	// tick 3: held high, no further edge
	e.Execute(reg, nil, 2)
	if got := e.GetVChannel(10); got != 0 {
		t.Fatalf("tick3: got %v, want 0 (no edge while held)", got)
	}
}

func TestToggleFlipsOnRisingEdgeOnly(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	reg.Register(channel.Spec{ID: 3101, Class: channel.ClassVirtualOutput, Min: 0, Max: 1, Flags: channel.Flags{Enabled: true}})

	fn := logic.Function{
		Enabled: true,
		Operations: []logic.Operation{
			{Kind: logic.OpToggle, A: logic.Chan(3101), Output: 11},
		},
	}
	e.Install(0, fn)

	e.Execute(reg, nil, 0) // no edge, holds at 0
	if got := e.GetVChannel(11); got != 0 {
		t.Fatalf("tick1: got %v, want 0", got)
	}

	reg.SetValue(3101, 1)
	e.Execute(reg, nil, 1) // rising edge, flips to 1
	if got := e.GetVChannel(11); got != 1 {
		t.Fatalf("tick2: got %v, want 1", got)
	}

	e.Execute(reg, nil, 2) // held high, no new edge, holds at 1
	if got := e.GetVChannel(11); got != 1 {
		t.Fatalf("tick3: got %v, want 1 (held)", got)
	}
}

func TestHysteresisLatchesOnThresholds(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	fn := logic.Function{
		Enabled: true,
		Operations: []logic.Operation{
			{Kind: logic.OpHysteresis, A: logic.Const(0), B: logic.Const(10), C: logic.Const(90), Output: 12},
		},
	}
	e.Install(0, fn)
	e.Execute(reg, nil, 0)
	if got := e.GetVChannel(12); got != 0 {
		t.Fatalf("got %v, want 0 below hi", got)
	}

	fn.Operations[0].A = logic.Const(95)
	e.Install(0, fn)
	e.Execute(reg, nil, 1)
	if got := e.GetVChannel(12); got != 1 {
		t.Fatalf("got %v, want 1 above hi", got)
	}

	fn.Operations[0].A = logic.Const(50)
	e.Install(0, fn)
	e.Execute(reg, nil, 2)
	if got := e.GetVChannel(12); got != 1 {
		t.Fatalf("got %v, want 1 still latched between thresholds", got)
	}

	fn.Operations[0].A = logic.Const(5)
	e.Install(0, fn)
	e.Execute(reg, nil, 3)
	if got := e.GetVChannel(12); got != 0 {
		t.Fatalf("got %v, want 0 below lo", got)
	}
}

func TestTimerSingleShot(t *testing.T) {
	e := logic.NewEngine()
	if err := e.StartTimer(0, 100, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if e.TimerExpired(0) {
		t.Fatalf("expired too early")
	}
	reg := channel.NewRegistry()
	e.Execute(reg, nil, 50)
	if e.TimerExpired(0) {
		t.Fatalf("expired at t=50, want not yet")
	}
	e.Execute(reg, nil, 150)
	if !e.TimerExpired(0) {
		t.Fatalf("want expired at t=150")
	}
}

func TestAllFunctionsRunUnderOpCap(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	for i := 0; i < logic.KFunctions; i++ {
		e.Install(i, logic.Function{
			Enabled: true,
			Operations: []logic.Operation{
				{Kind: logic.OpSet, Output: i},
			},
		})
	}
	e.Execute(reg, nil, 0)
	// KFunctions (100) single-op functions is well under OpCap (1024);
	// every output should have been written.
	for i := 0; i < logic.KFunctions; i++ {
		if got := e.GetVChannel(i); got != 1 {
			t.Fatalf("vchan %d: got %v, want 1", i, got)
		}
	}
}

type fakeSink struct {
	onCalls    int
	lastOn     bool
	lastDuty   int
	bridgeCall bool
	coast      bool
	dir        logic.HBridgeDirection
}

func (f *fakeSink) SetPowerOutput(index int, on bool, dutyPerMille int) {
	f.onCalls++
	f.lastOn = on
	f.lastDuty = dutyPerMille
}

func (f *fakeSink) SetHBridge(index int, dir logic.HBridgeDirection, dutyPerMille int, coast bool) {
	f.bridgeCall = true
	f.dir = dir
	f.coast = coast
	f.lastDuty = dutyPerMille
}

func TestApplyPowerOutputDestination(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	if err := e.BindDestination(logic.Destination{VChan: 20, Kind: logic.DestPowerOutput, Index: 0}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	e.Install(0, logic.Function{
		Enabled: true,
		Operations: []logic.Operation{
			{Kind: logic.OpSet, Output: 20}, // SET -> 1.0 -> duty 1000 -> on
		},
	})
	sink := &fakeSink{}
	e.Execute(reg, sink, 0)
	if sink.onCalls != 1 || !sink.lastOn || sink.lastDuty != 1000 {
		t.Fatalf("sink=%+v, want one on-call at full duty", sink)
	}
}

func TestSourceBindingRefreshesFromChannel(t *testing.T) {
	e := logic.NewEngine()
	reg := channel.NewRegistry()
	reg.Register(channel.Spec{ID: 1500, Class: channel.ClassAnalogInput, Min: 0, Max: 4095, Flags: channel.Flags{Enabled: true}})
	reg.UpdateValue(1500, 2000)

	if err := e.BindSource(30, 1500, 0.5); err != nil {
		t.Fatalf("bind: %v", err)
	}
	e.Execute(reg, nil, 0)
	if got := e.GetVChannel(30); got != 1000 {
		t.Fatalf("got %v, want 1000 (2000*0.5)", got)
	}
}
