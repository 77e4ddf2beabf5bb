package canbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/redline-embedded/pmucore/canbus"
)

type fakeTx struct {
	frames []canbus.Frame
}

func (f *fakeTx) Publish(frame canbus.Frame) error {
	f.frames = append(f.frames, frame)
	return nil
}

func testSources() canbus.Sources {
	return canbus.Sources{
		AnalogInput:       func(i int) uint16 { return uint16(1000 + i) },
		DigitalInputs:     func() uint8 { return 0b10101010 },
		OutputStates:      func() uint32 { return 0x3FFFFFFF },
		OutputFaultFlags:  func() uint8 { return 0x01 },
		BatteryMilliVolts: func() uint16 { return 13800 },
		TotalMilliAmps:    func() uint16 { return 4500 },
		MCUTempC:          func() int16 { return 42 },
		BoardTempC:        func() int16 { return 35 },
		BridgeStatus:      func(b int) (uint8, uint8) { return uint8(b), uint8(b * 10) },
	}
}

func TestDefaultFrameSpecsCoversAllSixteenFrames(t *testing.T) {
	specs := canbus.DefaultFrameSpecs(testSources(), canbus.RateInputs20Hz, canbus.RateExtended20Hz)
	if len(specs) != canbus.FrameCount {
		t.Fatalf("got %d frame specs, want %d", len(specs), canbus.FrameCount)
	}
	for i, s := range specs {
		if s.Index != i {
			t.Fatalf("spec %d has Index %d", i, s.Index)
		}
		extended := i >= canbus.StandardFrameCount
		if s.Extended != extended {
			t.Fatalf("spec %d extended=%v, want %v", i, s.Extended, extended)
		}
	}
}

func TestPumpPublishesOnlyFramesTheLimiterAdmits(t *testing.T) {
	tx := &fakeTx{}
	specs := canbus.DefaultFrameSpecs(testSources(), canbus.RateInputs20Hz, canbus.RateExtended20Hz)
	stream := canbus.New(tx, 0x100, specs)

	if err := stream.Pump(0); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if len(tx.frames) != canbus.FrameCount {
		t.Fatalf("got %d frames on first pump (burst 1 admits one), want %d", len(tx.frames), canbus.FrameCount)
	}

	tx.frames = nil
	if err := stream.Pump(1); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if len(tx.frames) != 0 {
		t.Fatalf("got %d frames on immediate second pump, want 0 (limiter not yet refilled)", len(tx.frames))
	}
}

func TestExtendedFramesCarryTheExtendedIDBit(t *testing.T) {
	tx := &fakeTx{}
	specs := canbus.DefaultFrameSpecs(testSources(), canbus.RateInputs20Hz, canbus.RateExtended20Hz)
	stream := canbus.New(tx, 0x100, specs)
	if err := stream.Pump(0); err != nil {
		t.Fatalf("pump: %v", err)
	}
	for i, frame := range tx.frames {
		wantExtended := i >= canbus.StandardFrameCount
		gotExtended := frame.ID&0x80000000 != 0
		if gotExtended != wantExtended {
			t.Fatalf("frame %d extended=%v, want %v", i, gotExtended, wantExtended)
		}
	}
}

func TestAnalogInputFramesPackFourValuesLittleEndian(t *testing.T) {
	specs := canbus.DefaultFrameSpecs(testSources(), canbus.RateInputs20Hz, canbus.RateExtended20Hz)
	body := specs[0].Build(0)
	got := uint16(body[0]) | uint16(body[1])<<8
	if got != 1000 {
		t.Fatalf("got first analog slot %d, want 1000", got)
	}
}

func TestBridgeStatusFrameEncodesAllFourBridges(t *testing.T) {
	specs := canbus.DefaultFrameSpecs(testSources(), canbus.RateInputs20Hz, canbus.RateExtended20Hz)
	body := specs[11].Build(0)
	for b := 0; b < 4; b++ {
		if body[b*2] != uint8(b) || body[b*2+1] != uint8(b*10) {
			t.Fatalf("bridge %d encoded as %d,%d", b, body[b*2], body[b*2+1])
		}
	}
}

func TestWaitAndPublishRespectsContextTimeout(t *testing.T) {
	tx := &fakeTx{}
	specs := canbus.DefaultFrameSpecs(testSources(), 1, canbus.RateExtended20Hz)
	stream := canbus.New(tx, 0x100, specs)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := stream.WaitAndPublish(ctx, 0, 0); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := stream.WaitAndPublish(ctx, 0, 0); err == nil {
		t.Fatalf("expected context deadline to expire before the 1 Hz limiter refills")
	}
}
