package canbus

import "encoding/binary"

// Sources supplies the live values the 16 predefined frames carry.
// Kept as plain closures rather than a channel/supervisor import so
// this package has no dependency on the rest of the core and can be
// exercised with fakes; core wires the real accessors in.
type Sources struct {
	AnalogInput       func(index int) uint16 // scaled value, index 0..19
	DigitalInputs     func() uint8           // bitmask, bit i = input i
	OutputStates      func() uint32          // bitmask, bit i = output i on, up to 30 bits
	OutputFaultFlags  func() uint8
	BatteryMilliVolts func() uint16
	TotalMilliAmps    func() uint16
	MCUTempC          func() int16
	BoardTempC        func() int16
	BridgeStatus      func(bridge int) (mode uint8, dutyPerMille uint8) // bridge 0..3
}

// DefaultFrameSpecs lays the 16 predefined frames out across analog
// inputs, digital inputs, output states, currents/voltages,
// temperatures, and H-bridge status, per spec.md §6. Frames 0-4 are
// analog input batches (20 Hz or the faster 62.5 Hz rate is the
// caller's choice via inputRateHz); frame 5 is the digital input
// bitmask; frames 6-7 are reserved and currently emit a zero body.
// Frames 8-15 use extended IDs at statusRateHz: outputs, currents,
// temperatures, H-bridge status, and four reserved frames (12-15).
func DefaultFrameSpecs(src Sources, inputRateHz, statusRateHz float64) []FrameSpec {
	specs := make([]FrameSpec, FrameCount)

	for batch := 0; batch < 5; batch++ {
		batch := batch
		specs[batch] = FrameSpec{
			Index:  batch,
			RateHz: inputRateHz,
			Build: func(int64) [8]byte {
				var body [8]byte
				for slot := 0; slot < 4; slot++ {
					idx := batch*4 + slot
					if idx >= 20 {
						break
					}
					binary.LittleEndian.PutUint16(body[slot*2:slot*2+2], src.AnalogInput(idx))
				}
				return body
			},
		}
	}

	specs[5] = FrameSpec{
		Index:  5,
		RateHz: inputRateHz,
		Build: func(int64) [8]byte {
			var body [8]byte
			body[0] = src.DigitalInputs()
			return body
		},
	}

	for i := 6; i <= 7; i++ {
		i := i
		specs[i] = FrameSpec{Index: i, RateHz: inputRateHz, Build: func(int64) [8]byte { return [8]byte{} }}
	}

	specs[8] = FrameSpec{
		Index:    8,
		Extended: true,
		RateHz:   statusRateHz,
		Build: func(int64) [8]byte {
			var body [8]byte
			binary.LittleEndian.PutUint32(body[0:4], src.OutputStates())
			body[4] = src.OutputFaultFlags()
			return body
		},
	}

	specs[9] = FrameSpec{
		Index:    9,
		Extended: true,
		RateHz:   statusRateHz,
		Build: func(int64) [8]byte {
			var body [8]byte
			putU16(body[:], 0, src.BatteryMilliVolts())
			putU16(body[:], 2, src.TotalMilliAmps())
			return body
		},
	}

	specs[10] = FrameSpec{
		Index:    10,
		Extended: true,
		RateHz:   statusRateHz,
		Build: func(int64) [8]byte {
			var body [8]byte
			putI16(body[:], 0, src.MCUTempC())
			putI16(body[:], 2, src.BoardTempC())
			return body
		},
	}

	specs[11] = FrameSpec{
		Index:    11,
		Extended: true,
		RateHz:   statusRateHz,
		Build: func(int64) [8]byte {
			var body [8]byte
			for bridge := 0; bridge < 4; bridge++ {
				mode, duty := src.BridgeStatus(bridge)
				body[bridge*2] = mode
				body[bridge*2+1] = duty
			}
			return body
		},
	}

	for i := 12; i <= 15; i++ {
		i := i
		specs[i] = FrameSpec{Index: i, Extended: true, RateHz: statusRateHz, Build: func(int64) [8]byte { return [8]byte{} }}
	}

	return specs
}
