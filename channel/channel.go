// Package channel implements the universal channel abstraction (spec
// component C1): a single addressable namespace unifying physical
// inputs, physical outputs, and computed virtual signals.
package channel

import "fmt"

// Class identifies the kind of signal a channel represents. Direction
// and dispatch are both derived from Class.
type Class uint8

const (
	ClassAnalogInput Class = iota
	ClassDigitalInput
	ClassFrequencyInput
	ClassSwitchInput
	ClassSystemInput
	ClassCANInput
	ClassComputedInput
	ClassPowerOutput
	ClassPWMOutput
	ClassHBridgeOutput
	ClassAnalogOutput
	ClassCANOutput
	ClassVirtualOutput
)

func (c Class) String() string {
	switch c {
	case ClassAnalogInput:
		return "analog_input"
	case ClassDigitalInput:
		return "digital_input"
	case ClassFrequencyInput:
		return "frequency_input"
	case ClassSwitchInput:
		return "switch_input"
	case ClassSystemInput:
		return "system_input"
	case ClassCANInput:
		return "can_input"
	case ClassComputedInput:
		return "computed_input"
	case ClassPowerOutput:
		return "power_output"
	case ClassPWMOutput:
		return "pwm_output"
	case ClassHBridgeOutput:
		return "hbridge_output"
	case ClassAnalogOutput:
		return "analog_output"
	case ClassCANOutput:
		return "can_output"
	case ClassVirtualOutput:
		return "virtual_output"
	default:
		return "unknown"
	}
}

// Direction is derived from Class; it is never set directly.
type Direction uint8

const (
	DirectionInput Direction = iota
	DirectionOutput
)

// directionOf returns the Direction implied by a Class.
func directionOf(c Class) Direction {
	switch c {
	case ClassPowerOutput, ClassPWMOutput, ClassHBridgeOutput, ClassAnalogOutput, ClassCANOutput, ClassVirtualOutput:
		return DirectionOutput
	default:
		return DirectionInput
	}
}

// Format is the semantic type of a channel's value.
type Format uint8

const (
	FormatRaw Format = iota
	FormatVoltageMV
	FormatCurrentMA
	FormatTemperatureC
	FormatPercentPerMille
	FormatBoolean
	FormatEnum
)

// Flags holds the per-channel boolean attributes.
type Flags struct {
	Enabled  bool
	Inverted bool
}

// ID ranges partition the channel_id address space into reserved bands.
const (
	IDSystemMin = 0
	IDSystemMax = 999

	IDPhysicalInputMin = 1000
	IDPhysicalInputMax = 1999

	IDPhysicalOutputMin = 2000
	IDPhysicalOutputMax = 2999

	IDVirtualMin = 3000
	IDVirtualMax = 9999
)

// InRange reports whether id falls in a known reserved band. Ids above
// IDVirtualMax are reserved for future expansion and rejected.
func InRange(id uint16) bool {
	return id <= IDVirtualMax
}

// Spec describes a channel at registration time.
type Spec struct {
	ID            uint16
	Class         Class
	Format        Format
	PhysicalIndex int
	Name          string
	Unit          string
	Min, Max      int32
	Flags         Flags
}

// Channel is the runtime record for a registered channel.
type Channel struct {
	Spec
	Direction Direction
	Value     int32
}

func newChannel(s Spec) *Channel {
	return &Channel{
		Spec:      s,
		Direction: directionOf(s.Class),
	}
}

// Outcome is a named result for registry operations, matching the
// "operations are total" failure semantics of spec.md §4.1.
type Outcome int

const (
	OK Outcome = iota
	Duplicate
	OutOfRange
	NotOutput
	Disabled
	Missing
)

func (o Outcome) Error() string {
	switch o {
	case OK:
		return "ok"
	case Duplicate:
		return "duplicate channel id"
	case OutOfRange:
		return "channel id out of range"
	case NotOutput:
		return "not an output channel"
	case Disabled:
		return "channel disabled"
	case Missing:
		return "channel missing"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// KeypadButtonName formats the name used to auto-discover a keypad
// button's virtual channel. Preserved verbatim per spec.md §9 item 3.
func KeypadButtonName(index int) string {
	return fmt.Sprintf("Button %d", index)
}
