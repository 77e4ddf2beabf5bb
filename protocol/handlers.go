package protocol

import (
	"encoding/binary"

	"github.com/redline-embedded/pmucore/channel"
	"github.com/redline-embedded/pmucore/logic"
	"github.com/redline-embedded/pmucore/supervisor"
)

// Version/serial are compile-time constants for now; cmd/pmud may
// override them with build-stamped values.
var (
	FirmwareVersionMajor byte = 1
	FirmwareVersionMinor byte = 0
	SerialNumber              = "PMU-000000"
)

// PingHandler answers with a single ACK whose payload is the PING
// command byte followed by the request payload unchanged; no separate
// echo packet is sent.
func PingHandler(req Packet) Packet {
	return Packet{Cmd: CmdAck, Payload: append([]byte{byte(CmdPing)}, req.Payload...)}
}

// VersionHandler reports the firmware version as two bytes.
func VersionHandler(req Packet) Packet {
	return Packet{Cmd: CmdGetVersion, Payload: []byte{FirmwareVersionMajor, FirmwareVersionMinor}}
}

// SerialHandler reports the board serial number as an ASCII payload.
func SerialHandler(req Packet) Packet {
	return Packet{Cmd: CmdGetSerial, Payload: []byte(SerialNumber)}
}

// PowerCommander is the surface SetOutputHandler/SetPWMHandler need;
// *supervisor.Supervisor satisfies it directly, and core wraps it in a
// channel-registry-routed adapter so wire commands dispatch through
// the same BindOutput path a channel-level write would.
type PowerCommander interface {
	SetState(output int, on bool) error
	SetPWM(output int, dutyPerMille int) error
}

// BridgeCommander is SetHBridgeHandler's counterpart to PowerCommander.
type BridgeCommander interface {
	HbridgeSetMode(bridge int, mode supervisor.HBridgeMode, duty int) error
	HbridgeSetPosition(bridge int, target int) error
}

// SetOutputHandler builds a SET_OUTPUT handler bound to sup.
// Payload: ch_u8, on_u8 (0/1).
func SetOutputHandler(sup PowerCommander) HandlerFunc {
	return func(req Packet) Packet {
		if len(req.Payload) < 2 {
			return Nack(CmdSetOutput, "short payload")
		}
		ch := int(req.Payload[0])
		on := req.Payload[1] != 0
		if err := sup.SetState(ch, on); err != nil {
			return Nack(CmdSetOutput, err.Error())
		}
		return Ack(CmdSetOutput)
	}
}

// SetPWMHandler builds a SET_PWM handler bound to sup.
// Payload: ch_u8, duty_le_u16.
func SetPWMHandler(sup PowerCommander) HandlerFunc {
	return func(req Packet) Packet {
		if len(req.Payload) < 3 {
			return Nack(CmdSetPWM, "short payload")
		}
		ch := int(req.Payload[0])
		duty := int(binary.LittleEndian.Uint16(req.Payload[1:3]))
		if err := sup.SetPWM(ch, duty); err != nil {
			return Nack(CmdSetPWM, err.Error())
		}
		return Ack(CmdSetPWM)
	}
}

// SetHBridgeHandler builds a SET_HBRIDGE handler bound to sup.
// Payload: bridge_u8, mode_u8, duty_le_u16, target_le_u16 (read only
// for wiper-park mode; PID mode and a wiper-park payload without the
// target bytes keep the bridge's current target).
func SetHBridgeHandler(sup BridgeCommander) HandlerFunc {
	return func(req Packet) Packet {
		if len(req.Payload) < 4 {
			return Nack(CmdSetHBridge, "short payload")
		}
		bridge := int(req.Payload[0])
		mode := supervisor.HBridgeMode(req.Payload[1])
		duty := int(binary.LittleEndian.Uint16(req.Payload[2:4]))

		if mode == supervisor.ModeWiperPark && len(req.Payload) >= 6 {
			target := int(binary.LittleEndian.Uint16(req.Payload[4:6]))
			if err := sup.HbridgeSetPosition(bridge, target); err != nil {
				return Nack(CmdSetHBridge, err.Error())
			}
			return Ack(CmdSetHBridge)
		}
		if err := sup.HbridgeSetMode(bridge, mode, duty); err != nil {
			return Nack(CmdSetHBridge, err.Error())
		}
		return Ack(CmdSetHBridge)
	}
}

// GetOutputsHandler reports state and commanded duty for every power
// output, per spec.md §4.5's GET_OUTPUTS.
func GetOutputsHandler(sup *supervisor.Supervisor) HandlerFunc {
	return func(req Packet) Packet {
		payload := make([]byte, 0, supervisor.NumPowerOutputs*3)
		for i := 0; i < supervisor.NumPowerOutputs; i++ {
			snap, _ := sup.Snapshot(i)
			dutyBuf := make([]byte, 2)
			binary.LittleEndian.PutUint16(dutyBuf, uint16(snap.CommandedDuty))
			payload = append(payload, byte(snap.State))
			payload = append(payload, dutyBuf...)
		}
		return Packet{Cmd: CmdGetOutputs, Payload: payload}
	}
}

// GetInputsHandler reports raw 16-bit values for the given physical
// input channel ids, in the order supplied.
func GetInputsHandler(reg *channel.Registry, inputIDs []uint16) HandlerFunc {
	return func(req Packet) Packet {
		payload := make([]byte, 0, len(inputIDs)*2)
		for _, id := range inputIDs {
			v := reg.GetValue(id)
			buf := make([]byte, 2)
			binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
			payload = append(payload, buf...)
		}
		return Packet{Cmd: CmdGetInputs, Payload: payload}
	}
}

// TelemetrySections controls which optional sections a DATA payload
// includes, per spec.md §6.
type TelemetrySections struct {
	Outputs   bool
	Inputs    bool
	Voltages  bool
	Temps     bool
	Faults    bool
	InputIDs  []uint16
	VirtualIDs []uint16
}

// TelemetryBuilder returns the payload-building function START_STREAM
// hands to Streamer: counter and timestamp are prefixed by the caller
// (Streamer.due), this only renders the enabled sections plus the
// trailing virtual-channel block, per spec.md §6's fixed layout.
func TelemetryBuilder(reg *channel.Registry, sup *supervisor.Supervisor, eng *logic.Engine, sections TelemetrySections, readVoltagesTemps func() (batteryMV, totalMA uint16, mcuC, boardC int16, protectionStatus, faultFlags byte)) func(counter uint32, nowMs int64) []byte {
	return func(counter uint32, nowMs int64) []byte {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf[0:4], counter)
		binary.LittleEndian.PutUint32(buf[4:8], uint32(nowMs))

		if sections.Outputs {
			for i := 0; i < supervisor.NumPowerOutputs; i++ {
				snap, _ := sup.Snapshot(i)
				buf = append(buf, byte(snap.State))
			}
		}
		if sections.Inputs {
			for _, id := range sections.InputIDs {
				v := reg.GetValue(id)
				b := make([]byte, 2)
				binary.LittleEndian.PutUint16(b, uint16(int16(v)))
				buf = append(buf, b...)
			}
		}
		var batteryMV, totalMA uint16
		var mcuC, boardC int16
		var protectionStatus, faultFlags byte
		if readVoltagesTemps != nil {
			batteryMV, totalMA, mcuC, boardC, protectionStatus, faultFlags = readVoltagesTemps()
		}
		if sections.Voltages {
			b := make([]byte, 4)
			binary.LittleEndian.PutUint16(b[0:2], batteryMV)
			binary.LittleEndian.PutUint16(b[2:4], totalMA)
			buf = append(buf, b...)
		}
		if sections.Temps {
			b := make([]byte, 4)
			binary.LittleEndian.PutUint16(b[0:2], uint16(mcuC))
			binary.LittleEndian.PutUint16(b[2:4], uint16(boardC))
			buf = append(buf, b...)
		}
		if sections.Faults {
			buf = append(buf, protectionStatus, faultFlags)
		}

		vcBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(vcBuf, uint16(len(sections.VirtualIDs)))
		buf = append(buf, vcBuf...)
		for _, id := range sections.VirtualIDs {
			idBuf := make([]byte, 2)
			binary.LittleEndian.PutUint16(idBuf, id)
			buf = append(buf, idBuf...)

			var value int32
			if eng != nil && id < logic.KVChan {
				value = int32(eng.GetVChannel(int(id)))
			}
			valBuf := make([]byte, 4)
			binary.LittleEndian.PutUint32(valBuf, uint32(value))
			buf = append(buf, valBuf...)
		}
		return buf
	}
}
