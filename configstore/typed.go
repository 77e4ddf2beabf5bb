package configstore

import (
	"encoding/binary"

	"github.com/redline-embedded/pmucore/flashsim"
)

// NumADCCalibration and NumCANMailboxes size the typed record's fixed
// arrays; both are implementer choices sized generously for a board
// with 20 analog inputs and 16 predefined CAN frames.
const (
	NumADCCalibration = 20
	NumCANMailboxes   = 16
)

// ADCCalibration is a two-point linear calibration (value = raw*scale
// + offset) for one analog input.
type ADCCalibration struct {
	ScaleMilli  int32 // scale factor, fixed-point *1000
	OffsetMilli int32
}

// ProtectionThresholds mirrors supervisor.Thresholds in a flash-stable
// shape independent of that package's in-memory layout.
type ProtectionThresholds struct {
	CurrentLimitMA    int32
	ThermalShutdownC  int32
	DebounceMs        int32
	StallThresholdMA  int32
	StallTimeMs       int32
	FaultLockoutCount int32
}

// CANSettings configures the optional CAN stream of spec.md §6.
type CANSettings struct {
	Enabled      bool
	BaseID       uint32
	InputRateHz  uint16
	StatusRateHz uint16
}

// TypedConfig is the fixed-layout device record of spec.md §3's
// "Stored Configuration": identity, calibration, protection defaults,
// and cumulative counters, everything a fresh board needs before any
// JSON configuration has ever been loaded.
type TypedConfig struct {
	DeviceID       uint32
	Serial         [16]byte
	HWRevision     uint16
	ChannelCount   uint16
	ADCCalibration [NumADCCalibration]ADCCalibration
	Protection     ProtectionThresholds
	CAN            CANSettings
	UpdateRateHz   uint16
	PowerOnCount   uint32
	RuntimeHours   uint32
	FaultCount     uint32
	LastFaultCode  uint32
}

// DefaultTypedConfig returns a zeroed-but-sane record for a board that
// has never been configured.
func DefaultTypedConfig() TypedConfig {
	cfg := TypedConfig{
		HWRevision:   1,
		UpdateRateHz: 50,
	}
	for i := range cfg.ADCCalibration {
		cfg.ADCCalibration[i] = ADCCalibration{ScaleMilli: 1000}
	}
	cfg.Protection = ProtectionThresholds{
		CurrentLimitMA:    15000,
		ThermalShutdownC:  125,
		DebounceMs:        20,
		StallThresholdMA:  8000,
		StallTimeMs:       500,
		FaultLockoutCount: 3,
	}
	return cfg
}

func (c TypedConfig) encode() []byte {
	buf := make([]byte, 0, 64+NumADCCalibration*8)
	u32 := make([]byte, 4)

	binary.LittleEndian.PutUint32(u32, c.DeviceID)
	buf = append(buf, u32...)
	buf = append(buf, c.Serial[:]...)

	u16 := make([]byte, 2)
	binary.LittleEndian.PutUint16(u16, c.HWRevision)
	buf = append(buf, u16...)
	binary.LittleEndian.PutUint16(u16, c.ChannelCount)
	buf = append(buf, u16...)

	for _, cal := range c.ADCCalibration {
		binary.LittleEndian.PutUint32(u32, uint32(cal.ScaleMilli))
		buf = append(buf, u32...)
		binary.LittleEndian.PutUint32(u32, uint32(cal.OffsetMilli))
		buf = append(buf, u32...)
	}

	binary.LittleEndian.PutUint32(u32, uint32(c.Protection.CurrentLimitMA))
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, uint32(c.Protection.ThermalShutdownC))
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, uint32(c.Protection.DebounceMs))
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, uint32(c.Protection.StallThresholdMA))
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, uint32(c.Protection.StallTimeMs))
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, uint32(c.Protection.FaultLockoutCount))
	buf = append(buf, u32...)

	canEnabled := byte(0)
	if c.CAN.Enabled {
		canEnabled = 1
	}
	buf = append(buf, canEnabled)
	binary.LittleEndian.PutUint32(u32, c.CAN.BaseID)
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint16(u16, c.CAN.InputRateHz)
	buf = append(buf, u16...)
	binary.LittleEndian.PutUint16(u16, c.CAN.StatusRateHz)
	buf = append(buf, u16...)

	binary.LittleEndian.PutUint16(u16, c.UpdateRateHz)
	buf = append(buf, u16...)
	binary.LittleEndian.PutUint32(u32, c.PowerOnCount)
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, c.RuntimeHours)
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, c.FaultCount)
	buf = append(buf, u32...)
	binary.LittleEndian.PutUint32(u32, c.LastFaultCode)
	buf = append(buf, u32...)

	return buf
}

func decodeTypedConfig(buf []byte) TypedConfig {
	var c TypedConfig
	off := 0
	read32 := func() uint32 {
		v := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		return v
	}
	read16 := func() uint16 {
		v := binary.LittleEndian.Uint16(buf[off : off+2])
		off += 2
		return v
	}

	c.DeviceID = read32()
	copy(c.Serial[:], buf[off:off+16])
	off += 16
	c.HWRevision = read16()
	c.ChannelCount = read16()

	for i := range c.ADCCalibration {
		c.ADCCalibration[i] = ADCCalibration{
			ScaleMilli:  int32(read32()),
			OffsetMilli: int32(read32()),
		}
	}

	c.Protection.CurrentLimitMA = int32(read32())
	c.Protection.ThermalShutdownC = int32(read32())
	c.Protection.DebounceMs = int32(read32())
	c.Protection.StallThresholdMA = int32(read32())
	c.Protection.StallTimeMs = int32(read32())
	c.Protection.FaultLockoutCount = int32(read32())

	c.CAN.Enabled = buf[off] != 0
	off++
	c.CAN.BaseID = read32()
	c.CAN.InputRateHz = read16()
	c.CAN.StatusRateHz = read16()

	c.UpdateRateHz = read16()
	c.PowerOnCount = read32()
	c.RuntimeHours = read32()
	c.FaultCount = read32()
	c.LastFaultCode = read32()

	return c
}

// TypedStore persists TypedConfig at a single fixed sector of internal
// flash, per spec.md §4.6.
type TypedStore struct {
	dev    flashsim.Device
	addr   uint32
	sector uint32
}

// NewTypedStore binds a TypedStore to dev at addr, erasing sector
// bytes on every Store (sector must be large enough for the header
// plus the largest padded TypedConfig encoding).
func NewTypedStore(dev flashsim.Device, addr, sector uint32) *TypedStore {
	return &TypedStore{dev: dev, addr: addr, sector: sector}
}

// Load reads and validates the typed record. On any validation
// failure it returns DefaultTypedConfig() alongside the error, per
// spec.md §4.6's "initialize defaults in RAM" fallback — callers
// decide whether to then Store the defaults back.
func (s *TypedStore) Load() (TypedConfig, error) {
	hdrBuf := make([]byte, typedHeaderSize)
	if err := s.dev.ReadAt(s.addr, hdrBuf); err != nil {
		return DefaultTypedConfig(), err
	}
	hdr := decodeConfigHeader(hdrBuf)

	if CRC32(hdrBuf[:21]) != hdr.HeaderCRC32 {
		return DefaultTypedConfig(), ErrHeaderCRC
	}
	if hdr.Magic != MagicTyped {
		return DefaultTypedConfig(), ErrBadMagic
	}
	if hdr.VersionMajor != VersionMajor {
		return DefaultTypedConfig(), ErrVersion
	}

	dataBuf := make([]byte, hdr.DataSize)
	if err := s.dev.ReadAt(s.addr+typedHeaderSize, dataBuf); err != nil {
		return DefaultTypedConfig(), err
	}
	if CRC32(dataBuf) != hdr.DataCRC32 {
		return DefaultTypedConfig(), ErrDataCRC
	}
	return decodeTypedConfig(dataBuf), nil
}

// Store erases the sector and programs header + padded data, per
// spec.md §4.6's "Store (internal)" sequence.
func (s *TypedStore) Store(cfg TypedConfig, writeCount, timestamp uint32) error {
	data := cfg.encode()
	padded := padTo(data, ProgramGranularity)

	hdr := ConfigHeader{
		Magic:        MagicTyped,
		VersionMajor: VersionMajor,
		VersionMinor: VersionMinor,
		DataSize:     uint16(len(data)),
		DataCRC32:    CRC32(data),
		WriteCount:   writeCount,
		Timestamp:    timestamp,
	}
	hdrBuf := hdr.encode()
	hdr.HeaderCRC32 = CRC32(hdrBuf[:21])
	hdrBuf = hdr.encode()

	if err := s.dev.Erase(s.addr, s.sector); err != nil {
		return err
	}
	if err := s.dev.WriteAt(s.addr, hdrBuf); err != nil {
		return err
	}
	return s.dev.WriteAt(s.addr+typedHeaderSize, padded)
}
