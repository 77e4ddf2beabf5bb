package main

// Config holds everything pmud needs to assemble a Core and start
// serving, populated from defaults + an optional YAML file via koanf,
// the same two-layer setup multiserver.Config uses.
type Config struct {
	// DebugAddr is the address the telemetry mirror HTTP server listens
	// at. Empty disables it.
	DebugAddr string `koanf:"DebugAddr"`

	// LinkAddr is the diagnostic link's address: a path such as
	// /dev/ttyUSB0 when Serial is true, or a host:port for a TCP link.
	LinkAddr string `koanf:"LinkAddr"`
	Serial   bool   `koanf:"Serial"`
	BaudRate int    `koanf:"BaudRate"`

	// CANInterface is the SocketCAN interface name (e.g. "can0"). Empty
	// disables the CAN stream regardless of Stored Configuration.
	CANInterface string `koanf:"CANInterface"`

	// FlashPath/FlashSize back the single simulated flash part that
	// Stored Configuration, the bootloader's regions, and the data
	// logger all share, per spec.md's single-device assumption.
	FlashPath string `koanf:"FlashPath"`
	FlashSize uint32 `koanf:"FlashSize"`

	// StagingDir is watched for update images dropped for the
	// bootloader, mirroring StagingWatcher's directory-drop model.
	StagingDir string `koanf:"StagingDir"`

	Mock bool `koanf:"Mock"`
}

// DefaultConfig returns the layout a fresh board ships with: one 940 KiB
// simulated flash part split into the regions Layout describes, no CAN
// interface bound, and a mock hardware driver so `pmud run` is usable
// without attached power hardware.
func DefaultConfig() Config {
	return Config{
		DebugAddr: ":8080",
		LinkAddr:  "/dev/ttyUSB0",
		Serial:    true,
		BaudRate:  115200,
		FlashPath: "pmu-flash.img",
		FlashSize: Layout.Total,
		StagingDir: "staging",
		Mock:      true,
	}
}
