// Package flashsim implements the opaque block-device abstraction that
// spec.md's Non-goals place between the firmware logic and any real
// flash part: vendor SPI command sequences, program-granularity quirks,
// and wear-leveling hardware details are explicitly out of scope, and
// every consumer (configstore, bootloader, datalogger) talks only to
// this interface.
package flashsim

import (
	"errors"
	"os"
	"sync"
)

// ErasedByte is what a freshly erased flash cell reads back as.
const ErasedByte = 0xFF

var (
	ErrOutOfRange = errors.New("flashsim: address range exceeds device size")
	ErrClosed     = errors.New("flashsim: device is closed")
)

// Device is the block-device contract every flash consumer programs
// against. Reads are always valid; ReadAt never needs Erase to have
// run first on a brand new device (the backing store starts erased).
type Device interface {
	ReadAt(addr uint32, buf []byte) error
	WriteAt(addr uint32, data []byte) error
	Erase(addr uint32, length uint32) error
	Size() uint32
}

// FileDevice is a Device backed by a single host file, standing in for
// an SPI NOR/NAND part. It serializes every operation behind a mutex,
// matching spec.md §5's "flash: single writer at any time; a mutex
// serializes erase/program" rule, and is sized and filled with
// ErasedByte on first open.
type FileDevice struct {
	mu     sync.Mutex
	f      *os.File
	size   uint32
	closed bool
}

// OpenFile opens (or creates) a file-backed flash image of the given
// size at path. A newly created file reads back as ErasedByte
// everywhere, matching virgin flash.
func OpenFile(path string, size uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() != int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, err
		}
		if info.Size() < int64(size) {
			fill := make([]byte, size)
			for i := range fill {
				fill[i] = ErasedByte
			}
			if _, err := f.WriteAt(fill, 0); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	return &FileDevice{f: f, size: size}, nil
}

// Size returns the device's total addressable byte count.
func (d *FileDevice) Size() uint32 { return d.size }

// ReadAt copies len(buf) bytes starting at addr into buf.
func (d *FileDevice) ReadAt(addr uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if uint64(addr)+uint64(len(buf)) > uint64(d.size) {
		return ErrOutOfRange
	}
	_, err := d.f.ReadAt(buf, int64(addr))
	return err
}

// WriteAt programs data at addr. Real NOR flash can only clear bits
// (1->0) without an erase; this simulation does not enforce that, in
// keeping with the spec's decision to keep flash an opaque device.
func (d *FileDevice) WriteAt(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if uint64(addr)+uint64(len(data)) > uint64(d.size) {
		return ErrOutOfRange
	}
	_, err := d.f.WriteAt(data, int64(addr))
	return err
}

// Erase resets length bytes starting at addr back to ErasedByte.
func (d *FileDevice) Erase(addr uint32, length uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if uint64(addr)+uint64(length) > uint64(d.size) {
		return ErrOutOfRange
	}
	blank := make([]byte, length)
	for i := range blank {
		blank[i] = ErasedByte
	}
	_, err := d.f.WriteAt(blank, int64(addr))
	return err
}

// Close releases the backing file handle.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.f.Close()
}
