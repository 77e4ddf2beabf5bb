package bootloader

import "errors"

// ErrNoApp is the terminal state of step 5: neither the application
// nor the backup validates, so the bootloader must remain resident.
var ErrNoApp = errors.New("bootloader: no valid application image")

// ResetFlags models the MCU's hardware reset-cause register. In this
// host simulation they are supplied by the caller rather than read
// from silicon.
type ResetFlags struct {
	IWDG     bool
	Software bool
}

// RunOptions carries everything the reset-time sequence needs that
// isn't already durable state on the Bootloader's flashsim.Device.
type RunOptions struct {
	BootButtonAsserted bool
	Flags              ResetFlags
	SharedOverride     *BootReason
}

// RunResult is the outcome of one RunSequence call.
type RunResult struct {
	BootIntoApp  bool
	Reason       BootReason
	AppHeader    FirmwareHeader
	AppBootCount uint32
}

// LoadSharedState reads and validates the battery-backed shared
// structure, reinitializing it with ReasonPowerOn if missing or
// corrupt, per spec.md §4.7 step 1.
func (b *Bootloader) LoadSharedState() SharedState {
	buf := make([]byte, sharedStateSize)
	if err := b.dev.ReadAt(b.regions.SharedAddr, buf); err != nil {
		return SharedState{Magic: MagicShared, BootReason: uint32(ReasonPowerOn)}
	}
	s := decodeSharedState(buf)
	if s.Magic != MagicShared || s.Checksum != checksumSharedState(s) {
		return SharedState{Magic: MagicShared, BootReason: uint32(ReasonPowerOn)}
	}
	return s
}

// StoreSharedState persists s with a freshly computed checksum.
func (b *Bootloader) StoreSharedState(s SharedState) error {
	s.Checksum = checksumSharedState(s)
	buf := s.encode()
	putChecksum(buf, s.Checksum)
	return b.dev.WriteAt(b.regions.SharedAddr, buf)
}

func putChecksum(buf []byte, checksum uint32) {
	buf[sharedStateSize-4] = byte(checksum)
	buf[sharedStateSize-3] = byte(checksum >> 8)
	buf[sharedStateSize-2] = byte(checksum >> 16)
	buf[sharedStateSize-1] = byte(checksum >> 24)
}

// RunSequence executes the seven-step reset-time sequence of spec.md
// §4.7 and reports whether the bootloader should jump to the
// application (and which header it validated) or remain resident.
func (b *Bootloader) RunSequence(opts RunOptions) (RunResult, error) {
	// Step 1: restore shared state.
	shared := b.LoadSharedState()

	// Step 2: determine boot reason; shared override wins, then IWDG,
	// then software reset, then power-on. Reset flags are considered
	// "cleared" simply by not persisting them back into shared state.
	reason := BootReason(shared.BootReason)
	if opts.SharedOverride != nil {
		reason = *opts.SharedOverride
	} else if opts.Flags.IWDG {
		reason = ReasonWatchdogReset
	} else if opts.Flags.Software {
		reason = ReasonSoftwareReset
	} else {
		reason = ReasonPowerOn
	}

	// Step 3: boot button keeps us resident.
	if opts.BootButtonAsserted {
		return RunResult{BootIntoApp: false, Reason: reason}, nil
	}

	// Step 4: apply a pending update if one is staged.
	updateRequested := shared.UpdateRequested != 0
	if updateRequested || b.stagingHasValidUpdate() {
		if err := b.ApplyUpdate(); err != nil {
			// Apply failed: attempt rollback, but don't treat a
			// rollback failure here as fatal to the sequence — step 5
			// will catch a still-invalid application.
			_ = b.Rollback()
		}
		shared.UpdateRequested = 0
	}

	// Step 5: validate the application image, rolling back once if invalid.
	hdr, err := b.ValidateImage(b.regions.AppAddr)
	if err != nil {
		if rbErr := b.Rollback(); rbErr != nil {
			b.persistShared(shared, reason)
			return RunResult{Reason: ReasonNoApp}, ErrNoApp
		}
		hdr, err = b.ValidateImage(b.regions.AppAddr)
		if err != nil {
			b.persistShared(shared, reason)
			return RunResult{Reason: ReasonNoApp}, ErrNoApp
		}
	}

	// Step 6: boot-count cap forces a rollback attempt.
	if shared.AppBootCount >= MaxBootAttempts {
		if err := b.Rollback(); err == nil {
			shared.AppBootCount = 0
			hdr, _ = b.ValidateImage(b.regions.AppAddr)
		}
	}

	// Step 7: increment boot count, persist, jump.
	shared.AppBootCount++
	b.persistShared(shared, reason)

	return RunResult{
		BootIntoApp:  true,
		Reason:       reason,
		AppHeader:    hdr,
		AppBootCount: shared.AppBootCount,
	}, nil
}

func (b *Bootloader) persistShared(s SharedState, reason BootReason) {
	s.Magic = MagicShared
	s.BootReason = uint32(reason)
	_ = b.StoreSharedState(s)
}

// stagingHasValidUpdate reports whether the staging region holds an
// update header with status Pending, independent of shared.update_requested.
func (b *Bootloader) stagingHasValidUpdate() bool {
	buf := make([]byte, updateHeaderSize)
	if err := b.dev.ReadAt(b.regions.StagingAddr, buf); err != nil {
		return false
	}
	uh := decodeUpdateHeader(buf)
	if uh.Magic != MagicUpdate {
		return false
	}
	if CRC32(buf[:24]) != uh.HeaderCRC32 {
		return false
	}
	return uh.Status == UpdatePending
}

// ClearBootCount lets the application reset its own boot-attempt
// counter once it considers itself healthy, per spec.md §4.7's
// closing paragraph. Failing to call this eventually triggers an
// automatic rollback.
func (b *Bootloader) ClearBootCount() error {
	shared := b.LoadSharedState()
	shared.AppBootCount = 0
	return b.StoreSharedState(shared)
}
