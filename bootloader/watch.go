package bootloader

import (
	"errors"
	"log"
	"os"

	"github.com/fsnotify/fsnotify"
)

var errStagingTooLarge = errors.New("bootloader: staged image exceeds staging region")

// StagingWatcher watches a host directory for dropped OTA image files
// and copies each one into the external-flash staging region, the
// host-simulation stand-in for an OTA tool writing directly to
// external flash over a management interface.
type StagingWatcher struct {
	boot    *Bootloader
	watcher *fsnotify.Watcher
	onStage func(path string, err error)
}

// NewStagingWatcher watches dir for newly written files and stages
// each into boot's update region. onStage, if non-nil, is called
// after every staging attempt (err is nil on success).
func NewStagingWatcher(boot *Bootloader, dir string, onStage func(path string, err error)) (*StagingWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &StagingWatcher{boot: boot, watcher: w, onStage: onStage}, nil
}

// Run processes filesystem events until the watcher is closed. It is
// meant to run on its own goroutine, outside the Control task, per
// spec.md §4.4's "drivers that might block (flash erase) must be
// invoked outside the control task."
func (sw *StagingWatcher) Run() {
	for {
		select {
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			err := sw.stage(ev.Name)
			if sw.onStage != nil {
				sw.onStage(ev.Name, err)
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("bootloader: staging watch error: %v", err)
		}
	}
}

func (sw *StagingWatcher) stage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if uint32(len(data)) > sw.boot.regions.StagingSize {
		return errStagingTooLarge
	}
	if err := sw.boot.dev.Erase(sw.boot.regions.StagingAddr, sw.boot.regions.StagingSize); err != nil {
		return err
	}
	return sw.boot.dev.WriteAt(sw.boot.regions.StagingAddr, data)
}

// Close stops watching and releases the underlying fsnotify handle.
func (sw *StagingWatcher) Close() error {
	return sw.watcher.Close()
}
