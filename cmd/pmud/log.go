package main

import (
	"log"
	"os"
)

// Per-subsystem loggers, one per goroutine family pmud starts
// (scheduler, the diagnostic-link reader, the CAN bus, the staging
// watcher), each carrying its own prefix the way a single global
// log.SetPrefix could not once more than one of these runs at once.
var (
	schedulerLog = log.New(os.Stderr, "pmud[scheduler]: ", log.LstdFlags)
	linkLog      = log.New(os.Stderr, "pmud[link]: ", log.LstdFlags)
	canLog       = log.New(os.Stderr, "pmud[can]: ", log.LstdFlags)
	bootLog      = log.New(os.Stderr, "pmud[bootloader]: ", log.LstdFlags)
)
