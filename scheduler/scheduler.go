// Package scheduler implements the fixed-rate task scheduler (spec
// component C4): five independently-ticked tasks standing in for the
// RTOS's preemptive priority scheduler, plus the watchdog that would
// reset the board if the Control task stalls.
package scheduler

import (
	"log"
	"sync"
	"time"
)

// Task periods, per spec.md §4.4. Priority is not modeled explicitly —
// each task runs on its own goroutine and ticker, the host equivalent
// of a single-core preemptive scheduler's period boundaries — but the
// ordering guarantee *within* a Control tick is the caller's job: the
// function passed as ControlFn must itself perform sample -> refresh
// -> execute -> write -> pump in that order.
const (
	ControlPeriod    = time.Millisecond
	ProtectionPeriod = time.Millisecond
	CANPeriod        = 10 * time.Millisecond
	LoggingPeriod    = 2 * time.Millisecond
	UIPeriod         = 50 * time.Millisecond

	// WatchdogMissedTickLimit is the number of consecutive missed
	// control ticks that trigger a full reset, per spec.md §4.4.
	WatchdogMissedTickLimit = 3
)

// TaskFunc is one task's body. nowMs is milliseconds since the
// scheduler started, a monotonic stand-in for the firmware's own tick
// counter.
type TaskFunc func(nowMs int64)

// Scheduler drives the five fixed-rate tasks of spec.md §4.4 and the
// control-tick watchdog.
type Scheduler struct {
	control    TaskFunc
	protection TaskFunc
	can        TaskFunc
	logging    TaskFunc
	ui         TaskFunc

	watchdog *Watchdog

	start time.Time
	wg    sync.WaitGroup
	stop  chan struct{}
}

// New builds a Scheduler. onReset is invoked (on the watchdog-checker
// task's goroutine) if the Control task misses WatchdogMissedTickLimit consecutive
// ticks; it stands in for the hardware watchdog's board reset.
func New(control, protection, can, logging, ui TaskFunc, onReset func(reason string)) *Scheduler {
	return &Scheduler{
		control:    control,
		protection: protection,
		can:        can,
		logging:    logging,
		ui:         ui,
		watchdog:   NewWatchdog(WatchdogMissedTickLimit, onReset),
		stop:       make(chan struct{}),
	}
}

// Start launches all five tasks and the watchdog checker. It returns
// immediately; tasks run until Stop is called.
func (s *Scheduler) Start() {
	s.start = time.Now()
	s.runTask("control", ControlPeriod, s.controlTick)
	s.runTask("protection", ProtectionPeriod, s.protection)
	s.runTask("can", CANPeriod, s.can)
	s.runTask("logging", LoggingPeriod, s.logging)
	s.runTask("ui", UIPeriod, s.ui)
	s.runTask("watchdog", ControlPeriod, func(int64) { s.watchdog.checkTick() })
}

// controlTick wraps the caller's control function, refreshing the
// watchdog only on a clean (non-panicking) return, so a stalled or
// panicking control task is visible to the watchdog as a missed tick.
func (s *Scheduler) controlTick(nowMs int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: control task panic: %v", r)
		}
	}()
	s.control(nowMs)
	s.watchdog.Refresh()
}

func (s *Scheduler) runTask(name string, period time.Duration, fn TaskFunc) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				nowMs := t.Sub(s.start).Milliseconds()
				runTaskSafely(name, fn, nowMs)
			case <-s.stop:
				return
			}
		}
	}()
}

func runTaskSafely(name string, fn TaskFunc, nowMs int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: %s task panic: %v", name, r)
		}
	}()
	fn(nowMs)
}

// Stop signals every task goroutine to exit and waits for them to do so.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}
