package scheduler

import "sync"

// Watchdog models the board's hardware watchdog: the Control task
// refreshes it every tick, and missing WatchdogMissedTickLimit
// consecutive refreshes forces a reset, per spec.md §4.4.
type Watchdog struct {
	mu         sync.Mutex
	refreshed  bool
	missed     int
	limit      int
	onReset    func(reason string)
	resetCount int
}

// NewWatchdog builds a Watchdog that fires onReset after limit
// consecutive missed checkTick calls without an intervening Refresh.
// onReset may be nil, in which case a miss is simply counted.
func NewWatchdog(limit int, onReset func(reason string)) *Watchdog {
	return &Watchdog{limit: limit, onReset: onReset}
}

// Refresh marks the current tick as serviced, per spec.md §4.4's
// "watchdog.refresh()" step of the Control task.
func (w *Watchdog) Refresh() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refreshed = true
	w.missed = 0
}

// checkTick is called once per ControlPeriod by the scheduler's own
// watchdog-checker task. If the Control task has refreshed since the
// last check, the miss counter resets; otherwise it increments, and
// reaching the configured limit triggers onReset.
func (w *Watchdog) checkTick() {
	w.mu.Lock()
	if w.refreshed {
		w.refreshed = false
		w.missed = 0
		w.mu.Unlock()
		return
	}
	w.missed++
	trip := w.missed >= w.limit
	if trip {
		w.missed = 0
		w.resetCount++
	}
	onReset := w.onReset
	w.mu.Unlock()

	if trip && onReset != nil {
		onReset("missed consecutive control ticks")
	}
}

// ResetCount reports how many times the watchdog has tripped, for
// tests and the debug HTTP mirror's status endpoint.
func (w *Watchdog) ResetCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resetCount
}
