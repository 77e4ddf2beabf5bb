package scheduler_test

import (
	"sync"
	"testing"
	"time"

	"github.com/redline-embedded/pmucore/scheduler"
)

func TestWatchdogRefreshAloneDoesNotTrip(t *testing.T) {
	tripped := 0
	wd := scheduler.NewWatchdog(3, func(string) { tripped++ })
	wd.Refresh()
	if wd.ResetCount() != 0 {
		t.Fatalf("ResetCount should be 0 before any trip")
	}
	if tripped != 0 {
		t.Fatalf("onReset should not fire from Refresh alone")
	}
}

func TestSchedulerRunsAllTasksAndRefreshesWatchdog(t *testing.T) {
	var mu sync.Mutex
	counts := map[string]int{}
	bump := func(name string) scheduler.TaskFunc {
		return func(int64) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		}
	}

	resetFired := false
	s := scheduler.New(
		bump("control"),
		bump("protection"),
		bump("can"),
		bump("logging"),
		bump("ui"),
		func(string) { resetFired = true },
	)
	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if counts["control"] < 50 {
		t.Fatalf("control task ran %d times in 120ms, want >=50", counts["control"])
	}
	if counts["protection"] < 50 {
		t.Fatalf("protection task ran %d times in 120ms, want >=50", counts["protection"])
	}
	if counts["can"] < 5 {
		t.Fatalf("can task ran %d times in 120ms, want >=5", counts["can"])
	}
	if counts["logging"] < 20 {
		t.Fatalf("logging task ran %d times in 120ms, want >=20", counts["logging"])
	}
	if counts["ui"] < 1 {
		t.Fatalf("ui task ran %d times in 120ms, want >=1", counts["ui"])
	}
	if resetFired {
		t.Fatalf("watchdog should not trip when control task runs every tick")
	}
}

func TestSchedulerStopHaltsAllTasks(t *testing.T) {
	var mu sync.Mutex
	total := 0
	bump := func(int64) {
		mu.Lock()
		total++
		mu.Unlock()
	}

	s := scheduler.New(bump, bump, bump, bump, bump, nil)
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	mu.Lock()
	stopped := total
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if total != stopped {
		t.Fatalf("task ran after Stop: count went %d -> %d", stopped, total)
	}
}

func TestSchedulerWatchdogTripsWhenControlStalls(t *testing.T) {
	var tripReason string
	var tripped bool
	var mu sync.Mutex

	block := make(chan struct{})
	control := func(int64) {
		<-block // control task hangs forever; never reaches a clean return
	}
	noop := func(int64) {}

	s := scheduler.New(control, noop, noop, noop, noop, func(reason string) {
		mu.Lock()
		tripped = true
		tripReason = reason
		mu.Unlock()
	})
	s.Start()
	defer close(block)

	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if !tripped {
		t.Fatalf("expected watchdog to trip once control task stalls past the missed-tick limit")
	}
	if tripReason == "" {
		t.Fatalf("expected a non-empty trip reason")
	}
}
