package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleIntervalRejectsNonPositive(t *testing.T) {
	s := NewSchedulerService(time.UTC)
	if _, err := s.ScheduleInterval(0, func() {}); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := s.ScheduleInterval(-time.Minute, func() {}); err == nil {
		t.Fatal("expected error for negative interval")
	}
}

func TestScheduleIntervalAtStartRunsImmediately(t *testing.T) {
	s := NewSchedulerService(time.UTC)

	var wg sync.WaitGroup
	wg.Add(1)
	var once sync.Once
	if _, err := s.ScheduleIntervalAtStart(time.Hour, func() {
		once.Do(wg.Done)
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("startup run did not happen")
	}
	s.Stop()
}

func TestStartupRunNeverOverlapsIntervalTicks(t *testing.T) {
	s := NewSchedulerService(time.UTC)

	var active, maxActive, runs int32
	job := func() {
		cur := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if cur <= m || atomic.CompareAndSwapInt32(&maxActive, m, cur) {
				break
			}
		}
		time.Sleep(1500 * time.Millisecond)
		atomic.AddInt32(&runs, 1)
		atomic.AddInt32(&active, -1)
	}
	if _, err := s.ScheduleIntervalAtStart(time.Second, job); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Start()
	time.Sleep(3500 * time.Millisecond)
	s.Stop()

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Fatalf("observed %d concurrent executions, want 1", got)
	}
	if got := atomic.LoadInt32(&runs); got < 2 {
		t.Fatalf("expected both the startup pass and an interval tick, got %d runs", got)
	}
	if got := atomic.LoadInt32(&active); got != 0 {
		t.Fatalf("Stop returned with %d executions still in flight", got)
	}
}
