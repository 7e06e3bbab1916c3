package service

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerService wraps cron-based jobs. Jobs of the same kind are
// serialized: a tick that arrives while the previous run of that job
// is still sweeping is skipped, never stacked.
type SchedulerService struct {
	cron    *cron.Cron
	startup sync.WaitGroup
}

func NewSchedulerService(loc *time.Location) *SchedulerService {
	logger := cron.VerbosePrintfLogger(log.New(os.Stdout, "[cron] ", log.LstdFlags))
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(logger)),
		),
	}
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

// ScheduleIntervalAtStart registers a periodic job and also runs it
// once immediately, absorbing sweeps missed while the process was
// down. The immediate pass goes through the entry's wrapped job, so it
// shares the skip-if-still-running guard with the interval ticks and
// can never overlap them.
func (s *SchedulerService) ScheduleIntervalAtStart(interval time.Duration, job func()) (cron.EntryID, error) {
	id, err := s.ScheduleInterval(interval, job)
	if err != nil {
		return 0, err
	}
	wrapped := s.cron.Entry(id).WrappedJob
	s.startup.Add(1)
	go func() {
		defer s.startup.Done()
		wrapped.Run()
	}()
	return id, nil
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs, including a
// still-running startup pass, to drain.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.startup.Wait()
}
