// Package cron decides whether a 5-field cron schedule should fire for
// a given check tick. Parsing is delegated to robfig/cron; this package
// only adds the backwards question the library does not answer: what is
// the most recent matching minute at or before now.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// maxLookback bounds the search for a previous match. Schedules firing
// less often than roughly monthly are treated as having no recent match
// rather than scanning a whole year backwards.
const maxLookback = 35 * 24 * time.Hour

// Schedule is a parsed cron expression pinned to a timezone.
type Schedule struct {
	spec cron.Schedule
}

// Parse compiles a standard 5-field cron expression. A non-empty
// timezone overrides the process-local zone via the parser's own
// CRON_TZ support, so "0 8 * * *" in America/Toronto fires at 8am
// Toronto time regardless of where the server runs.
func Parse(expr, timezone string) (*Schedule, error) {
	spec := expr
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		spec = "CRON_TZ=" + timezone + " " + expr
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return &Schedule{spec: sched}, nil
}

// Prev returns the most recent matching minute at or before now, or
// false when no match falls within the lookback bound.
func (s *Schedule) Prev(now time.Time) (time.Time, bool) {
	now = now.Truncate(time.Minute)

	lookback := 2 * time.Minute
	for {
		first := s.spec.Next(now.Add(-lookback))
		if first.IsZero() {
			return time.Time{}, false
		}
		if !first.After(now) {
			// Walk forward to the last match not past now.
			last := first
			for {
				next := s.spec.Next(last)
				if next.IsZero() || next.After(now) {
					return last, true
				}
				last = next
			}
		}
		if lookback >= maxLookback {
			return time.Time{}, false
		}
		lookback *= 2
	}
}

// ShouldFire reports whether a template with the given schedule and
// last-run instant should materialize now, and for which matched
// minute. A template fires when the most recent matching minute is
// strictly after last-run truncated to the minute, which both dedupes
// repeat checks within one matching minute and bounds downtime
// catch-up to a single missed window.
func ShouldFire(expr, timezone string, now time.Time, lastRun *time.Time) (time.Time, bool, error) {
	sched, err := Parse(expr, timezone)
	if err != nil {
		return time.Time{}, false, err
	}
	match, ok := sched.Prev(now)
	if !ok {
		return time.Time{}, false, nil
	}
	if lastRun != nil && !match.After(lastRun.Truncate(time.Minute)) {
		return match, false, nil
	}
	return match, true, nil
}
