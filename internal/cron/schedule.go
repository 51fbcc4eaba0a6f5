package cron

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// ScheduleKind discriminates the CronSchedule union.
type ScheduleKind string

const (
	KindAt    ScheduleKind = "at"    // fire once at an absolute time
	KindEvery ScheduleKind = "every" // fire repeatedly at a fixed interval
	KindCron  ScheduleKind = "cron"  // fire on a cron expression
)

// Schedule is a tagged union: exactly one variant is populated,
// discriminated by Kind.
type Schedule struct {
	Kind       ScheduleKind `json:"kind"`
	AtMs       int64        `json:"at_ms,omitempty"`
	IntervalMs int64        `json:"interval_ms,omitempty"`
	Expr       string       `json:"expr,omitempty"`
	TZ         string       `json:"tz,omitempty"` // IANA zone; UTC when empty
}

// At schedules a single fire at the given unix-ms timestamp.
func At(atMs int64) (Schedule, error) {
	s := Schedule{Kind: KindAt, AtMs: atMs}
	return s, s.Validate()
}

// Every schedules a repeating fire every intervalMs milliseconds.
func Every(intervalMs int64) (Schedule, error) {
	s := Schedule{Kind: KindEvery, IntervalMs: intervalMs}
	return s, s.Validate()
}

// Cron schedules fires on a standard 5-field cron expression, evaluated in
// tz (UTC when empty).
func Cron(expr, tz string) (Schedule, error) {
	s := Schedule{Kind: KindCron, Expr: expr, TZ: tz}
	return s, s.Validate()
}

// Validate rejects schedules whose populated fields are inconsistent with
// their kind.
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindAt:
		if s.AtMs <= 0 {
			return fmt.Errorf("at schedule requires a positive timestamp")
		}
		if s.IntervalMs != 0 || s.Expr != "" {
			return fmt.Errorf("at schedule must not set interval or expr")
		}
	case KindEvery:
		if s.IntervalMs <= 0 {
			return fmt.Errorf("every schedule requires a positive interval")
		}
		if s.AtMs != 0 || s.Expr != "" {
			return fmt.Errorf("every schedule must not set at or expr")
		}
	case KindCron:
		if s.Expr == "" {
			return fmt.Errorf("cron schedule requires an expression")
		}
		if s.AtMs != 0 || s.IntervalMs != 0 {
			return fmt.Errorf("cron schedule must not set at or interval")
		}
		if !gronx.New().IsValid(s.Expr) {
			return fmt.Errorf("invalid cron expression: %q", s.Expr)
		}
		if s.TZ != "" {
			if _, err := time.LoadLocation(s.TZ); err != nil {
				return fmt.Errorf("invalid timezone %q: %w", s.TZ, err)
			}
		}
	default:
		return fmt.Errorf("unknown schedule kind: %q", s.Kind)
	}
	return nil
}

// NextRun computes the next fire time strictly after now, in unix ms.
// The second return is false when the schedule will never fire again
// (an "at" whose time has passed).
func (s Schedule) NextRun(now time.Time) (int64, bool) {
	switch s.Kind {
	case KindAt:
		if s.AtMs > now.UnixMilli() {
			return s.AtMs, true
		}
		return 0, false
	case KindEvery:
		return now.UnixMilli() + s.IntervalMs, true
	case KindCron:
		loc := time.UTC
		if s.TZ != "" {
			if l, err := time.LoadLocation(s.TZ); err == nil {
				loc = l
			}
		}
		next, err := gronx.NextTickAfter(s.Expr, now.In(loc), false)
		if err != nil {
			return 0, false
		}
		return next.UnixMilli(), true
	}
	return 0, false
}

// String renders the schedule for listings.
func (s Schedule) String() string {
	switch s.Kind {
	case KindAt:
		return "at " + time.UnixMilli(s.AtMs).UTC().Format(time.RFC3339)
	case KindEvery:
		return "every " + (time.Duration(s.IntervalMs) * time.Millisecond).String()
	case KindCron:
		if s.TZ != "" {
			return fmt.Sprintf("cron %q (%s)", s.Expr, s.TZ)
		}
		return fmt.Sprintf("cron %q", s.Expr)
	}
	return "unknown"
}
