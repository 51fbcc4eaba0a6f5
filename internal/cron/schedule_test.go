package cron

import (
	"encoding/json"
	"testing"
	"time"
)

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"at valid", Schedule{Kind: KindAt, AtMs: 1000}, false},
		{"at zero", Schedule{Kind: KindAt}, true},
		{"at with interval", Schedule{Kind: KindAt, AtMs: 1000, IntervalMs: 5}, true},
		{"every valid", Schedule{Kind: KindEvery, IntervalMs: 60000}, false},
		{"every negative", Schedule{Kind: KindEvery, IntervalMs: -1}, true},
		{"every with expr", Schedule{Kind: KindEvery, IntervalMs: 5, Expr: "* * * * *"}, true},
		{"cron valid", Schedule{Kind: KindCron, Expr: "0 9 * * 1-5"}, false},
		{"cron with tz", Schedule{Kind: KindCron, Expr: "0 9 * * *", TZ: "America/New_York"}, false},
		{"cron bad expr", Schedule{Kind: KindCron, Expr: "not a cron"}, true},
		{"cron bad tz", Schedule{Kind: KindCron, Expr: "0 9 * * *", TZ: "Mars/Olympus"}, true},
		{"cron empty expr", Schedule{Kind: KindCron}, true},
		{"unknown kind", Schedule{Kind: "weekly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	t.Run("at future", func(t *testing.T) {
		future := now.Add(time.Hour).UnixMilli()
		s, err := At(future)
		if err != nil {
			t.Fatal(err)
		}
		next, ok := s.NextRun(now)
		if !ok || next != future {
			t.Errorf("NextRun = (%d, %v), want (%d, true)", next, ok, future)
		}
	})

	t.Run("at past never fires again", func(t *testing.T) {
		s, err := At(now.Add(-time.Hour).UnixMilli())
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := s.NextRun(now); ok {
			t.Error("a passed one-shot must report no next fire")
		}
	})

	t.Run("every", func(t *testing.T) {
		s, err := Every(5 * 60 * 1000)
		if err != nil {
			t.Fatal(err)
		}
		next, ok := s.NextRun(now)
		if !ok || next != now.UnixMilli()+5*60*1000 {
			t.Errorf("NextRun = (%d, %v), want now+5m", next, ok)
		}
	})

	t.Run("cron hourly", func(t *testing.T) {
		s, err := Cron("0 * * * *", "")
		if err != nil {
			t.Fatal(err)
		}
		next, ok := s.NextRun(now)
		if !ok {
			t.Fatal("hourly cron must always have a next fire")
		}
		want := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC).UnixMilli()
		if next != want {
			t.Errorf("next fire = %s, want 13:00 UTC",
				time.UnixMilli(next).UTC().Format(time.RFC3339))
		}
	})
}

func TestScheduleString(t *testing.T) {
	s, _ := Every(90 * 1000)
	if got := s.String(); got != "every 1m30s" {
		t.Errorf("String() = %q", got)
	}
	c, _ := Cron("0 9 * * *", "America/New_York")
	if got := c.String(); got != `cron "0 9 * * *" (America/New_York)` {
		t.Errorf("String() = %q", got)
	}
}

func TestJobRoundTrip(t *testing.T) {
	next := int64(1750000000000)
	in := Job{
		ID:      "a1b2c3d4",
		Name:    "standup",
		Enabled: true,
		Schedule: Schedule{
			Kind: KindCron,
			Expr: "0 9 * * 1-5",
			TZ:   "Europe/Berlin",
		},
		Task:     "summarize open PRs",
		Priority: "high",
		State: JobState{
			NextRunAtMs: &next,
			LastStatus:  StatusOK,
			RunCount:    7,
		},
		CreatedAtMs: 1740000000000,
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Job
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}

	if out.ID != in.ID || out.Schedule != in.Schedule || out.Task != in.Task {
		t.Errorf("round trip mangled the job: %+v", out)
	}
	if out.State.NextRunAtMs == nil || *out.State.NextRunAtMs != next {
		t.Error("round trip lost the next fire time")
	}
	if out.State.RunCount != 7 || out.State.LastStatus != StatusOK {
		t.Errorf("round trip mangled the state: %+v", out.State)
	}
}
