package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/CareCheck/internal/assignment"
	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/survey"
	"github.com/BTreeMap/CareCheck/internal/testutil"
)

type recordingCreator struct {
	weeks []models.Date
	err   error
}

func (r *recordingCreator) CreateWeeklyCheckIns(weekOf models.Date) (int, error) {
	r.weeks = append(r.weeks, weekOf)
	return 2, r.err
}

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler(time.UTC)
	defer s.Stop()
	// Should add a valid cron job without error
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("not a cron", func() {}); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

func TestScheduleWeeklyCheckIns(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()
	if err := s.ScheduleWeeklyCheckIns("", &recordingCreator{}); err != nil {
		t.Errorf("default schedule rejected: %v", err)
	}
	if err := s.ScheduleWeeklyCheckIns("61 * * * *", &recordingCreator{}); err == nil {
		t.Error("expected invalid schedule to be rejected")
	}
}

func TestWeeklyCheckInJobUsesWeekStart(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("time zone data unavailable: %v", err)
	}
	// Monday 02:00 UTC is still Sunday in New York.
	now := time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC)
	rec := &recordingCreator{}
	WeeklyCheckInJob(rec, loc, func() time.Time { return now })()

	if len(rec.weeks) != 1 {
		t.Fatalf("expected one call, got %d", len(rec.weeks))
	}
	want := models.Date{Year: 2026, Month: time.March, Day: 2}
	if rec.weeks[0] != want {
		t.Errorf("expected week of %v, got %v", want, rec.weeks[0])
	}

	rec.err = errors.New("db down")
	WeeklyCheckInJob(rec, loc, func() time.Time { return now })()
	if len(rec.weeks) != 2 {
		t.Errorf("expected job to call creator again, got %d calls", len(rec.weeks))
	}
}

func TestWeeklyCheckInJobIsIdempotent(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	testutil.SeedRoster(t, st)
	tracker := assignment.NewTracker(st, survey.NewService(st))
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	job := WeeklyCheckInJob(tracker, time.UTC, func() time.Time { return now })
	job()
	job()

	for _, cg := range []string{testutil.CaregiverAna, testutil.CaregiverBen} {
		list, err := tracker.CheckIns(cg, false)
		if err != nil {
			t.Fatalf("CheckIns: %v", err)
		}
		for _, c := range list {
			if c.WeekOf != (models.Date{Year: 2026, Month: time.March, Day: 2}) {
				t.Errorf("unexpected week %v", c.WeekOf)
			}
		}
	}
	ana, _ := tracker.CheckIns(testutil.CaregiverAna, false)
	if len(ana) != 2 {
		t.Errorf("expected 2 check-ins for Ana after two runs, got %d", len(ana))
	}
}
