// Package scheduler runs CareCheck's recurring jobs.
//
// Jobs are scheduled with standard 5-field cron expressions evaluated in the agency
// time zone. The weekly check-in job creates one check-in per active care link.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/CareCheck/internal/assignment"
	"github.com/BTreeMap/CareCheck/internal/models"
)

// DefaultCheckInSchedule creates check-ins every Monday at 06:00.
const DefaultCheckInSchedule = "0 6 * * 1"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
}

// NewScheduler creates and starts a cron scheduler evaluating expressions in loc.
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	c.Start()
	return &Scheduler{cron: c, loc: loc}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// CheckInCreator is the part of the assignment tracker the weekly job drives.
type CheckInCreator interface {
	CreateWeeklyCheckIns(weekOf models.Date) (int, error)
}

// WeeklyCheckInJob returns the job body that creates check-ins for the week containing
// now(). Running it twice in the same week creates nothing new.
func WeeklyCheckInJob(creator CheckInCreator, loc *time.Location, now func() time.Time) func() {
	return func() {
		week := assignment.WeekStart(now(), loc)
		n, err := creator.CreateWeeklyCheckIns(week)
		if err != nil {
			slog.Error("Scheduler.weeklyCheckIns: failed", "weekOf", week, "error", err)
			return
		}
		slog.Info("Scheduler.weeklyCheckIns: created check-ins", "weekOf", week, "count", n)
	}
}

// ScheduleWeeklyCheckIns registers WeeklyCheckInJob under expr.
func (s *Scheduler) ScheduleWeeklyCheckIns(expr string, creator CheckInCreator) error {
	if expr == "" {
		expr = DefaultCheckInSchedule
	}
	if err := s.AddJob(expr, WeeklyCheckInJob(creator, s.loc, time.Now)); err != nil {
		return err
	}
	slog.Info("Scheduler.ScheduleWeeklyCheckIns: scheduled", "schedule", expr, "location", s.loc.String())
	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
