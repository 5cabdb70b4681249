// Package assignment creates survey assignments and weekly check-ins and builds the
// caregiver's unified, prioritized task list.
package assignment

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/store"
	"github.com/BTreeMap/CareCheck/internal/util"
)

// DefaultCheckInDueDays is how many days after the start of its week a check-in is due.
const DefaultCheckInDueDays = 6

// SurveySource resolves a survey with its questions, including the legacy check-in survey.
type SurveySource interface {
	GetSurveyWithQuestions(surveyID string) (*models.SurveyWithQuestions, error)
}

// Tracker implements bulk assignment, cancellation, weekly check-in creation and the
// unified task view.
type Tracker struct {
	store          store.Store
	surveys        SurveySource
	loc            *time.Location
	now            func() time.Time
	notify         bool
	checkInDueDays int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocation sets the agency time zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithNotifications enables queuing an outbox notification per created assignment.
func WithNotifications(enabled bool) Option {
	return func(t *Tracker) {
		t.notify = enabled
	}
}

// WithCheckInDueDays sets how long caregivers have to answer a weekly check-in.
func WithCheckInDueDays(days int) Option {
	return func(t *Tracker) {
		if days >= 0 {
			t.checkInDueDays = days
		}
	}
}

// NewTracker creates a Tracker.
func NewTracker(st store.Store, surveys SurveySource, opts ...Option) *Tracker {
	t := &Tracker{
		store:          st,
		surveys:        surveys,
		loc:            time.UTC,
		now:            time.Now,
		checkInDueDays: DefaultCheckInDueDays,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Location returns the agency time zone.
func (t *Tracker) Location() *time.Location {
	return t.loc
}

// AssignmentNotice is the outbox payload announcing a new assignment.
type AssignmentNotice struct {
	AssignmentID string    `json:"assignmentId"`
	SurveyID     string    `json:"surveyId"`
	SurveyTitle  string    `json:"surveyTitle"`
	PatientID    string    `json:"patientId"`
	DueAt        time.Time `json:"dueAt"`
}

// BulkAssign creates one pending assignment per active patient of each caregiver. All rows
// are written in one transaction. A caregiver without patients contributes nothing.
func (t *Tracker) BulkAssign(surveyID string, caregiverIDs []string, dueAt time.Time) ([]models.Assignment, error) {
	verr := models.NewValidationError("Invalid assignment request")
	if len(caregiverIDs) == 0 {
		verr.Add("caregiverIds", "Select at least one caregiver")
	}
	if dueAt.IsZero() {
		verr.Add("dueAt", "Due date is required")
	}
	if verr.HasErrors() {
		return nil, verr
	}
	if surveyID == models.LegacyCheckInSurveyID {
		return nil, models.Conflict("weekly check-ins are created by the scheduler")
	}

	sv, err := t.store.GetSurvey(surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, models.NotFound("survey", surveyID)
	}

	now := t.now().UTC()
	seen := make(map[string]bool, len(caregiverIDs))
	var batch []models.Assignment
	for _, cgID := range caregiverIDs {
		if seen[cgID] {
			continue
		}
		seen[cgID] = true

		cg, err := t.store.GetCaregiver(cgID)
		if err != nil {
			return nil, err
		}
		if cg == nil {
			return nil, models.NotFound("caregiver", cgID)
		}
		patients, err := t.store.ActivePatientIDs(cgID)
		if err != nil {
			return nil, err
		}
		if len(patients) == 0 {
			slog.Debug("Tracker.BulkAssign: caregiver has no active patients", "caregiverID", cgID)
		}
		for _, pID := range patients {
			batch = append(batch, models.Assignment{
				ID:          util.NewID(),
				SurveyID:    surveyID,
				CaregiverID: cgID,
				PatientID:   pID,
				DueAt:       dueAt.UTC(),
				Status:      models.TaskStatusPending,
				CreatedAt:   now,
			})
		}
	}

	if len(batch) == 0 {
		return []models.Assignment{}, nil
	}
	if err := t.store.CreateAssignments(batch); err != nil {
		return nil, err
	}
	slog.Info("Tracker.BulkAssign: assignments created", "surveyID", surveyID, "caregivers", len(seen), "count", len(batch))

	if t.notify {
		t.enqueueNotices(*sv, batch)
	}
	return batch, nil
}

// enqueueNotices queues one notification per assignment. Failures are logged only; the
// assignments are already committed.
func (t *Tracker) enqueueNotices(sv models.Survey, batch []models.Assignment) {
	for _, a := range batch {
		payload, err := json.Marshal(AssignmentNotice{
			AssignmentID: a.ID,
			SurveyID:     sv.ID,
			SurveyTitle:  sv.Title,
			PatientID:    a.PatientID,
			DueAt:        a.DueAt,
		})
		if err != nil {
			slog.Error("Tracker.enqueueNotices: marshal failed", "assignmentID", a.ID, "error", err)
			continue
		}
		if _, err := t.store.EnqueueOutboxMessage(a.CaregiverID, store.OutboxKindAssignmentCreated, string(payload), "assignment:"+a.ID); err != nil {
			slog.Error("Tracker.enqueueNotices: enqueue failed", "assignmentID", a.ID, "error", err)
		}
	}
}

// CancelAssignment withdraws a pending assignment. Cancelled assignments disappear from
// every caregiver-facing list.
func (t *Tracker) CancelAssignment(id string) (*models.Assignment, error) {
	a, err := t.store.GetAssignment(id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, models.NotFound("assignment", id)
	}
	ok, err := t.store.CancelAssignment(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := t.store.GetAssignment(id)
		if err != nil {
			return nil, err
		}
		return nil, models.Conflict("assignment %s is %s", id, current.Status)
	}
	a.Status = models.TaskStatusCancelled
	slog.Info("Tracker.CancelAssignment: cancelled", "assignmentID", id)
	return a, nil
}

// LinkCheckIn attaches a survey to a pending legacy check-in by creating an assignment for
// the same caregiver, patient and due date that points back at the check-in. Linking the
// same survey twice returns the existing assignment and false.
func (t *Tracker) LinkCheckIn(checkInID, surveyID string) (*models.Assignment, bool, error) {
	if surveyID == models.LegacyCheckInSurveyID {
		return nil, false, models.Conflict("the weekly check-in survey cannot be linked to itself")
	}
	ci, err := t.store.GetCheckIn(checkInID)
	if err != nil {
		return nil, false, err
	}
	if ci == nil {
		return nil, false, models.NotFound("check-in", checkInID)
	}
	sv, err := t.store.GetSurvey(surveyID)
	if err != nil {
		return nil, false, err
	}
	if sv == nil {
		return nil, false, models.NotFound("survey", surveyID)
	}

	existing, err := t.store.ListAssignments(ci.CaregiverID)
	if err != nil {
		return nil, false, err
	}
	for i := range existing {
		a := existing[i]
		if a.SurveyID == surveyID && a.CheckInID != nil && *a.CheckInID == checkInID {
			return &a, false, nil
		}
	}
	if ci.Status != models.TaskStatusPending {
		return nil, false, models.Conflict("check-in %s is %s", checkInID, ci.Status)
	}

	linked := ci.ID
	a := models.Assignment{
		ID:          util.NewID(),
		SurveyID:    surveyID,
		CaregiverID: ci.CaregiverID,
		PatientID:   ci.PatientID,
		CheckInID:   &linked,
		DueAt:       ci.DueAt.UTC(),
		Status:      models.TaskStatusPending,
		CreatedAt:   t.now().UTC(),
	}
	if err := t.store.CreateAssignments([]models.Assignment{a}); err != nil {
		return nil, false, err
	}
	slog.Info("Tracker.LinkCheckIn: assignment created", "checkInID", checkInID, "surveyID", surveyID, "assignmentID", a.ID)

	if t.notify {
		t.enqueueNotices(*sv, []models.Assignment{a})
	}
	return &a, true, nil
}

// WeekStart returns the Monday of the week containing now in loc.
func WeekStart(now time.Time, loc *time.Location) models.Date {
	local := now.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	return models.DateOf(local).AddDays(-offset)
}

// CreateWeeklyCheckIns creates a pending check-in for every active care link for the
// given week. Links that already have one for that week are skipped, so the job can be
// rerun safely. It returns the number created.
func (t *Tracker) CreateWeeklyCheckIns(weekOf models.Date) (int, error) {
	links, err := t.store.ActiveCareLinks()
	if err != nil {
		return 0, err
	}
	now := t.now().UTC()
	due := weekOf.AddDays(t.checkInDueDays).In(t.loc).UTC()
	created := 0
	for _, l := range links {
		ok, err := t.store.CreateCheckIn(models.CheckIn{
			ID:          util.NewID(),
			CaregiverID: l.CaregiverID,
			PatientID:   l.PatientID,
			WeekOf:      weekOf,
			DueAt:       due,
			Status:      models.TaskStatusPending,
			CreatedAt:   now,
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	slog.Info("Tracker.CreateWeeklyCheckIns: done", "weekOf", weekOf, "links", len(links), "created", created)
	return created, nil
}

// CheckIns returns the caregiver's legacy check-ins, pending or completed.
func (t *Tracker) CheckIns(caregiverID string, completed bool) ([]models.CheckIn, error) {
	status := models.TaskStatusPending
	if completed {
		status = models.TaskStatusCompleted
	}
	out, err := t.store.ListCheckIns(caregiverID, status)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.CheckIn{}
	}
	return out, nil
}

// UnifiedView merges the caregiver's check-ins and assignments into one prioritized list.
// Completed items are included only when includeCompleted is set; cancelled items never are.
func (t *Tracker) UnifiedView(caregiverID string, includeCompleted bool, now time.Time) ([]TaskItem, error) {
	statuses := []models.TaskStatus{models.TaskStatusPending}
	if includeCompleted {
		statuses = append(statuses, models.TaskStatusCompleted)
	}

	checkIns, err := t.store.ListCheckIns(caregiverID, statuses...)
	if err != nil {
		return nil, err
	}
	assignments, err := t.store.ListAssignments(caregiverID, statuses...)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(checkIns)+len(assignments))
	for _, c := range checkIns {
		tasks = append(tasks, LegacyTask{CheckIn: c})
	}
	for _, a := range assignments {
		tasks = append(tasks, DynamicTask{Assignment: a})
	}

	today := models.DateOf(now.In(t.loc))
	surveys := make(map[string]*models.SurveyWithQuestions)
	items := make([]TaskItem, 0, len(tasks))
	for _, task := range tasks {
		surveyID, target := t.describe(task)
		sv, ok := surveys[surveyID]
		if !ok {
			sv, err = t.surveys.GetSurveyWithQuestions(surveyID)
			if err != nil {
				return nil, err
			}
			surveys[surveyID] = sv
		}
		resp, err := t.store.GetResponseForTarget(target)
		if err != nil {
			return nil, err
		}
		items = append(items, Project(task, *sv, resp, today, t.loc))
	}
	SortTasks(items)
	slog.Debug("Tracker.UnifiedView", "caregiverID", caregiverID, "includeCompleted", includeCompleted, "count", len(items))
	return items, nil
}

func (t *Tracker) describe(task Task) (string, models.SubmissionTarget) {
	switch v := task.(type) {
	case LegacyTask:
		return models.LegacyCheckInSurveyID, models.SubmissionTarget{CheckInID: v.CheckIn.ID}
	case DynamicTask:
		return v.Assignment.SurveyID, models.SubmissionTarget{AssignmentID: v.Assignment.ID}
	}
	return "", models.SubmissionTarget{}
}
