package assignment

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/store"
	"github.com/BTreeMap/CareCheck/internal/survey"
	"github.com/BTreeMap/CareCheck/internal/testutil"
)

// 2026-10-18 is a Sunday.
var fixedNow = time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

type fixture struct {
	store   *store.SQLiteStore
	surveys *survey.Service
	tracker *Tracker
	survey  *models.SurveyWithQuestions
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	st := testutil.NewSQLiteStore(t)
	testutil.SeedRoster(t, st)
	clock := func() time.Time { return fixedNow }
	surveys := survey.NewService(st, survey.WithClock(clock))
	sv, err := surveys.CreateSurvey("Fall Risk Check", "")
	if err != nil {
		t.Fatalf("CreateSurvey failed: %v", err)
	}
	withQuestions, err := surveys.SaveQuestions(sv.ID, 0, testutil.SampleQuestions())
	if err != nil {
		t.Fatalf("SaveQuestions failed: %v", err)
	}
	opts = append([]Option{WithClock(clock)}, opts...)
	return fixture{
		store:   st,
		surveys: surveys,
		tracker: NewTracker(st, surveys, opts...),
		survey:  withQuestions,
	}
}

func TestBulkAssignExpandsPerPatient(t *testing.T) {
	f := newFixture(t)
	due := fixedNow.Add(48 * time.Hour)

	got, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverAna, testutil.CaregiverBen, testutil.CaregiverAna}, due)
	if err != nil {
		t.Fatalf("BulkAssign failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 assignments (2 for Ana, 1 for Ben), got %d", len(got))
	}
	for _, a := range got {
		if a.Status != models.TaskStatusPending || !a.DueAt.Equal(due) || a.SurveyID != f.survey.ID {
			t.Errorf("unexpected assignment %+v", a)
		}
	}
	stored, _ := f.store.ListAssignments(testutil.CaregiverAna)
	if len(stored) != 2 {
		t.Errorf("expected 2 stored for Ana, got %d", len(stored))
	}
}

func TestBulkAssignZeroPatientsIsEmpty(t *testing.T) {
	f := newFixture(t)
	got, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverCruz}, fixedNow)
	if err != nil {
		t.Fatalf("caregiver without patients must not be an error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty, non-nil expansion, got %v", got)
	}
}

func TestBulkAssignErrors(t *testing.T) {
	f := newFixture(t)

	if _, err := f.tracker.BulkAssign("missing", []string{testutil.CaregiverAna}, fixedNow); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected survey not found, got %v", err)
	}
	_, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverAna, "cg-ghost"}, fixedNow)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected caregiver not found, got %v", err)
	}
	if stored, _ := f.store.ListAssignments(testutil.CaregiverAna); len(stored) != 0 {
		t.Errorf("failed request created %d assignments", len(stored))
	}
	if _, err := f.tracker.BulkAssign(f.survey.ID, nil, time.Time{}); err == nil {
		t.Error("expected validation error")
	} else if ve, ok := models.AsValidationError(err); !ok || len(ve.Fields) != 2 {
		t.Errorf("expected two field reasons, got %v", err)
	}
}

func TestBulkAssignQueuesNotifications(t *testing.T) {
	f := newFixture(t, WithNotifications(true))
	got, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverAna}, fixedNow)
	if err != nil {
		t.Fatalf("BulkAssign failed: %v", err)
	}
	msgs, err := f.store.ClaimDueOutboxMessages(time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
	}
	if len(msgs) != len(got) {
		t.Fatalf("expected %d notifications, got %d", len(got), len(msgs))
	}
	for _, m := range msgs {
		if m.RecipientID != testutil.CaregiverAna || m.Kind != store.OutboxKindAssignmentCreated {
			t.Errorf("unexpected message %+v", m)
		}
	}
}

func TestUnifiedViewPriorityOrdering(t *testing.T) {
	f := newFixture(t)

	yesterday := fixedNow.Add(-24 * time.Hour)
	laterToday := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	earlierToday := time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC)
	inFiveDays := fixedNow.Add(5 * 24 * time.Hour)

	for _, due := range []time.Time{inFiveDays, laterToday, yesterday, earlierToday} {
		if _, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverBen}, due); err != nil {
			t.Fatalf("BulkAssign failed: %v", err)
		}
	}

	items, err := f.tracker.UnifiedView(testutil.CaregiverBen, false, fixedNow)
	if err != nil {
		t.Fatalf("UnifiedView failed: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	wantPriority := []int{PriorityOverdue, PriorityDueToday, PriorityDueToday, PriorityUpcoming}
	wantDue := []time.Time{yesterday, earlierToday, laterToday, inFiveDays}
	for i, it := range items {
		if it.Priority != wantPriority[i] {
			t.Errorf("item %d: priority %d, want %d", i, it.Priority, wantPriority[i])
		}
		if !it.DueAt.Equal(wantDue[i]) {
			t.Errorf("item %d: due %v, want %v", i, it.DueAt, wantDue[i])
		}
		if it.Title != "Fall Risk Check" || it.Kind != TaskKindDynamic {
			t.Errorf("item %d: unexpected projection %+v", i, it)
		}
		if it.ProgressCurrent != 0 || it.ProgressTotal != 3 {
			t.Errorf("item %d: progress %d/%d, want 0/3", i, it.ProgressCurrent, it.ProgressTotal)
		}
	}
}

func TestUnifiedViewUsesAgencyTimeZone(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	f := newFixture(t, WithLocation(loc))

	// 02:00 UTC on the 19th is still the 18th in the agency's zone.
	due := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)
	if _, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverBen}, due); err != nil {
		t.Fatalf("BulkAssign failed: %v", err)
	}
	items, err := f.tracker.UnifiedView(testutil.CaregiverBen, false, fixedNow)
	if err != nil {
		t.Fatalf("UnifiedView failed: %v", err)
	}
	if items[0].Priority != PriorityDueToday {
		t.Errorf("expected due today in agency zone, got priority %d (due date %v)", items[0].Priority, items[0].DueDate)
	}
}

func TestUnifiedViewMergesCompletedAndHidesCancelled(t *testing.T) {
	f := newFixture(t)

	week := WeekStart(fixedNow, time.UTC)
	if n, err := f.tracker.CreateWeeklyCheckIns(week); err != nil || n != 3 {
		t.Fatalf("CreateWeeklyCheckIns = %d, %v", n, err)
	}
	assigned, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverAna}, fixedNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("BulkAssign failed: %v", err)
	}
	if _, err := f.tracker.CancelAssignment(assigned[1].ID); err != nil {
		t.Fatalf("CancelAssignment failed: %v", err)
	}

	done := assigned[0]
	id := done.ID
	err = f.store.RecordResponse(models.Response{
		ID: "resp-1", SurveyID: f.survey.ID, AssignmentID: &id,
		CaregiverID: done.CaregiverID, PatientID: done.PatientID, SubmittedAt: fixedNow,
		Items: []models.ResponseItem{
			{ID: "it-1", QuestionID: f.survey.Questions[0].ID, Answer: models.BoolAnswer(false)},
			{ID: "it-2", QuestionID: f.survey.Questions[1].ID, Answer: models.NumberAnswer(2)},
		},
	}, models.SubmissionTarget{AssignmentID: id})
	if err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}

	pending, err := f.tracker.UnifiedView(testutil.CaregiverAna, false, fixedNow)
	if err != nil {
		t.Fatalf("UnifiedView failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending check-ins, got %+v", pending)
	}
	for _, it := range pending {
		if it.Kind != TaskKindLegacy || it.SurveyID != models.LegacyCheckInSurveyID || it.ProgressTotal != 5 {
			t.Errorf("unexpected pending item %+v", it)
		}
	}

	all, err := f.tracker.UnifiedView(testutil.CaregiverAna, true, fixedNow)
	if err != nil {
		t.Fatalf("UnifiedView failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 items with completed, got %d", len(all))
	}
	last := all[len(all)-1]
	if last.ID != done.ID || last.Priority != PriorityCompleted || last.CompletedAt == nil {
		t.Errorf("completed item should sort last with a completion time: %+v", last)
	}
	if last.ProgressCurrent != 2 || last.ProgressTotal != 3 {
		t.Errorf("progress = %d/%d, want 2/3", last.ProgressCurrent, last.ProgressTotal)
	}
	for _, it := range all {
		if it.ID == assigned[1].ID {
			t.Error("cancelled assignment is visible")
		}
	}
}

func TestCancelAssignment(t *testing.T) {
	f := newFixture(t)
	assigned, _ := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverBen}, fixedNow)

	if _, err := f.tracker.CancelAssignment("missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := f.tracker.CancelAssignment(assigned[0].ID); err != nil {
		t.Fatalf("CancelAssignment failed: %v", err)
	}
	if _, err := f.tracker.CancelAssignment(assigned[0].ID); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected conflict on second cancel, got %v", err)
	}
}

func TestCreateWeeklyCheckInsIsIdempotent(t *testing.T) {
	f := newFixture(t, WithCheckInDueDays(4))
	week := models.Date{Year: 2026, Month: time.October, Day: 12}

	n, err := f.tracker.CreateWeeklyCheckIns(week)
	if err != nil || n != 3 {
		t.Fatalf("first run = %d, %v", n, err)
	}
	n, err = f.tracker.CreateWeeklyCheckIns(week)
	if err != nil || n != 0 {
		t.Fatalf("second run = %d, %v; want 0 new", n, err)
	}

	pending, err := f.tracker.CheckIns(testutil.CaregiverAna, false)
	if err != nil || len(pending) != 2 {
		t.Fatalf("CheckIns = %v, %v", pending, err)
	}
	wantDue := models.Date{Year: 2026, Month: time.October, Day: 16}
	if got := models.DateOf(pending[0].DueAt.In(time.UTC)); got != wantDue {
		t.Errorf("due date %v, want %v", got, wantDue)
	}
	completed, _ := f.tracker.CheckIns(testutil.CaregiverAna, true)
	if len(completed) != 0 {
		t.Errorf("expected no completed check-ins, got %d", len(completed))
	}
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		now  time.Time
		want models.Date
	}{
		{time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), models.Date{Year: 2026, Month: time.October, Day: 12}},
		{time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), models.Date{Year: 2026, Month: time.October, Day: 19}},
		{time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC), models.Date{Year: 2026, Month: time.September, Day: 28}},
	}
	for _, tt := range tests {
		if got := WeekStart(tt.now, time.UTC); got != tt.want {
			t.Errorf("WeekStart(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestPriority(t *testing.T) {
	today := models.Date{Year: 2026, Month: time.October, Day: 18}
	tests := []struct {
		status models.TaskStatus
		due    models.Date
		want   int
	}{
		{models.TaskStatusPending, today.AddDays(-1), PriorityOverdue},
		{models.TaskStatusPending, today, PriorityDueToday},
		{models.TaskStatusPending, today.AddDays(5), PriorityUpcoming},
		{models.TaskStatusCompleted, today.AddDays(-3), PriorityCompleted},
	}
	for _, tt := range tests {
		if got := Priority(tt.status, tt.due, today); got != tt.want {
			t.Errorf("Priority(%s, %v) = %d, want %d", tt.status, tt.due, got, tt.want)
		}
	}
}

func TestLinkCheckInCreatesLinkedAssignment(t *testing.T) {
	f := newFixture(t, WithNotifications(true))
	week := models.Date{Year: 2026, Month: time.October, Day: 12}
	if _, err := f.tracker.CreateWeeklyCheckIns(week); err != nil {
		t.Fatalf("CreateWeeklyCheckIns failed: %v", err)
	}
	checkIns, err := f.tracker.CheckIns(testutil.CaregiverBen, false)
	if err != nil || len(checkIns) != 1 {
		t.Fatalf("CheckIns = %v, %v", checkIns, err)
	}
	ci := checkIns[0]

	a, created, err := f.tracker.LinkCheckIn(ci.ID, f.survey.ID)
	if err != nil || !created {
		t.Fatalf("LinkCheckIn = %v, %v", created, err)
	}
	if a.CheckInID == nil || *a.CheckInID != ci.ID {
		t.Errorf("expected link to %s, got %v", ci.ID, a.CheckInID)
	}
	if a.CaregiverID != ci.CaregiverID || a.PatientID != ci.PatientID || !a.DueAt.Equal(ci.DueAt) {
		t.Errorf("assignment does not mirror check-in: %+v vs %+v", a, ci)
	}

	stored, err := f.store.GetAssignment(a.ID)
	if err != nil || stored == nil || stored.CheckInID == nil || *stored.CheckInID != ci.ID {
		t.Fatalf("stored link = %+v, %v", stored, err)
	}

	again, created, err := f.tracker.LinkCheckIn(ci.ID, f.survey.ID)
	if err != nil || created || again.ID != a.ID {
		t.Errorf("second link = %+v, %v, %v; want existing assignment", again, created, err)
	}
	if list, _ := f.store.ListAssignments(testutil.CaregiverBen); len(list) != 1 {
		t.Errorf("expected one assignment for Ben, got %d", len(list))
	}

	msgs, err := f.store.ClaimDueOutboxMessages(time.Now().Add(time.Minute), 10)
	if err != nil || len(msgs) != 1 {
		t.Errorf("expected one notification, got %d, %v", len(msgs), err)
	}
}

func TestLinkCheckInErrors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.tracker.CreateWeeklyCheckIns(models.Date{Year: 2026, Month: time.October, Day: 12}); err != nil {
		t.Fatalf("CreateWeeklyCheckIns failed: %v", err)
	}
	checkIns, _ := f.tracker.CheckIns(testutil.CaregiverBen, false)
	ci := checkIns[0]

	if _, _, err := f.tracker.LinkCheckIn("missing", f.survey.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected check-in not found, got %v", err)
	}
	if _, _, err := f.tracker.LinkCheckIn(ci.ID, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected survey not found, got %v", err)
	}
	if _, _, err := f.tracker.LinkCheckIn(ci.ID, models.LegacyCheckInSurveyID); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected conflict for the weekly check-in survey, got %v", err)
	}
}
