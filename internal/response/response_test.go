package response

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/CareCheck/internal/assignment"
	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/store"
	"github.com/BTreeMap/CareCheck/internal/survey"
	"github.com/BTreeMap/CareCheck/internal/testutil"
	"github.com/BTreeMap/CareCheck/internal/validation"
)

var fixedNow = time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

type fixture struct {
	store   *store.SQLiteStore
	svc     *Service
	tracker *assignment.Tracker
	survey  *models.SurveyWithQuestions
}

func newFixture(t *testing.T) fixture {
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
	return fixture{
		store:   st,
		svc:     NewService(st, surveys, WithClock(clock)),
		tracker: assignment.NewTracker(st, surveys, assignment.WithClock(clock)),
		survey:  withQuestions,
	}
}

// assignAna creates Ana's assignments and returns the one for Rosa.
func (f fixture) assignAna(t *testing.T) models.Assignment {
	t.Helper()
	as, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverAna}, fixedNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("BulkAssign failed: %v", err)
	}
	for _, a := range as {
		if a.PatientID == testutil.PatientRosa {
			return a
		}
	}
	t.Fatal("no assignment for Rosa")
	return models.Assignment{}
}

func (f fixture) q(i int) string { return f.survey.Questions[i].ID }

func raw(t *testing.T, answers map[string]interface{}) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(answers))
	for k, v := range answers {
		out[k] = testutil.MustMarshalJSON(t, v)
	}
	return out
}

func (f fixture) validAnswers(t *testing.T) map[string]json.RawMessage {
	return raw(t, map[string]interface{}{
		f.q(0): false,
		f.q(1): "4",
		f.q(2): "normal",
		f.q(3): []string{"meals", "meals"},
		f.q(4): "2026-10-05T00:00:00Z",
	})
}

func TestSubmitRecordsAndCompletes(t *testing.T) {
	f := newFixture(t)
	a := f.assignAna(t)
	target := models.SubmissionTarget{AssignmentID: a.ID}

	r, err := f.svc.Submit(testutil.CaregiverAna, target, SubmitRequest{
		Answers: f.validAnswers(t),
		Meta:    json.RawMessage(`{"submittedAt":"2026-10-18T15:29:00Z","app":"android"}`),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if r.SurveyID != f.survey.ID || r.PatientID != testutil.PatientRosa || *r.AssignmentID != a.ID {
		t.Errorf("unexpected response %+v", r)
	}
	if len(r.Items) != 5 {
		t.Errorf("expected 5 items, got %d", len(r.Items))
	}

	got, _ := f.store.GetAssignment(a.ID)
	if got.Status != models.TaskStatusCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(fixedNow) {
		t.Errorf("assignment not completed: %+v", got)
	}

	stored, err := f.store.GetResponseForTarget(target)
	if err != nil || stored == nil {
		t.Fatalf("GetResponseForTarget = %v, %v", stored, err)
	}
	answers := stored.AnswerMap()
	if answers[f.q(1)] != models.NumberAnswer(4) {
		t.Errorf("numeric string not normalized: %#v", answers[f.q(1)])
	}
	if !reflect.DeepEqual(answers[f.q(3)], models.MultiAnswer{"meals"}) {
		t.Errorf("duplicate selections not collapsed: %#v", answers[f.q(3)])
	}
	if answers[f.q(4)] != models.DateAnswer(models.Date{Year: 2026, Month: time.October, Day: 5}) {
		t.Errorf("date shifted: %#v", answers[f.q(4)])
	}
}

func TestSubmitTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	a := f.assignAna(t)
	target := models.SubmissionTarget{AssignmentID: a.ID}

	if _, err := f.svc.Submit(testutil.CaregiverAna, target, SubmitRequest{Answers: f.validAnswers(t)}); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	if _, err := f.svc.Submit(testutil.CaregiverAna, target, SubmitRequest{Answers: f.validAnswers(t)}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected conflict on second submit, got %v", err)
	}
	if n, _ := f.store.CountResponses(f.survey.ID); n != 1 {
		t.Errorf("expected exactly one response, got %d", n)
	}
}

func TestConcurrentSubmitsRecordOnce(t *testing.T) {
	f := newFixture(t)
	a := f.assignAna(t)
	target := models.SubmissionTarget{AssignmentID: a.ID}

	answers := f.validAnswers(t)
	const attempts = 5
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(testutil.CaregiverAna, target, SubmitRequest{Answers: answers})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, models.ErrConflict):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one successful submit, got %d", succeeded)
	}
	if n, _ := f.store.CountResponses(f.survey.ID); n != 1 {
		t.Errorf("expected exactly one response, got %d", n)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	a := f.assignAna(t)
	target := models.SubmissionTarget{AssignmentID: a.ID}

	answers := raw(t, map[string]interface{}{
		f.q(0):    "yes",
		f.q(1):    -1,
		f.q(3):    map[string]int{"a": 1},
		"unknown": "x",
	})
	_, err := f.svc.Submit(testutil.CaregiverAna, target, SubmitRequest{Answers: answers})
	ve, ok := models.AsValidationError(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := map[string][]string{
		f.q(0):    {validation.ReasonYesNo},
		f.q(1):    {validation.MinValueReason(0)},
		f.q(2):    {validation.ReasonRequired},
		f.q(3):    {validation.ReasonInvalidOptions},
		"unknown": {ReasonUnknownQuestion},
	}
	if !reflect.DeepEqual(ve.Fields, want) {
		t.Errorf("Fields = %v, want %v", ve.Fields, want)
	}

	got, _ := f.store.GetAssignment(a.ID)
	if got.Status != models.TaskStatusPending {
		t.Errorf("rejected submission changed status to %s", got.Status)
	}

	_, err = f.svc.Submit(testutil.CaregiverAna, target, SubmitRequest{Answers: f.validAnswers(t), Meta: json.RawMessage(`[1]`)})
	if ve, ok := models.AsValidationError(err); !ok || len(ve.Fields["meta"]) == 0 {
		t.Errorf("expected meta validation error, got %v", err)
	}
}

func TestSubmitTargetErrors(t *testing.T) {
	f := newFixture(t)
	a := f.assignAna(t)

	if _, err := f.svc.Submit(testutil.CaregiverBen, models.SubmissionTarget{AssignmentID: a.ID}, SubmitRequest{}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("another caregiver's assignment should be not found, got %v", err)
	}
	if _, err := f.svc.Submit(testutil.CaregiverAna, models.SubmissionTarget{CheckInID: "missing"}, SubmitRequest{}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := f.svc.Submit(testutil.CaregiverAna, models.SubmissionTarget{}, SubmitRequest{}); err == nil {
		t.Error("expected an error for an empty target")
	}

	if _, err := f.tracker.CancelAssignment(a.ID); err != nil {
		t.Fatalf("CancelAssignment failed: %v", err)
	}
	if _, err := f.svc.Submit(testutil.CaregiverAna, models.SubmissionTarget{AssignmentID: a.ID}, SubmitRequest{Answers: f.validAnswers(t)}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected conflict for a cancelled assignment, got %v", err)
	}
}

func TestCheckInSubmissionAndPreviousResponse(t *testing.T) {
	f := newFixture(t)
	week := assignment.WeekStart(fixedNow, time.UTC)
	if _, err := f.tracker.CreateWeeklyCheckIns(week); err != nil {
		t.Fatalf("CreateWeeklyCheckIns failed: %v", err)
	}
	checkIns, err := f.tracker.CheckIns(testutil.CaregiverBen, false)
	if err != nil || len(checkIns) != 1 {
		t.Fatalf("CheckIns = %v, %v", checkIns, err)
	}

	prev, err := f.svc.PreviousResponse(testutil.CaregiverBen, testutil.PatientRosa, models.LegacyCheckInSurveyID)
	if err != nil || prev != nil {
		t.Fatalf("expected no previous response, got %v, %v", prev, err)
	}

	answers := raw(t, map[string]interface{}{
		"wc-mood":  "fair",
		"wc-falls": false,
		"wc-meds":  "yes",
		"wc-pain":  2,
		"wc-visit": "2026-10-14",
	})
	target := models.SubmissionTarget{CheckInID: checkIns[0].ID}
	if _, err := f.svc.Submit(testutil.CaregiverBen, target, SubmitRequest{Answers: answers}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	prev, err = f.svc.PreviousResponse(testutil.CaregiverBen, testutil.PatientRosa, models.LegacyCheckInSurveyID)
	if err != nil {
		t.Fatalf("PreviousResponse failed: %v", err)
	}
	if prev["wc-visit"] != "2026-10-14T00:00:00Z" || prev["wc-mood"] != "fair" || prev["wc-pain"] != float64(2) {
		t.Errorf("unexpected previous answers %v", prev)
	}
	if _, ok := prev["wc-notes"]; ok {
		t.Error("unanswered optional question should be absent")
	}

	if _, err := f.svc.PreviousResponse(testutil.CaregiverBen, "", ""); err == nil {
		t.Error("expected a validation error for missing parameters")
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	a := f.assignAna(t)
	if _, err := f.tracker.BulkAssign(f.survey.ID, []string{testutil.CaregiverBen}, fixedNow); err != nil {
		t.Fatalf("BulkAssign failed: %v", err)
	}
	if _, err := f.svc.Submit(testutil.CaregiverAna, models.SubmissionTarget{AssignmentID: a.ID}, SubmitRequest{Answers: f.validAnswers(t)}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	stats, err := f.svc.Stats(f.survey.ID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Responses != 1 || stats.ByStatus[models.TaskStatusCompleted] != 1 || stats.ByStatus[models.TaskStatusPending] != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Completion < 0.33 || stats.Completion > 0.34 {
		t.Errorf("completion = %v", stats.Completion)
	}

	if _, err := f.svc.Stats("missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
