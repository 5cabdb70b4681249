package form

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/testutil"
	"github.com/BTreeMap/CareCheck/internal/validation"
)

// sampleForm builds a form over the sample questions with ids q0..q5.
func sampleForm() *Form {
	qs := testutil.SampleQuestions()
	for i := range qs {
		qs[i].ID = fmt.Sprintf("q%d", i)
		qs[i].OrderIndex = i
	}
	return New(qs)
}

func fillRequired(t *testing.T, f *Form) {
	t.Helper()
	if err := f.SetBool("q0", false); err != nil {
		t.Fatal(err)
	}
	if err := f.SetNumber("q1", "3"); err != nil {
		t.Fatal(err)
	}
	if err := f.Select("q2", "normal"); err != nil {
		t.Fatal(err)
	}
}

func TestNewRendersControlsInOrder(t *testing.T) {
	qs := testutil.SampleQuestions()
	for i := range qs {
		qs[i].ID = fmt.Sprintf("q%d", i)
		qs[i].OrderIndex = len(qs) - i
	}
	f := New(qs)

	fields := f.Fields()
	if fields[0].Question.ID != "q5" || fields[len(fields)-1].Question.ID != "q0" {
		t.Errorf("fields not sorted by order index: first %s last %s", fields[0].Question.ID, fields[len(fields)-1].Question.ID)
	}

	want := map[string]Control{
		"q0": ControlYesNo,
		"q1": ControlNumberBox,
		"q2": ControlSelect,
		"q3": ControlChecklist,
		"q4": ControlDatePicker,
		"q5": ControlTextBox,
	}
	for _, fld := range fields {
		if fld.Control != want[fld.Question.ID] {
			t.Errorf("%s rendered as %s, want %s", fld.Question.ID, fld.Control, want[fld.Question.ID])
		}
	}
	if f.HasAnswers() {
		t.Error("new form should have no answers")
	}
	if got := f.Answer("q5"); got != models.TextAnswer("") {
		t.Errorf("text initial value = %#v", got)
	}
	if got, ok := f.Answer("q3").(models.MultiAnswer); !ok || len(got) != 0 {
		t.Errorf("checklist initial value = %#v", f.Answer("q3"))
	}
}

func TestSettersRejectWrongControl(t *testing.T) {
	f := sampleForm()

	if err := f.SetText("q0", "yes"); !errors.Is(err, ErrWrongControl) {
		t.Errorf("SetText on yes/no: expected ErrWrongControl, got %v", err)
	}
	if err := f.Toggle("q2", "normal"); !errors.Is(err, ErrWrongControl) {
		t.Errorf("Toggle on select: expected ErrWrongControl, got %v", err)
	}
	if err := f.SetBool("missing", true); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}
	if err := f.Clear("missing"); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("Clear: expected ErrUnknownQuestion, got %v", err)
	}
}

func TestToggle(t *testing.T) {
	f := sampleForm()
	for _, v := range []string{"meals", "bathing", "meals"} {
		if err := f.Toggle("q3", v); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.Answer("q3"); !reflect.DeepEqual(got, models.MultiAnswer{"bathing"}) {
		t.Errorf("Toggle result = %#v", got)
	}
}

func TestValidate(t *testing.T) {
	f := sampleForm()

	failures := f.Validate()
	for _, id := range []string{"q0", "q1", "q2"} {
		if !reflect.DeepEqual(failures[id], []string{validation.ReasonRequired}) {
			t.Errorf("%s reasons = %v", id, failures[id])
		}
	}
	if len(failures) != 3 {
		t.Errorf("expected only required fields to fail, got %v", failures)
	}

	fillRequired(t, f)
	_ = f.SetNumber("q1", "11")
	_ = f.SetText("q5", "")
	if got := f.Validate()["q1"]; !reflect.DeepEqual(got, []string{validation.MaxValueReason(10)}) {
		t.Errorf("out of range reasons = %v", got)
	}

	_ = f.SetNumber("q1", "abc")
	if got := f.Validate()["q1"]; !reflect.DeepEqual(got, []string{validation.ReasonInvalidNumber}) {
		t.Errorf("non-numeric reasons = %v", got)
	}

	_ = f.SetNumber("q1", "")
	if got := f.Answer("q1"); got != nil {
		t.Errorf("empty number input should clear the field, got %#v", got)
	}
}

func TestPayloadIsAllOrNothing(t *testing.T) {
	f := sampleForm()
	_ = f.SetBool("q0", true)
	_ = f.SetText("q5", "Walked with a cane")

	answers, err := f.Payload()
	if answers != nil {
		t.Errorf("invalid form returned answers %v", answers)
	}
	ve, ok := models.AsValidationError(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(ve.Fields) != 2 {
		t.Errorf("expected q1 and q2 to fail, got %v", ve.Fields)
	}
	if f.Answer("q0") != models.BoolAnswer(true) || f.Answer("q5") != models.TextAnswer("Walked with a cane") {
		t.Error("failed payload must keep the entered answers")
	}

	_ = f.SetNumber("q1", " 4.5 ")
	_ = f.Select("q2", "reduced")
	_ = f.SetDate("q4", models.Date{Year: 2026, Month: 10, Day: 2})
	answers, err = f.Payload()
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}
	want := map[string]models.Answer{
		"q0": models.BoolAnswer(true),
		"q1": models.NumberAnswer(4.5),
		"q2": models.TextAnswer("reduced"),
		"q4": models.DateAnswer(models.Date{Year: 2026, Month: 10, Day: 2}),
		"q5": models.TextAnswer("Walked with a cane"),
	}
	if !reflect.DeepEqual(answers, want) {
		t.Errorf("Payload = %#v, want %#v", answers, want)
	}
}

func TestCopyFrom(t *testing.T) {
	previous := map[string]models.Answer{
		"q0":      models.BoolAnswer(true),
		"q1":      models.NumberAnswer(12), // out of the current range
		"q2":      models.TextAnswer("gone"),
		"q3":      models.MultiAnswer{"meals", "meals"},
		"q5":      models.NumberAnswer(3), // wrong kind for a text box
		"removed": models.TextAnswer("x"),
	}

	f := sampleForm()
	n, err := f.CopyFrom(previous, false)
	if err != nil {
		t.Fatalf("CopyFrom failed: %v", err)
	}
	if n != 2 {
		t.Errorf("copied %d answers, want 2", n)
	}
	if f.Answer("q0") != models.BoolAnswer(true) {
		t.Errorf("q0 = %#v", f.Answer("q0"))
	}
	if got := f.Answer("q3"); !reflect.DeepEqual(got, models.MultiAnswer{"meals"}) {
		t.Errorf("q3 = %#v", got)
	}
	if f.Answer("q1") != nil || f.Answer("q2") != models.TextAnswer("") {
		t.Error("answers that no longer validate must not be copied")
	}

	if _, err := f.CopyFrom(previous, false); !errors.Is(err, ErrFormDirty) {
		t.Errorf("expected ErrFormDirty, got %v", err)
	}

	_ = f.SetText("q5", "typed before copying")
	n, err = f.CopyFrom(map[string]models.Answer{"q2": models.TextAnswer("normal")}, true)
	if err != nil || n != 1 {
		t.Fatalf("overwrite CopyFrom = %d, %v", n, err)
	}
	if f.Answer("q5") != models.TextAnswer("") || f.Answer("q0") != nil {
		t.Error("overwrite should clear the form before copying")
	}
}
