// Package form renders a survey's questions as typed input controls, holds the in-progress
// answers and validates them with the rules synthesized from question metadata.
//
// A Form never submits anything itself. Payload is all-or-nothing: it either returns every
// present answer or a *models.ValidationError and leaves the answers untouched, so a failed
// submission can be retried without re-entering data.
package form

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/validation"
)

// Control is the input widget used for a question type.
type Control string

const (
	ControlTextBox    Control = "text_box"
	ControlNumberBox  Control = "number_box"
	ControlYesNo      Control = "yes_no"
	ControlDatePicker Control = "date_picker"
	ControlSelect     Control = "select"
	ControlChecklist  Control = "checklist"
)

var (
	// ErrUnknownQuestion is returned when a setter names a question the form does not have.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrWrongControl is returned when a setter does not match the question's control.
	ErrWrongControl = errors.New("setter does not match the question's control")
	// ErrFormDirty is returned by CopyFrom when the form already holds answers.
	ErrFormDirty = errors.New("form already has answers")
)

// ControlFor maps a question type to its control.
func ControlFor(t models.QuestionType) Control {
	switch t {
	case models.QuestionTypeNumber:
		return ControlNumberBox
	case models.QuestionTypeBoolean:
		return ControlYesNo
	case models.QuestionTypeDate:
		return ControlDatePicker
	case models.QuestionTypeSingleChoice:
		return ControlSelect
	case models.QuestionTypeMultiChoice:
		return ControlChecklist
	default:
		return ControlTextBox
	}
}

// Field is one rendered question with its current value.
type Field struct {
	Question models.Question
	Control  Control
	Value    models.Answer
	rule     validation.Rule
}

// Form is the in-progress answer sheet of one survey.
type Form struct {
	fields []*Field
	index  map[string]*Field
}

// New builds a form with one field per question in OrderIndex order.
func New(questions []models.Question) *Form {
	sorted := make([]models.Question, len(questions))
	copy(sorted, questions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })

	f := &Form{index: make(map[string]*Field, len(sorted))}
	for _, q := range sorted {
		fld := &Field{
			Question: q,
			Control:  ControlFor(q.Type),
			Value:    initialValue(q.Type),
			rule:     validation.Synthesize(q),
		}
		f.fields = append(f.fields, fld)
		f.index[q.ID] = fld
	}
	return f
}

func initialValue(t models.QuestionType) models.Answer {
	switch t {
	case models.QuestionTypeText, models.QuestionTypeSingleChoice:
		return models.TextAnswer("")
	case models.QuestionTypeMultiChoice:
		return models.MultiAnswer{}
	default:
		return nil
	}
}

// Fields returns a snapshot of the form's fields in render order.
func (f *Form) Fields() []Field {
	out := make([]Field, 0, len(f.fields))
	for _, fld := range f.fields {
		cp := *fld
		cp.Value = cloneAnswer(fld.Value)
		out = append(out, cp)
	}
	return out
}

// Questions returns the form's questions in render order.
func (f *Form) Questions() []models.Question {
	out := make([]models.Question, 0, len(f.fields))
	for _, fld := range f.fields {
		out = append(out, fld.Question)
	}
	return out
}

// Answer returns the current value of a question, nil when unanswered.
func (f *Form) Answer(questionID string) models.Answer {
	if fld, ok := f.index[questionID]; ok {
		return cloneAnswer(fld.Value)
	}
	return nil
}

// HasAnswers reports whether any field holds a non-empty value.
func (f *Form) HasAnswers() bool {
	for _, fld := range f.fields {
		if !models.IsEmpty(fld.Value) {
			return true
		}
	}
	return false
}

func (f *Form) field(questionID string, want ...Control) (*Field, error) {
	fld, ok := f.index[questionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	for _, c := range want {
		if fld.Control == c {
			return fld, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is a %s", ErrWrongControl, questionID, fld.Control)
}

// SetText sets the text of a text box.
func (f *Form) SetText(questionID, text string) error {
	fld, err := f.field(questionID, ControlTextBox)
	if err != nil {
		return err
	}
	fld.Value = models.TextAnswer(text)
	return nil
}

// SetNumber sets a number box from what the caregiver typed. Input that is not a finite
// number is kept as text so validation can report it.
func (f *Form) SetNumber(questionID, raw string) error {
	fld, err := f.field(questionID, ControlNumberBox)
	if err != nil {
		return err
	}
	switch n, ok := models.ParseNumber(raw); {
	case raw == "":
		fld.Value = nil
	case ok:
		fld.Value = models.NumberAnswer(n)
	default:
		fld.Value = models.TextAnswer(raw)
	}
	return nil
}

// SetBool answers a yes/no question.
func (f *Form) SetBool(questionID string, v bool) error {
	fld, err := f.field(questionID, ControlYesNo)
	if err != nil {
		return err
	}
	fld.Value = models.BoolAnswer(v)
	return nil
}

// SetDate sets a date picker.
func (f *Form) SetDate(questionID string, d models.Date) error {
	fld, err := f.field(questionID, ControlDatePicker)
	if err != nil {
		return err
	}
	fld.Value = models.DateAnswer(d)
	return nil
}

// Select picks the option of a single-choice question.
func (f *Form) Select(questionID, value string) error {
	fld, err := f.field(questionID, ControlSelect)
	if err != nil {
		return err
	}
	fld.Value = models.TextAnswer(value)
	return nil
}

// Toggle adds value to a checklist, or removes it if already selected.
func (f *Form) Toggle(questionID, value string) error {
	fld, err := f.field(questionID, ControlChecklist)
	if err != nil {
		return err
	}
	current, _ := fld.Value.(models.MultiAnswer)
	next := make(models.MultiAnswer, 0, len(current)+1)
	removed := false
	for _, v := range current {
		if v == value {
			removed = true
			continue
		}
		next = append(next, v)
	}
	if !removed {
		next = append(next, value)
	}
	fld.Value = next
	return nil
}

// Clear resets a field to its initial value.
func (f *Form) Clear(questionID string) error {
	fld, ok := f.index[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	fld.Value = initialValue(fld.Question.Type)
	return nil
}

// Reset clears every field.
func (f *Form) Reset() {
	for _, fld := range f.fields {
		fld.Value = initialValue(fld.Question.Type)
	}
}

// Validate evaluates every field and returns the reasons of the failing ones keyed by
// question id. The map is empty when the form can be submitted.
func (f *Form) Validate() map[string][]string {
	failures := make(map[string][]string)
	for _, fld := range f.fields {
		if res := fld.rule.Evaluate(fld.Value); !res.Valid {
			failures[fld.Question.ID] = res.Reasons
		}
	}
	return failures
}

// Payload returns the present answers, normalized for their question type, when every
// field is valid. Otherwise it returns a *models.ValidationError and no answers.
func (f *Form) Payload() (map[string]models.Answer, error) {
	if failures := f.Validate(); len(failures) > 0 {
		return nil, &models.ValidationError{Message: "Please correct the highlighted answers", Fields: failures}
	}
	out := make(map[string]models.Answer)
	for _, fld := range f.fields {
		if models.IsEmpty(fld.Value) {
			continue
		}
		out[fld.Question.ID] = validation.Normalize(fld.Question.Type, cloneAnswer(fld.Value))
	}
	return out, nil
}

// CopyFrom fills the form from a previous response ("copy last week's answers"). When the
// form already has answers it refuses with ErrFormDirty unless overwrite is set, in which
// case the form is cleared first. Answers for questions the form no longer has, or that
// do not pass the question's current rule, are skipped. It returns the number of fields filled.
func (f *Form) CopyFrom(previous map[string]models.Answer, overwrite bool) (int, error) {
	if f.HasAnswers() {
		if !overwrite {
			return 0, ErrFormDirty
		}
		f.Reset()
	}
	copied := 0
	for _, fld := range f.fields {
		a, ok := previous[fld.Question.ID]
		if !ok || models.IsEmpty(a) {
			continue
		}
		a = validation.Normalize(fld.Question.Type, a)
		if !fld.rule.Evaluate(a).Valid || !fitsControl(fld.Control, a) {
			continue
		}
		fld.Value = cloneAnswer(a)
		copied++
	}
	return copied, nil
}

// fitsControl reports whether a is a value the control can hold.
func fitsControl(c Control, a models.Answer) bool {
	switch a.(type) {
	case models.TextAnswer:
		return c == ControlTextBox || c == ControlSelect
	case models.NumberAnswer:
		return c == ControlNumberBox
	case models.BoolAnswer:
		return c == ControlYesNo
	case models.DateAnswer:
		return c == ControlDatePicker
	case models.MultiAnswer:
		return c == ControlChecklist
	}
	return false
}

func cloneAnswer(a models.Answer) models.Answer {
	if m, ok := a.(models.MultiAnswer); ok {
		out := make(models.MultiAnswer, len(m))
		copy(out, m)
		return out
	}
	return a
}
