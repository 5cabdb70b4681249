// Package validation turns a question's declarative metadata into a runtime rule.
//
// A Rule is the composition of an independent presence rule (required or not) and the
// content rules synthesized from the question type and its constraints. Reasons are
// fixed English strings keyed only by constraint type and bound so callers can match
// them literally.
package validation

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/CareCheck/internal/models"
)

// Rejection reasons.
const (
	ReasonRequired       = "This field is required"
	ReasonSelectOne      = "Please select at least one option"
	ReasonInvalidNumber  = "Please enter a valid number"
	ReasonYesNo          = "Please select yes or no"
	ReasonInvalidDate    = "Please enter a valid date"
	ReasonInvalidOption  = "Please select a valid option"
	ReasonInvalidOptions = "Please select only valid options"
	ReasonExpectText     = "Please enter text"
)

// MinLengthReason and the functions below format bound-specific reasons.
func MinLengthReason(n int) string { return fmt.Sprintf("Minimum %d characters required", n) }

func MaxLengthReason(n int) string { return fmt.Sprintf("Maximum %d characters allowed", n) }

func MinValueReason(v float64) string { return "Minimum value is " + models.FormatNumber(v) }

func MaxValueReason(v float64) string { return "Maximum value is " + models.FormatNumber(v) }

// Result is the outcome of evaluating one answer.
type Result struct {
	Valid   bool
	Reasons []string
}

// check inspects a present answer and returns rejection reasons.
type check func(models.Answer) []string

// Rule is the synthesized predicate for one question.
type Rule struct {
	QuestionID string
	Required   bool
	absent     string
	base       check
	extras     []check
}

// Synthesize builds the rule for q. It is a pure function of the question's type,
// required flag, constraints and declared option values.
func Synthesize(q models.Question) Rule {
	r := Rule{QuestionID: q.ID, Required: q.Required, absent: ReasonRequired}
	c := q.Validation
	if c == nil {
		c = &models.Constraints{}
	}

	switch q.Type {
	case models.QuestionTypeText:
		r.base = textBase
		if c.MinLength != nil {
			r.extras = append(r.extras, minLength(*c.MinLength))
		}
		if c.MaxLength != nil {
			r.extras = append(r.extras, maxLength(*c.MaxLength))
		}
	case models.QuestionTypeNumber:
		r.base = numberBase
		if c.Min != nil {
			r.extras = append(r.extras, minValue(*c.Min))
		}
		if c.Max != nil {
			r.extras = append(r.extras, maxValue(*c.Max))
		}
	case models.QuestionTypeBoolean:
		r.base = boolBase
	case models.QuestionTypeDate:
		r.base = dateBase
	case models.QuestionTypeSingleChoice:
		r.base = singleChoice(optionSet(q))
	case models.QuestionTypeMultiChoice:
		r.absent = ReasonSelectOne
		r.base = multiChoice(optionSet(q))
	default:
		r.base = func(models.Answer) []string {
			return []string{fmt.Sprintf("Unsupported question type %q", q.Type)}
		}
	}
	return r
}

// Evaluate applies the rule to a (nil when unanswered). An answer is valid if it is
// absent and not required, or present and accepted by the base and extra rules.
func (r Rule) Evaluate(a models.Answer) Result {
	if models.IsEmpty(a) {
		if r.Required {
			return Result{Valid: false, Reasons: []string{r.absent}}
		}
		return Result{Valid: true}
	}
	if reasons := r.base(a); len(reasons) > 0 {
		return Result{Valid: false, Reasons: reasons}
	}
	var reasons []string
	for _, extra := range r.extras {
		reasons = append(reasons, extra(a)...)
	}
	return Result{Valid: len(reasons) == 0, Reasons: reasons}
}

// EvaluateAll checks answers against every question and returns reasons keyed by
// question id. The result is empty when all answers pass.
func EvaluateAll(questions []models.Question, answers map[string]models.Answer) map[string][]string {
	failures := make(map[string][]string)
	for _, q := range questions {
		res := Synthesize(q).Evaluate(answers[q.ID])
		if !res.Valid {
			failures[q.ID] = res.Reasons
		}
	}
	return failures
}

// Normalize converts an accepted answer to the canonical variant for the question type,
// e.g. a numeric string for a number question becomes a NumberAnswer and repeated
// selections of a multi-choice answer collapse to one.
func Normalize(t models.QuestionType, a models.Answer) models.Answer {
	switch v := a.(type) {
	case models.TextAnswer:
		if t == models.QuestionTypeNumber {
			if f, ok := models.ParseNumber(string(v)); ok {
				return models.NumberAnswer(f)
			}
		}
	case models.MultiAnswer:
		seen := make(map[string]struct{}, len(v))
		out := make(models.MultiAnswer, 0, len(v))
		for _, token := range v {
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			out = append(out, token)
		}
		return out
	}
	return a
}

func optionSet(q models.Question) map[string]struct{} {
	set := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		set[o.Value] = struct{}{}
	}
	return set
}

func textBase(a models.Answer) []string {
	if _, ok := a.(models.TextAnswer); !ok {
		return []string{ReasonExpectText}
	}
	return nil
}

func minLength(n int) check {
	return func(a models.Answer) []string {
		if utf8.RuneCountInString(string(a.(models.TextAnswer))) < n {
			return []string{MinLengthReason(n)}
		}
		return nil
	}
}

func maxLength(n int) check {
	return func(a models.Answer) []string {
		if utf8.RuneCountInString(string(a.(models.TextAnswer))) > n {
			return []string{MaxLengthReason(n)}
		}
		return nil
	}
}

func numberOf(a models.Answer) (float64, bool) {
	switch v := a.(type) {
	case models.NumberAnswer:
		return float64(v), true
	case models.TextAnswer:
		return models.ParseNumber(string(v))
	default:
		return 0, false
	}
}

func numberBase(a models.Answer) []string {
	if _, ok := numberOf(a); !ok {
		return []string{ReasonInvalidNumber}
	}
	return nil
}

func minValue(bound float64) check {
	return func(a models.Answer) []string {
		if v, _ := numberOf(a); v < bound {
			return []string{MinValueReason(bound)}
		}
		return nil
	}
}

func maxValue(bound float64) check {
	return func(a models.Answer) []string {
		if v, _ := numberOf(a); v > bound {
			return []string{MaxValueReason(bound)}
		}
		return nil
	}
}

func boolBase(a models.Answer) []string {
	if _, ok := a.(models.BoolAnswer); !ok {
		return []string{ReasonYesNo}
	}
	return nil
}

func dateBase(a models.Answer) []string {
	d, ok := a.(models.DateAnswer)
	if !ok {
		return []string{ReasonInvalidDate}
	}
	// Reject dates that do not survive normalization (e.g. February 30th).
	if models.DateOf(models.Date(d).In(time.UTC)) != models.Date(d) {
		return []string{ReasonInvalidDate}
	}
	return nil
}

func singleChoice(options map[string]struct{}) check {
	return func(a models.Answer) []string {
		v, ok := a.(models.TextAnswer)
		if !ok {
			return []string{ReasonInvalidOption}
		}
		if _, ok := options[string(v)]; !ok {
			return []string{ReasonInvalidOption}
		}
		return nil
	}
}

func multiChoice(options map[string]struct{}) check {
	return func(a models.Answer) []string {
		v, ok := a.(models.MultiAnswer)
		if !ok {
			return []string{ReasonInvalidOptions}
		}
		if len(v) == 0 {
			return []string{ReasonSelectOne}
		}
		for _, token := range v {
			if _, ok := options[token]; !ok {
				return []string{ReasonInvalidOptions}
			}
		}
		return nil
	}
}

// TypeReason is the reason given for a value whose shape does not fit questions of type t.
func TypeReason(t models.QuestionType) string {
	switch t {
	case models.QuestionTypeNumber:
		return ReasonInvalidNumber
	case models.QuestionTypeBoolean:
		return ReasonYesNo
	case models.QuestionTypeDate:
		return ReasonInvalidDate
	case models.QuestionTypeSingleChoice:
		return ReasonInvalidOption
	case models.QuestionTypeMultiChoice:
		return ReasonInvalidOptions
	default:
		return ReasonExpectText
	}
}
