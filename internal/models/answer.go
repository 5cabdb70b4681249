package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AnswerKind discriminates the Answer variants.
type AnswerKind string

const (
	AnswerKindText   AnswerKind = "text"
	AnswerKindNumber AnswerKind = "number"
	AnswerKindBool   AnswerKind = "boolean"
	AnswerKindDate   AnswerKind = "date"
	AnswerKindMulti  AnswerKind = "multi"
)

// Answer is the value given to one question. The set of variants is closed:
// TextAnswer, NumberAnswer, BoolAnswer, DateAnswer and MultiAnswer.
// A nil Answer means the question is unanswered.
type Answer interface {
	Kind() AnswerKind
	isAnswer()
}

// TextAnswer is free text or the token of a single-choice option.
type TextAnswer string

// NumberAnswer is a finite numeric value.
type NumberAnswer float64

// BoolAnswer is an explicit yes or no.
type BoolAnswer bool

// DateAnswer is a calendar date.
type DateAnswer Date

// MultiAnswer is the set of selected option tokens of a multi-choice question.
type MultiAnswer []string

func (TextAnswer) Kind() AnswerKind   { return AnswerKindText }
func (NumberAnswer) Kind() AnswerKind { return AnswerKindNumber }
func (BoolAnswer) Kind() AnswerKind   { return AnswerKindBool }
func (DateAnswer) Kind() AnswerKind   { return AnswerKindDate }
func (MultiAnswer) Kind() AnswerKind  { return AnswerKindMulti }

func (TextAnswer) isAnswer()   {}
func (NumberAnswer) isAnswer() {}
func (BoolAnswer) isAnswer()   {}
func (DateAnswer) isAnswer()   {}
func (MultiAnswer) isAnswer()  {}

var ErrMalformedAnswer = errors.New("malformed answer")

// IsEmpty reports whether a is absent: nil, an empty text or an empty selection.
func IsEmpty(a Answer) bool {
	switch v := a.(type) {
	case nil:
		return true
	case TextAnswer:
		return v == ""
	case MultiAnswer:
		return len(v) == 0
	default:
		return false
	}
}

// ParseNumber coerces a text input to a finite number.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FormatNumber renders f in its shortest decimal form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WireValue converts a to its transmittable form: strings, float64, bool or []string.
// Dates become ISO 8601 strings at midnight UTC.
func WireValue(a Answer) interface{} {
	switch v := a.(type) {
	case TextAnswer:
		return string(v)
	case NumberAnswer:
		return float64(v)
	case BoolAnswer:
		return bool(v)
	case DateAnswer:
		return Date(v).ISO()
	case MultiAnswer:
		out := make([]string, len(v))
		copy(out, v)
		return out
	default:
		return nil
	}
}

// DecodeAnswer interprets a wire value for a question of type t. JSON null yields nil.
// Strings are coerced for number and date questions when possible; values that cannot be
// coerced are kept as TextAnswer so validation can reject them with a typed reason.
func DecodeAnswer(t QuestionType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
		}
		switch t {
		case QuestionTypeNumber:
			if f, ok := ParseNumber(s); ok {
				return NumberAnswer(f), nil
			}
		case QuestionTypeDate:
			if d, err := ParseDate(s); err == nil {
				return DateAnswer(d), nil
			}
		}
		return TextAnswer(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
		}
		return BoolAnswer(b), nil
	case '[':
		var items []string
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: expected an array of strings", ErrMalformedAnswer)
		}
		return MultiAnswer(items), nil
	case '{':
		return nil, fmt.Errorf("%w: objects are not accepted", ErrMalformedAnswer)
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
		}
		return NumberAnswer(f), nil
	}
}

// storedAnswer is the tagged JSON form persisted in the answer column.
type storedAnswer struct {
	Kind  AnswerKind      `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalAnswer serializes a to the tagged storage form.
func MarshalAnswer(a Answer) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil answer", ErrMalformedAnswer)
	}
	var value interface{} = WireValue(a)
	if d, ok := a.(DateAnswer); ok {
		value = Date(d).String()
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(storedAnswer{Kind: a.Kind(), Value: b})
}

// UnmarshalAnswer restores an Answer from its tagged storage form.
func UnmarshalAnswer(data []byte) (Answer, error) {
	var s storedAnswer
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	switch s.Kind {
	case AnswerKindText:
		var v string
		err := json.Unmarshal(s.Value, &v)
		return TextAnswer(v), err
	case AnswerKindNumber:
		var v float64
		err := json.Unmarshal(s.Value, &v)
		return NumberAnswer(v), err
	case AnswerKindBool:
		var v bool
		err := json.Unmarshal(s.Value, &v)
		return BoolAnswer(v), err
	case AnswerKindDate:
		var v string
		if err := json.Unmarshal(s.Value, &v); err != nil {
			return nil, err
		}
		d, err := ParseDate(v)
		return DateAnswer(d), err
	case AnswerKindMulti:
		var v []string
		err := json.Unmarshal(s.Value, &v)
		return MultiAnswer(v), err
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedAnswer, s.Kind)
	}
}

// AnswerColumns holds the denormalized typed projection of an answer used for
// filtering and indexing. Exactly one field is set for scalar kinds; multi answers
// set Text to the comma-joined tokens.
type AnswerColumns struct {
	Text   *string
	Number *float64
	Bool   *bool
	Date   *string
}

// ColumnsOf projects a into its typed storage columns.
func ColumnsOf(a Answer) AnswerColumns {
	var c AnswerColumns
	switch v := a.(type) {
	case TextAnswer:
		s := string(v)
		c.Text = &s
	case NumberAnswer:
		f := float64(v)
		c.Number = &f
	case BoolAnswer:
		b := bool(v)
		c.Bool = &b
	case DateAnswer:
		s := Date(v).String()
		c.Date = &s
	case MultiAnswer:
		s := strings.Join(v, ",")
		c.Text = &s
	}
	return c
}
