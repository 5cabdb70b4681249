package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseDateKeepsCalendarDay(t *testing.T) {
	tests := []struct {
		in   string
		want Date
	}{
		{"2026-03-08", Date{2026, time.March, 8}},
		{"2026-03-08T00:00:00Z", Date{2026, time.March, 8}},
		{"2026-03-08T23:30:00-08:00", Date{2026, time.March, 8}},
		{" 2026-12-31 ", Date{2026, time.December, 31}},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if err != nil {
			t.Errorf("ParseDate(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseDate("next tuesday"); err == nil {
		t.Error("expected an error for free text")
	}
}

func TestDateFormsAndJSON(t *testing.T) {
	d := Date{2026, time.October, 5}
	if d.String() != "2026-10-05" {
		t.Errorf("String = %s", d.String())
	}
	if d.ISO() != "2026-10-05T00:00:00Z" {
		t.Errorf("ISO = %s", d.ISO())
	}
	if got := d.AddDays(-5); got != (Date{2026, time.September, 30}) {
		t.Errorf("AddDays = %v", got)
	}

	data, err := json.Marshal(struct {
		D Date `json:"d"`
	}{d})
	if err != nil || string(data) != `{"d":"2026-10-05"}` {
		t.Fatalf("marshal = %s, %v", data, err)
	}
	var back struct {
		D Date `json:"d"`
	}
	if err := json.Unmarshal(data, &back); err != nil || back.D != d {
		t.Errorf("unmarshal = %v, %v", back.D, err)
	}

	zero, err := json.Marshal(struct {
		D Date `json:"d"`
	}{})
	if err != nil || string(zero) != `{"d":null}` {
		t.Fatalf("marshal zero = %s, %v", zero, err)
	}
	for _, raw := range []string{string(zero), `{"d":""}`} {
		back.D = d
		if err := json.Unmarshal([]byte(raw), &back); err != nil || !back.D.IsZero() {
			t.Errorf("unmarshal %s = %v, %v", raw, back.D, err)
		}
	}
	if err := json.Unmarshal([]byte(`{"d":"0000-00-00"}`), &back); err == nil {
		t.Error("expected invalid date to be rejected")
	}
}

func TestDecodeAnswer(t *testing.T) {
	tests := []struct {
		name string
		qt   QuestionType
		raw  string
		want Answer
	}{
		{"null", QuestionTypeText, `null`, nil},
		{"text", QuestionTypeText, `"hello"`, TextAnswer("hello")},
		{"number", QuestionTypeNumber, `7.5`, NumberAnswer(7.5)},
		{"numeric string", QuestionTypeNumber, `" 42 "`, NumberAnswer(42)},
		{"bad numeric string", QuestionTypeNumber, `"lots"`, TextAnswer("lots")},
		{"bool", QuestionTypeBoolean, `false`, BoolAnswer(false)},
		{"date", QuestionTypeDate, `"2026-10-05T00:00:00Z"`, DateAnswer(Date{2026, time.October, 5})},
		{"multi", QuestionTypeMultiChoice, `["a","b"]`, MultiAnswer{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAnswer(tt.qt, json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("DecodeAnswer failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeAnswer(%s) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}

	for _, raw := range []string{`{"a":1}`, `[1,2]`} {
		if _, err := DecodeAnswer(QuestionTypeMultiChoice, json.RawMessage(raw)); !errors.Is(err, ErrMalformedAnswer) {
			t.Errorf("DecodeAnswer(%s): expected ErrMalformedAnswer, got %v", raw, err)
		}
	}
}

func TestStoredAnswerRoundTrip(t *testing.T) {
	answers := []Answer{
		TextAnswer("über"),
		NumberAnswer(-0.25),
		BoolAnswer(true),
		DateAnswer(Date{2024, time.February, 29}),
		MultiAnswer{"meals"},
	}
	for _, a := range answers {
		data, err := MarshalAnswer(a)
		if err != nil {
			t.Fatalf("MarshalAnswer(%#v) failed: %v", a, err)
		}
		back, err := UnmarshalAnswer(data)
		if err != nil {
			t.Fatalf("UnmarshalAnswer(%s) failed: %v", data, err)
		}
		if !reflect.DeepEqual(back, a) {
			t.Errorf("round trip of %#v gave %#v", a, back)
		}
	}
	if _, err := MarshalAnswer(nil); err == nil {
		t.Error("expected an error for a nil answer")
	}
}

func TestColumnsOf(t *testing.T) {
	c := ColumnsOf(DateAnswer(Date{2026, time.January, 2}))
	if c.Date == nil || *c.Date != "2026-01-02" || c.Text != nil || c.Number != nil || c.Bool != nil {
		t.Errorf("date columns = %+v", c)
	}
	c = ColumnsOf(MultiAnswer{"a", "b"})
	if c.Text == nil || *c.Text != "a,b" {
		t.Errorf("multi columns = %+v", c)
	}
	c = ColumnsOf(NumberAnswer(3))
	if c.Number == nil || *c.Number != 3 {
		t.Errorf("number columns = %+v", c)
	}
}

func TestIsEmpty(t *testing.T) {
	if !IsEmpty(nil) || !IsEmpty(TextAnswer("")) || !IsEmpty(MultiAnswer{}) {
		t.Error("absent values should be empty")
	}
	if IsEmpty(BoolAnswer(false)) || IsEmpty(NumberAnswer(0)) {
		t.Error("false and zero are answers")
	}
}

func TestSubmissionTarget(t *testing.T) {
	ci := SubmissionTarget{CheckInID: "c1"}
	if !ci.IsCheckIn() || ci.ID() != "c1" {
		t.Errorf("unexpected check-in target %+v", ci)
	}
	as := SubmissionTarget{AssignmentID: "a1"}
	if as.IsCheckIn() || as.ID() != "a1" {
		t.Errorf("unexpected assignment target %+v", as)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	e := NewValidationError("Bad input")
	if e.HasErrors() {
		t.Error("new validation error should be empty")
	}
	e.Add("b", "second")
	e.Add("a", "first")
	if e.Error() != "Bad input (a: first, b: second)" {
		t.Errorf("Error() = %q", e.Error())
	}
	if _, ok := AsValidationError(errors.Join(errors.New("wrap"), e)); !ok {
		t.Error("AsValidationError should unwrap joined errors")
	}
}
