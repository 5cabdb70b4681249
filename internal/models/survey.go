package models

import (
	"errors"
	"time"
)

// SurveyStatus is the lifecycle state of a survey definition.
type SurveyStatus string

const (
	// SurveyStatusDraft surveys may have their question set replaced.
	SurveyStatusDraft SurveyStatus = "draft"
	// SurveyStatusPublished surveys are frozen and meant to be assigned.
	SurveyStatusPublished SurveyStatus = "published"
	// SurveyStatusArchived surveys are retired but remain readable.
	SurveyStatusArchived SurveyStatus = "archived"
)

// QuestionType selects the answer shape and rendering control of a question.
type QuestionType string

const (
	QuestionTypeText         QuestionType = "text"
	QuestionTypeNumber       QuestionType = "number"
	QuestionTypeBoolean      QuestionType = "boolean"
	QuestionTypeDate         QuestionType = "date"
	QuestionTypeSingleChoice QuestionType = "single_choice"
	QuestionTypeMultiChoice  QuestionType = "multi_choice"
)

// Validation constants for survey definitions
const (
	// MaxSurveyTitleLength is the maximum number of characters in a survey title.
	MaxSurveyTitleLength = 200
	// MaxQuestionTextLength is the maximum number of characters in a question prompt.
	MaxQuestionTextLength = 1000
)

var (
	ErrEmptySurveyTitle   = errors.New("title is required")
	ErrSurveyTitleTooLong = errors.New("title must be at most 200 characters")
)

// IsValidQuestionType checks if the given question type is supported.
func IsValidQuestionType(t QuestionType) bool {
	switch t {
	case QuestionTypeText, QuestionTypeNumber, QuestionTypeBoolean, QuestionTypeDate,
		QuestionTypeSingleChoice, QuestionTypeMultiChoice:
		return true
	default:
		return false
	}
}

// IsChoice reports whether the type draws its answers from declared options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// Survey is an administrator-authored, ordered set of questions.
type Survey struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      SurveyStatus `json:"status"`
	Version     int          `json:"version"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Constraints are the optional declarative bounds attached to a question.
type Constraints struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// IsZero reports whether no constraint is set.
func (c *Constraints) IsZero() bool {
	return c == nil || (c.MinLength == nil && c.MaxLength == nil && c.Min == nil && c.Max == nil)
}

// Question belongs to exactly one survey; OrderIndex is unique within it.
type Question struct {
	ID         string       `json:"id"`
	SurveyID   string       `json:"surveyId"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Required   bool         `json:"required"`
	OrderIndex int          `json:"orderIndex"`
	Validation *Constraints `json:"validation,omitempty"`
	Options    []Option     `json:"options,omitempty"`
}

// OptionValues returns the submitted tokens of the question's options in order.
func (q Question) OptionValues() []string {
	values := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		values = append(values, o.Value)
	}
	return values
}

// Option is one selectable choice of a choice-type question.
type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
	Label      string `json:"label"`
	OrderIndex int    `json:"orderIndex"`
}

// SurveyWithQuestions is a survey together with its questions sorted by OrderIndex.
type SurveyWithQuestions struct {
	Survey
	Questions []Question `json:"questions"`
}

// RequiredCount returns the number of required questions.
func (s SurveyWithQuestions) RequiredCount() int {
	n := 0
	for _, q := range s.Questions {
		if q.Required {
			n++
		}
	}
	return n
}

// Intp and Floatp build constraint pointers.
func Intp(v int) *int { return &v }

func Floatp(v float64) *float64 { return &v }
