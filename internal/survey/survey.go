// Package survey manages survey definitions: creation, the draft question editor and the
// publish/archive lifecycle. Reads of the reserved weekly check-in id return the fixed
// legacy question set.
package survey

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/store"
	"github.com/BTreeMap/CareCheck/internal/util"
)

// Service implements the survey definition operations on top of a store.
type Service struct {
	store store.Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a survey Service.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSurvey creates a draft survey at version 1.
func (s *Service) CreateSurvey(title, description string) (*models.Survey, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.Invalid("title", models.ErrEmptySurveyTitle.Error())
	}
	if utf8.RuneCountInString(title) > models.MaxSurveyTitleLength {
		return nil, models.Invalid("title", models.ErrSurveyTitleTooLong.Error())
	}

	now := s.now().UTC()
	sv := models.Survey{
		ID:          util.NewID(),
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      models.SurveyStatusDraft,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSurvey(sv); err != nil {
		return nil, err
	}
	slog.Info("Survey.CreateSurvey: created", "surveyID", sv.ID)
	return &sv, nil
}

// ListSurveys returns all stored surveys, newest first.
func (s *Service) ListSurveys() ([]models.Survey, error) {
	surveys, err := s.store.ListSurveys()
	if err != nil {
		return nil, err
	}
	if surveys == nil {
		surveys = []models.Survey{}
	}
	return surveys, nil
}

// GetSurveyWithQuestions returns a survey with its questions and options in display order.
func (s *Service) GetSurveyWithQuestions(surveyID string) (*models.SurveyWithQuestions, error) {
	if surveyID == models.LegacyCheckInSurveyID {
		legacy := models.LegacyCheckInSurvey()
		return &legacy, nil
	}
	sv, err := s.store.GetSurvey(surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, models.NotFound("survey", surveyID)
	}
	questions, err := s.store.GetQuestions(surveyID)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []models.Question{}
	}
	return &models.SurveyWithQuestions{Survey: *sv, Questions: questions}, nil
}

// SaveQuestions replaces the full question set of a draft survey. Order indices are taken
// from array position. Ids of questions and options that already belong to the survey are
// kept; any other id is replaced with a fresh one. A non-zero expectedVersion must match
// the stored version.
func (s *Service) SaveQuestions(surveyID string, expectedVersion int, questions []models.Question) (*models.SurveyWithQuestions, error) {
	if surveyID == models.LegacyCheckInSurveyID {
		return nil, models.Conflict("the weekly check-in question set is fixed")
	}
	if expectedVersion < 0 {
		return nil, models.Invalid("expectedVersion", "Expected version must not be negative")
	}

	normalized, verr := normalizeQuestions(questions)
	if verr != nil {
		slog.Warn("Survey.SaveQuestions: rejected question set", "surveyID", surveyID, "error", verr)
		return nil, verr
	}

	sv, err := s.store.GetSurvey(surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, models.NotFound("survey", surveyID)
	}
	if sv.Status != models.SurveyStatusDraft {
		return nil, models.Conflict("survey %s is %s; only drafts can be edited", surveyID, sv.Status)
	}

	existing, err := s.store.GetQuestions(surveyID)
	if err != nil {
		return nil, err
	}
	assignIDs(surveyID, normalized, existing)

	version, err := s.store.ReplaceQuestions(surveyID, expectedVersion, normalized, s.now().UTC())
	if err != nil {
		return nil, err
	}
	slog.Info("Survey.SaveQuestions: saved", "surveyID", surveyID, "questions", len(normalized), "version", version)
	return s.GetSurveyWithQuestions(surveyID)
}

// Publish freezes a draft survey so it can be assigned.
func (s *Service) Publish(surveyID string) (*models.Survey, error) {
	return s.transition(surveyID, models.SurveyStatusDraft, models.SurveyStatusPublished)
}

// Archive retires a published survey.
func (s *Service) Archive(surveyID string) (*models.Survey, error) {
	return s.transition(surveyID, models.SurveyStatusPublished, models.SurveyStatusArchived)
}

func (s *Service) transition(surveyID string, from, to models.SurveyStatus) (*models.Survey, error) {
	if surveyID == models.LegacyCheckInSurveyID {
		return nil, models.Conflict("the weekly check-in survey cannot change status")
	}
	ok, err := s.store.TransitionSurvey(surveyID, from, to, s.now().UTC())
	if err != nil {
		return nil, err
	}
	sv, err := s.store.GetSurvey(surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, models.NotFound("survey", surveyID)
	}
	if !ok {
		return nil, models.Conflict("survey %s is %s, expected %s", surveyID, sv.Status, from)
	}
	slog.Info("Survey.transition: status changed", "surveyID", surveyID, "from", from, "to", to)
	return sv, nil
}

// normalizeQuestions validates the submitted question set and returns a cleaned copy with
// order indices from position, options only on choice types and constraints only where
// the type uses them.
func normalizeQuestions(questions []models.Question) ([]models.Question, *models.ValidationError) {
	verr := models.NewValidationError("Invalid question set")
	out := make([]models.Question, 0, len(questions))

	for i, in := range questions {
		field := func(name string) string { return fmt.Sprintf("questions[%d].%s", i, name) }
		q := models.Question{
			ID:         strings.TrimSpace(in.ID),
			Text:       strings.TrimSpace(in.Text),
			Type:       in.Type,
			Required:   in.Required,
			OrderIndex: i,
		}

		if q.Text == "" {
			verr.Add(field("text"), "Question text is required")
		} else if utf8.RuneCountInString(q.Text) > models.MaxQuestionTextLength {
			verr.Add(field("text"), fmt.Sprintf("Question text must be at most %d characters", models.MaxQuestionTextLength))
		}
		if !models.IsValidQuestionType(q.Type) {
			verr.Add(field("type"), fmt.Sprintf("Unsupported question type %q", in.Type))
		}

		q.Validation = normalizeConstraints(q.Type, in.Validation, field, verr)

		if q.Type.IsChoice() {
			if len(in.Options) == 0 {
				verr.Add(field("options"), "Choice questions need at least one option")
			}
			seen := make(map[string]bool, len(in.Options))
			for j, o := range in.Options {
				value := strings.TrimSpace(o.Value)
				label := strings.TrimSpace(o.Label)
				optField := fmt.Sprintf("questions[%d].options[%d].value", i, j)
				switch {
				case value == "":
					verr.Add(optField, "Option value is required")
				case seen[value]:
					verr.Add(optField, fmt.Sprintf("Duplicate option value %q", value))
				}
				seen[value] = true
				if label == "" {
					label = value
				}
				q.Options = append(q.Options, models.Option{
					ID:         strings.TrimSpace(o.ID),
					Value:      value,
					Label:      label,
					OrderIndex: j,
				})
			}
		}
		out = append(out, q)
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return out, nil
}

func normalizeConstraints(t models.QuestionType, c *models.Constraints, field func(string) string, verr *models.ValidationError) *models.Constraints {
	if c.IsZero() {
		return nil
	}
	var out models.Constraints
	switch t {
	case models.QuestionTypeText:
		out.MinLength, out.MaxLength = c.MinLength, c.MaxLength
		if out.MinLength != nil && *out.MinLength < 0 {
			verr.Add(field("validation.minLength"), "Minimum length must not be negative")
		}
		if out.MaxLength != nil && *out.MaxLength < 0 {
			verr.Add(field("validation.maxLength"), "Maximum length must not be negative")
		}
		if out.MinLength != nil && out.MaxLength != nil && *out.MinLength > *out.MaxLength {
			verr.Add(field("validation"), "Minimum length must not exceed maximum length")
		}
	case models.QuestionTypeNumber:
		out.Min, out.Max = c.Min, c.Max
		if out.Min != nil && out.Max != nil && *out.Min > *out.Max {
			verr.Add(field("validation"), "Minimum value must not exceed maximum value")
		}
	}
	if out.IsZero() {
		return nil
	}
	return &out
}

// assignIDs keeps ids that already belong to the survey and issues fresh ones otherwise.
// An id repeated within the submitted set is only kept for its first occurrence.
func assignIDs(surveyID string, questions []models.Question, existing []models.Question) {
	knownQuestions := make(map[string]bool, len(existing))
	knownOptions := make(map[string]bool)
	for _, q := range existing {
		knownQuestions[q.ID] = true
		for _, o := range q.Options {
			knownOptions[o.ID] = true
		}
	}

	usedQuestions := make(map[string]bool, len(questions))
	usedOptions := make(map[string]bool)
	for i := range questions {
		q := &questions[i]
		if !knownQuestions[q.ID] || usedQuestions[q.ID] {
			q.ID = util.NewID()
		}
		usedQuestions[q.ID] = true
		q.SurveyID = surveyID
		for j := range q.Options {
			o := &q.Options[j]
			if !knownOptions[o.ID] || usedOptions[o.ID] {
				o.ID = util.NewID()
			}
			usedOptions[o.ID] = true
			o.QuestionID = q.ID
		}
	}
}
