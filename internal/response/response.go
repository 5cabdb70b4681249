// Package response accepts caregiver submissions, validates them against the survey's
// current questions and records them atomically with the completion of their target.
package response

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/store"
	"github.com/BTreeMap/CareCheck/internal/util"
	"github.com/BTreeMap/CareCheck/internal/validation"
)

// ReasonUnknownQuestion rejects answers keyed by an id the survey does not have.
const ReasonUnknownQuestion = "Unknown question"

// SurveySource resolves a survey with its questions.
type SurveySource interface {
	GetSurveyWithQuestions(surveyID string) (*models.SurveyWithQuestions, error)
}

// SubmitRequest is the body of a submission.
type SubmitRequest struct {
	Answers map[string]json.RawMessage `json:"answers"`
	Meta    json.RawMessage            `json:"meta,omitempty"`
}

// Service records submissions.
type Service struct {
	store   store.Store
	surveys SurveySource
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service.
func NewService(st store.Store, surveys SurveySource, opts ...Option) *Service {
	s := &Service{store: st, surveys: surveys, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pendingTarget is the resolved owner and survey of a submission target.
type pendingTarget struct {
	surveyID  string
	patientID string
	status    models.TaskStatus
}

func (s *Service) resolve(caregiverID string, target models.SubmissionTarget) (*pendingTarget, error) {
	if target.IsCheckIn() {
		c, err := s.store.GetCheckIn(target.CheckInID)
		if err != nil {
			return nil, err
		}
		if c == nil || c.CaregiverID != caregiverID {
			return nil, models.NotFound("check-in", target.CheckInID)
		}
		return &pendingTarget{surveyID: models.LegacyCheckInSurveyID, patientID: c.PatientID, status: c.Status}, nil
	}
	a, err := s.store.GetAssignment(target.AssignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.CaregiverID != caregiverID {
		return nil, models.NotFound("assignment", target.AssignmentID)
	}
	return &pendingTarget{surveyID: a.SurveyID, patientID: a.PatientID, status: a.Status}, nil
}

// Submit validates req against the target's survey and records it. The target must belong
// to caregiverID and still be pending. A second submission for the same target fails with
// a conflict even when both race.
func (s *Service) Submit(caregiverID string, target models.SubmissionTarget, req SubmitRequest) (*models.Response, error) {
	if target.ID() == "" {
		return nil, models.Invalid("target", "A submission needs an assignment or a check-in")
	}
	pt, err := s.resolve(caregiverID, target)
	if err != nil {
		return nil, err
	}
	if pt.status != models.TaskStatusPending {
		return nil, models.Conflict("%s is %s", target, pt.status)
	}

	meta := bytes.TrimSpace(req.Meta)
	if len(meta) > 0 && !bytes.Equal(meta, []byte("null")) {
		var obj map[string]interface{}
		if err := json.Unmarshal(meta, &obj); err != nil {
			return nil, models.Invalid("meta", "Meta must be a JSON object")
		}
	} else {
		meta = nil
	}

	sv, err := s.surveys.GetSurveyWithQuestions(pt.surveyID)
	if err != nil {
		return nil, err
	}

	answers, verr := decodeAnswers(sv.Questions, req.Answers)
	for id, reasons := range validation.EvaluateAll(sv.Questions, answers) {
		if _, malformed := verr.Fields[id]; !malformed {
			verr.Fields[id] = reasons
		}
	}
	if verr.HasErrors() {
		slog.Warn("ResponseService.Submit: validation failed", "target", target.String(), "questions", len(verr.Fields))
		return nil, verr
	}

	now := s.now().UTC()
	r := models.Response{
		ID:          util.NewID(),
		SurveyID:    pt.surveyID,
		CaregiverID: caregiverID,
		PatientID:   pt.patientID,
		SubmittedAt: now,
		Meta:        json.RawMessage(meta),
	}
	id := target.ID()
	if target.IsCheckIn() {
		r.CheckInID = &id
	} else {
		r.AssignmentID = &id
	}
	for _, q := range sv.Questions {
		a := answers[q.ID]
		if models.IsEmpty(a) {
			continue
		}
		r.Items = append(r.Items, models.ResponseItem{
			ID:         util.NewID(),
			ResponseID: r.ID,
			QuestionID: q.ID,
			Answer:     validation.Normalize(q.Type, a),
		})
	}

	if err := s.store.RecordResponse(r, target); err != nil {
		return nil, err
	}
	slog.Info("ResponseService.Submit: recorded", "responseID", r.ID, "target", target.String(), "items", len(r.Items))
	return &r, nil
}

// decodeAnswers interprets the raw answers per question type. Unknown question ids and
// malformed values are recorded in the returned ValidationError and left out of the map.
func decodeAnswers(questions []models.Question, raw map[string]json.RawMessage) (map[string]models.Answer, *models.ValidationError) {
	byID := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	verr := models.NewValidationError("Some answers need attention")
	answers := make(map[string]models.Answer, len(raw))
	for id, value := range raw {
		q, ok := byID[id]
		if !ok {
			verr.Add(id, ReasonUnknownQuestion)
			continue
		}
		a, err := models.DecodeAnswer(q.Type, value)
		if err != nil {
			verr.Add(id, validation.TypeReason(q.Type))
			continue
		}
		answers[id] = a
	}
	return answers, verr
}

// PreviousResponse returns the caregiver's latest answers for the patient and survey in
// wire form, or nil when there is none.
func (s *Service) PreviousResponse(caregiverID, patientID, surveyID string) (map[string]interface{}, error) {
	if patientID == "" || surveyID == "" {
		verr := models.NewValidationError("Invalid previous response request")
		if patientID == "" {
			verr.Add("patientId", "Patient is required")
		}
		if surveyID == "" {
			verr.Add("surveyId", "Survey is required")
		}
		return nil, verr
	}
	r, err := s.store.LatestResponse(caregiverID, patientID, surveyID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return r.WireAnswers(), nil
}

// Stats summarizes a survey's assignments and responses.
func (s *Service) Stats(surveyID string) (*models.ResponseStats, error) {
	if _, err := s.surveys.GetSurveyWithQuestions(surveyID); err != nil {
		return nil, err
	}
	byStatus, err := s.store.CountAssignmentsByStatus(surveyID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.CountResponses(surveyID)
	if err != nil {
		return nil, err
	}
	stats := &models.ResponseStats{SurveyID: surveyID, ByStatus: byStatus, Responses: responses}
	if open := byStatus[models.TaskStatusPending] + byStatus[models.TaskStatusCompleted]; open > 0 {
		stats.Completion = float64(byStatus[models.TaskStatusCompleted]) / float64(open)
	}
	return stats, nil
}
