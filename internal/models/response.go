package models

import (
	"encoding/json"
	"time"
)

// Response is the permanent record of one submission.
type Response struct {
	ID           string          `json:"id"`
	SurveyID     string          `json:"surveyId"`
	AssignmentID *string         `json:"assignmentId,omitempty"`
	CheckInID    *string         `json:"checkInId,omitempty"`
	CaregiverID  string          `json:"caregiverId"`
	PatientID    string          `json:"patientId,omitempty"`
	SubmittedAt  time.Time       `json:"submittedAt"`
	Meta         json.RawMessage `json:"meta,omitempty"`
	Items        []ResponseItem  `json:"items"`
}

// ResponseItem is one answered question within a response.
type ResponseItem struct {
	ID         string `json:"id"`
	ResponseID string `json:"responseId"`
	QuestionID string `json:"questionId"`
	Answer     Answer `json:"-"`
}

// AnswerMap returns the response's answers keyed by question id.
func (r Response) AnswerMap() map[string]Answer {
	out := make(map[string]Answer, len(r.Items))
	for _, it := range r.Items {
		out[it.QuestionID] = it.Answer
	}
	return out
}

// WireAnswers returns the response's answers in transmittable form.
func (r Response) WireAnswers() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Items))
	for _, it := range r.Items {
		out[it.QuestionID] = WireValue(it.Answer)
	}
	return out
}

// ResponseStats is the dashboard summary of one survey.
type ResponseStats struct {
	SurveyID   string             `json:"surveyId"`
	ByStatus   map[TaskStatus]int `json:"byStatus"`
	Responses  int                `json:"responses"`
	Completion float64            `json:"completionRate"`
}
