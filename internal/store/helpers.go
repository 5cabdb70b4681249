package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/CareCheck/internal/models"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfNilString dereferences an optional id for a nullable column.
func nilIfNilString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// rebindDollar rewrites ? placeholders to PostgreSQL's $n form.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []models.TaskStatus) []interface{} {
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return args
}

func marshalConstraints(c *models.Constraints) (interface{}, error) {
	if c.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal constraints failed: %w", err)
	}
	return string(b), nil
}

func scanSurvey(row scanner) (models.Survey, error) {
	var s models.Survey
	var status string
	err := row.Scan(&s.ID, &s.Title, &s.Description, &status, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	s.Status = models.SurveyStatus(status)
	return s, err
}

func scanQuestion(row scanner) (models.Question, error) {
	var q models.Question
	var typ string
	var validationJSON sql.NullString
	if err := row.Scan(&q.ID, &q.SurveyID, &q.Text, &typ, &q.Required, &q.OrderIndex, &validationJSON); err != nil {
		return q, fmt.Errorf("scan question failed: %w", err)
	}
	q.Type = models.QuestionType(typ)
	if validationJSON.Valid && validationJSON.String != "" {
		var c models.Constraints
		if err := json.Unmarshal([]byte(validationJSON.String), &c); err != nil {
			return q, fmt.Errorf("decode constraints of question %s failed: %w", q.ID, err)
		}
		q.Validation = &c
	}
	return q, nil
}

func scanAssignment(row scanner) (models.Assignment, error) {
	var a models.Assignment
	var status string
	var checkInID sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&a.ID, &a.SurveyID, &a.CaregiverID, &a.PatientID, &checkInID,
		&a.DueAt, &status, &completedAt, &a.CreatedAt)
	a.Status = models.TaskStatus(status)
	a.CheckInID = stringPtr(checkInID)
	a.CompletedAt = timePtr(completedAt)
	return a, err
}

func scanCheckIn(row scanner) (models.CheckIn, error) {
	var c models.CheckIn
	var status, weekOf string
	var completedAt sql.NullTime
	err := row.Scan(&c.ID, &c.CaregiverID, &c.PatientID, &weekOf, &c.DueAt, &status, &completedAt, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	c.Status = models.TaskStatus(status)
	c.CompletedAt = timePtr(completedAt)
	if c.WeekOf, err = models.ParseDate(weekOf); err != nil {
		return c, fmt.Errorf("decode week_of of check-in %s failed: %w", c.ID, err)
	}
	return c, nil
}

func scanResponse(row scanner) (models.Response, error) {
	var r models.Response
	var assignmentID, checkInID, meta sql.NullString
	err := row.Scan(&r.ID, &r.SurveyID, &assignmentID, &checkInID, &r.CaregiverID, &r.PatientID, &r.SubmittedAt, &meta)
	r.AssignmentID = stringPtr(assignmentID)
	r.CheckInID = stringPtr(checkInID)
	if meta.Valid && meta.String != "" {
		r.Meta = json.RawMessage(meta.String)
	}
	return r, err
}

// scanOutboxMessage scans an OutboxMessage from sql.Rows.
func scanOutboxMessage(rows scanner) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&m.ID, &m.RecipientID, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	m.NextAttemptAt = timePtr(nextAttemptAt)
	m.LockedAt = timePtr(lockedAt)
	return m, nil
}
