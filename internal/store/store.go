// Package store provides storage backends for CareCheck.
//
// Surveys, the roster, assignments, legacy check-ins, responses and the notification
// outbox are persisted in SQLite or PostgreSQL. Both backends share one SQL core and
// apply embedded migrations on open.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/CareCheck/internal/models"
)

// Store is the persistence boundary used by the service packages.
//
// Lookups of a single entity return (nil, nil) when the row does not exist; callers
// translate that into models.ErrNotFound. Conditional writes that lose a race or hit
// the wrong lifecycle state return an error wrapping models.ErrConflict.
type Store interface {
	OutboxRepo

	// Surveys and questions.
	CreateSurvey(s models.Survey) error
	GetSurvey(id string) (*models.Survey, error)
	ListSurveys() ([]models.Survey, error)
	// TransitionSurvey moves a survey from one status to another. It returns false
	// when the survey is not in the from state.
	TransitionSurvey(id string, from, to models.SurveyStatus, now time.Time) (bool, error)
	// ReplaceQuestions swaps the survey's whole question set and bumps its version in one
	// transaction. A non-zero expectedVersion must equal the stored version and the survey
	// must be a draft, otherwise models.ErrConflict is returned.
	ReplaceQuestions(surveyID string, expectedVersion int, questions []models.Question, now time.Time) (int, error)
	GetQuestions(surveyID string) ([]models.Question, error)

	// Roster.
	SaveCaregiver(c models.Caregiver) error
	GetCaregiver(id string) (*models.Caregiver, error)
	SavePatient(p models.Patient) error
	GetPatient(id string) (*models.Patient, error)
	SetCareLink(caregiverID, patientID string, active bool) error
	ActivePatientIDs(caregiverID string) ([]string, error)
	ActiveCareLinks() ([]models.CareLink, error)

	// Assignments.
	// CreateAssignments inserts all rows in one transaction; on any failure none persist.
	CreateAssignments(as []models.Assignment) error
	GetAssignment(id string) (*models.Assignment, error)
	ListAssignments(caregiverID string, statuses ...models.TaskStatus) ([]models.Assignment, error)
	// CancelAssignment moves a pending assignment to cancelled and reports whether it did.
	CancelAssignment(id string) (bool, error)
	CountAssignmentsByStatus(surveyID string) (map[models.TaskStatus]int, error)

	// Legacy check-ins.
	// CreateCheckIn returns false when a check-in for the same caregiver, patient and week exists.
	CreateCheckIn(c models.CheckIn) (bool, error)
	GetCheckIn(id string) (*models.CheckIn, error)
	ListCheckIns(caregiverID string, statuses ...models.TaskStatus) ([]models.CheckIn, error)

	// Responses.
	// RecordResponse stores r with its items and flips the target from pending to completed
	// in one transaction. If the target is no longer pending, models.ErrConflict is returned
	// and nothing is written.
	RecordResponse(r models.Response, target models.SubmissionTarget) error
	GetResponseForTarget(target models.SubmissionTarget) (*models.Response, error)
	LatestResponse(caregiverID, patientID, surveyID string) (*models.Response, error)
	CountResponses(surveyID string) (int, error)

	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3"
// for anything else, which is treated as a file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend matching the configured DSN.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
