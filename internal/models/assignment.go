package models

import "time"

// TaskStatus is the status shared by assignments and legacy check-ins.
type TaskStatus string

const (
	// TaskStatusPending is the initial state; the caregiver still has to answer.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusCompleted is reached only through a successful response submission.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusCancelled is set administratively; cancelled tasks are hidden from caregivers.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Assignment states that a caregiver must answer a survey for a patient by a due date.
type Assignment struct {
	ID          string     `json:"id"`
	SurveyID    string     `json:"surveyId"`
	CaregiverID string     `json:"caregiverId"`
	PatientID   string     `json:"patientId"`
	CheckInID   *string    `json:"checkInId,omitempty"`
	DueAt       time.Time  `json:"dueAt"`
	Status      TaskStatus `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CheckIn is a legacy fixed-question weekly check-in created by the scheduler.
type CheckIn struct {
	ID          string     `json:"id"`
	CaregiverID string     `json:"caregiverId"`
	PatientID   string     `json:"patientId"`
	WeekOf      Date       `json:"weekOf"`
	DueAt       time.Time  `json:"dueAt"`
	Status      TaskStatus `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Caregiver is the minimal roster record needed for assignment and notification.
type Caregiver struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Patient is the minimal roster record of a person receiving care.
type Patient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CareLink records that a caregiver currently looks after a patient.
type CareLink struct {
	CaregiverID string `json:"caregiverId"`
	PatientID   string `json:"patientId"`
}

// SubmissionTarget identifies what a response completes: an assignment or a legacy check-in.
type SubmissionTarget struct {
	AssignmentID string
	CheckInID    string
}

// IsCheckIn reports whether the target is a legacy check-in.
func (t SubmissionTarget) IsCheckIn() bool {
	return t.CheckInID != ""
}

// ID returns the id of whichever entity is targeted.
func (t SubmissionTarget) ID() string {
	if t.IsCheckIn() {
		return t.CheckInID
	}
	return t.AssignmentID
}

func (t SubmissionTarget) String() string {
	if t.IsCheckIn() {
		return "check-in " + t.CheckInID
	}
	return "assignment " + t.AssignmentID
}
