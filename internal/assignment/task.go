package assignment

import (
	"sort"
	"time"

	"github.com/BTreeMap/CareCheck/internal/models"
)

// Priority bands of the unified task list.
const (
	PriorityCompleted = 0
	PriorityUpcoming  = 1
	PriorityDueToday  = 2
	PriorityOverdue   = 3
)

// TaskKind tells legacy check-ins and dynamic survey assignments apart.
type TaskKind string

const (
	TaskKindLegacy  TaskKind = "legacy"
	TaskKindDynamic TaskKind = "dynamic"
)

// Task is one entry of a caregiver's work: a LegacyTask or a DynamicTask.
type Task interface {
	Kind() TaskKind
	isTask()
}

// LegacyTask wraps a weekly fixed-question check-in.
type LegacyTask struct {
	CheckIn models.CheckIn
}

// DynamicTask wraps an assignment of an administrator-authored survey.
type DynamicTask struct {
	Assignment models.Assignment
}

func (LegacyTask) Kind() TaskKind  { return TaskKindLegacy }
func (DynamicTask) Kind() TaskKind { return TaskKindDynamic }

func (LegacyTask) isTask()  {}
func (DynamicTask) isTask() {}

// TaskItem is the shared projection rendered in the caregiver's task list.
type TaskItem struct {
	ID              string            `json:"id"`
	Kind            TaskKind          `json:"kind"`
	SurveyID        string            `json:"surveyId"`
	Title           string            `json:"title"`
	PatientID       string            `json:"patientId"`
	DueAt           time.Time         `json:"dueAt"`
	DueDate         models.Date       `json:"dueDate"`
	Status          models.TaskStatus `json:"status"`
	Priority        int               `json:"priority"`
	ProgressCurrent int               `json:"progressCurrent"`
	ProgressTotal   int               `json:"progressTotal"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
}

// Target returns the submission target the item completes.
func (it TaskItem) Target() models.SubmissionTarget {
	if it.Kind == TaskKindLegacy {
		return models.SubmissionTarget{CheckInID: it.ID}
	}
	return models.SubmissionTarget{AssignmentID: it.ID}
}

// Priority classifies a due date against today. Both are calendar dates in the agency's
// time zone; the time of day plays no part.
func Priority(status models.TaskStatus, due, today models.Date) int {
	if status == models.TaskStatusCompleted {
		return PriorityCompleted
	}
	switch due.Compare(today) {
	case -1:
		return PriorityOverdue
	case 0:
		return PriorityDueToday
	default:
		return PriorityUpcoming
	}
}

// Progress counts the required questions answered in r. A nil response counts as none answered.
func Progress(sv models.SurveyWithQuestions, r *models.Response) (current, total int) {
	var answers map[string]models.Answer
	if r != nil {
		answers = r.AnswerMap()
	}
	for _, q := range sv.Questions {
		if !q.Required {
			continue
		}
		total++
		if !models.IsEmpty(answers[q.ID]) {
			current++
		}
	}
	return current, total
}

// Project builds the list entry of t. sv is the survey answered by the task and r the
// recorded response, if any.
func Project(t Task, sv models.SurveyWithQuestions, r *models.Response, today models.Date, loc *time.Location) TaskItem {
	var it TaskItem
	switch v := t.(type) {
	case LegacyTask:
		c := v.CheckIn
		it = TaskItem{
			ID:          c.ID,
			Kind:        TaskKindLegacy,
			SurveyID:    models.LegacyCheckInSurveyID,
			PatientID:   c.PatientID,
			DueAt:       c.DueAt,
			Status:      c.Status,
			CompletedAt: c.CompletedAt,
		}
	case DynamicTask:
		a := v.Assignment
		it = TaskItem{
			ID:          a.ID,
			Kind:        TaskKindDynamic,
			SurveyID:    a.SurveyID,
			PatientID:   a.PatientID,
			DueAt:       a.DueAt,
			Status:      a.Status,
			CompletedAt: a.CompletedAt,
		}
	}
	it.Title = sv.Title
	it.DueDate = models.DateOf(it.DueAt.In(loc))
	it.Priority = Priority(it.Status, it.DueDate, today)
	it.ProgressCurrent, it.ProgressTotal = Progress(sv, r)
	return it
}

// SortTasks orders items by priority descending, then due time ascending. Ties are broken
// by id so the order is stable across fetches.
func SortTasks(items []TaskItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.DueAt.Equal(b.DueAt) {
			return a.DueAt.Before(b.DueAt)
		}
		return a.ID < b.ID
	})
}
