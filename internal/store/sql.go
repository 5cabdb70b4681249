package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/CareCheck/internal/models"
)

// sqlStore is the SQL core shared by SQLiteStore and PostgresStore. Queries are written
// with ? placeholders and rebound for the active dialect.
type sqlStore struct {
	db      *sql.DB
	name    string
	dialect string
}

func (s *sqlStore) rebind(query string) string {
	if s.dialect == "postgres" {
		return rebindDollar(query)
	}
	return query
}

func (s *sqlStore) exec(query string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(s.rebind(query), args...)
}

func (s *sqlStore) query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(s.rebind(query), args...)
}

func (s *sqlStore) queryRow(query string, args ...interface{}) *sql.Row {
	return s.db.QueryRow(s.rebind(query), args...)
}

// withTx runs fn inside a transaction that is committed only when fn returns nil.
func (s *sqlStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing database connection", "store", s.name)
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close database", "store", s.name, "error", err)
	}
	return err
}

const surveyColumns = `id, title, description, status, version, created_at, updated_at`

func (s *sqlStore) CreateSurvey(sv models.Survey) error {
	_, err := s.exec(`INSERT INTO surveys (`+surveyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sv.ID, sv.Title, sv.Description, string(sv.Status), sv.Version, sv.CreatedAt, sv.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" CreateSurvey failed", "error", err, "surveyID", sv.ID)
		return fmt.Errorf("failed to insert survey %s: %w", sv.ID, err)
	}
	slog.Debug(s.name+" CreateSurvey succeeded", "surveyID", sv.ID)
	return nil
}

func (s *sqlStore) GetSurvey(id string) (*models.Survey, error) {
	sv, err := scanSurvey(s.queryRow(`SELECT `+surveyColumns+` FROM surveys WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetSurvey failed", "error", err, "surveyID", id)
		return nil, fmt.Errorf("failed to get survey %s: %w", id, err)
	}
	return &sv, nil
}

func (s *sqlStore) ListSurveys() ([]models.Survey, error) {
	rows, err := s.query(`SELECT ` + surveyColumns + ` FROM surveys ORDER BY created_at DESC, id`)
	if err != nil {
		slog.Error(s.name+" ListSurveys query failed", "error", err)
		return nil, fmt.Errorf("failed to query surveys: %w", err)
	}
	defer rows.Close()

	var out []models.Survey
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan survey row: %w", err)
		}
		out = append(out, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate survey rows: %w", err)
	}
	slog.Debug(s.name+" ListSurveys succeeded", "count", len(out))
	return out, nil
}

func (s *sqlStore) TransitionSurvey(id string, from, to models.SurveyStatus, now time.Time) (bool, error) {
	res, err := s.exec(`UPDATE surveys SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, id, string(from))
	if err != nil {
		slog.Error(s.name+" TransitionSurvey failed", "error", err, "surveyID", id)
		return false, fmt.Errorf("failed to update survey %s status: %w", id, err)
	}
	n, _ := res.RowsAffected()
	slog.Debug(s.name+" TransitionSurvey", "surveyID", id, "from", from, "to", to, "changed", n > 0)
	return n > 0, nil
}

func (s *sqlStore) ReplaceQuestions(surveyID string, expectedVersion int, questions []models.Question, now time.Time) (int, error) {
	var newVersion int
	err := s.withTx(func(tx *sql.Tx) error {
		var status string
		var version int
		err := tx.QueryRow(s.rebind(`SELECT status, version FROM surveys WHERE id = ?`), surveyID).Scan(&status, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFound("survey", surveyID)
		}
		if err != nil {
			return fmt.Errorf("failed to read survey %s: %w", surveyID, err)
		}
		if models.SurveyStatus(status) != models.SurveyStatusDraft {
			return models.Conflict("survey %s is %s; only drafts can be edited", surveyID, status)
		}
		if expectedVersion > 0 && expectedVersion != version {
			return models.Conflict("survey %s is at version %d, expected %d", surveyID, version, expectedVersion)
		}

		if _, err := tx.Exec(s.rebind(`DELETE FROM question_options WHERE question_id IN (SELECT id FROM questions WHERE survey_id = ?)`), surveyID); err != nil {
			return fmt.Errorf("failed to delete options: %w", err)
		}
		if _, err := tx.Exec(s.rebind(`DELETE FROM questions WHERE survey_id = ?`), surveyID); err != nil {
			return fmt.Errorf("failed to delete questions: %w", err)
		}

		insertQuestion := s.rebind(`INSERT INTO questions (id, survey_id, text, type, required, order_index, validation_json) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		insertOption := s.rebind(`INSERT INTO question_options (id, question_id, value, label, order_index) VALUES (?, ?, ?, ?, ?)`)
		for _, q := range questions {
			validationJSON, err := marshalConstraints(q.Validation)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(insertQuestion, q.ID, surveyID, q.Text, string(q.Type), q.Required, q.OrderIndex, validationJSON); err != nil {
				return fmt.Errorf("failed to insert question %s: %w", q.ID, err)
			}
			for _, o := range q.Options {
				if _, err := tx.Exec(insertOption, o.ID, q.ID, o.Value, o.Label, o.OrderIndex); err != nil {
					return fmt.Errorf("failed to insert option %s: %w", o.ID, err)
				}
			}
		}

		res, err := tx.Exec(s.rebind(`UPDATE surveys SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?`), now, surveyID, version)
		if err != nil {
			return fmt.Errorf("failed to bump survey version: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.Conflict("survey %s was modified concurrently", surveyID)
		}
		newVersion = version + 1
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
			slog.Warn(s.name+" ReplaceQuestions rejected", "surveyID", surveyID, "error", err)
		} else {
			slog.Error(s.name+" ReplaceQuestions failed", "surveyID", surveyID, "error", err)
		}
		return 0, err
	}
	slog.Debug(s.name+" ReplaceQuestions succeeded", "surveyID", surveyID, "questions", len(questions), "version", newVersion)
	return newVersion, nil
}

func (s *sqlStore) GetQuestions(surveyID string) ([]models.Question, error) {
	rows, err := s.query(`SELECT id, survey_id, text, type, required, order_index, validation_json
		FROM questions WHERE survey_id = ? ORDER BY order_index`, surveyID)
	if err != nil {
		slog.Error(s.name+" GetQuestions query failed", "error", err, "surveyID", surveyID)
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	var questions []models.Question
	index := make(map[string]int)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question rows: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	optRows, err := s.query(`SELECT o.id, o.question_id, o.value, o.label, o.order_index
		FROM question_options o JOIN questions q ON q.id = o.question_id
		WHERE q.survey_id = ? ORDER BY o.question_id, o.order_index`, surveyID)
	if err != nil {
		slog.Error(s.name+" GetQuestions options query failed", "error", err, "surveyID", surveyID)
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer optRows.Close()
	for optRows.Next() {
		var o models.Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Value, &o.Label, &o.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan option row: %w", err)
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate option rows: %w", err)
	}
	slog.Debug(s.name+" GetQuestions succeeded", "surveyID", surveyID, "count", len(questions))
	return questions, nil
}

func (s *sqlStore) SaveCaregiver(c models.Caregiver) error {
	_, err := s.exec(`INSERT INTO caregivers (id, name, phone) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, phone = excluded.phone`, c.ID, c.Name, c.Phone)
	if err != nil {
		slog.Error(s.name+" SaveCaregiver failed", "error", err, "caregiverID", c.ID)
		return fmt.Errorf("failed to save caregiver %s: %w", c.ID, err)
	}
	return nil
}

func (s *sqlStore) GetCaregiver(id string) (*models.Caregiver, error) {
	var c models.Caregiver
	err := s.queryRow(`SELECT id, name, phone FROM caregivers WHERE id = ?`, id).Scan(&c.ID, &c.Name, &c.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetCaregiver failed", "error", err, "caregiverID", id)
		return nil, fmt.Errorf("failed to get caregiver %s: %w", id, err)
	}
	return &c, nil
}

func (s *sqlStore) SavePatient(p models.Patient) error {
	_, err := s.exec(`INSERT INTO patients (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`, p.ID, p.Name)
	if err != nil {
		slog.Error(s.name+" SavePatient failed", "error", err, "patientID", p.ID)
		return fmt.Errorf("failed to save patient %s: %w", p.ID, err)
	}
	return nil
}

func (s *sqlStore) GetPatient(id string) (*models.Patient, error) {
	var p models.Patient
	err := s.queryRow(`SELECT id, name FROM patients WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetPatient failed", "error", err, "patientID", id)
		return nil, fmt.Errorf("failed to get patient %s: %w", id, err)
	}
	return &p, nil
}

func (s *sqlStore) SetCareLink(caregiverID, patientID string, active bool) error {
	_, err := s.exec(`INSERT INTO care_links (caregiver_id, patient_id, active) VALUES (?, ?, ?)
		ON CONFLICT (caregiver_id, patient_id) DO UPDATE SET active = excluded.active`, caregiverID, patientID, active)
	if err != nil {
		slog.Error(s.name+" SetCareLink failed", "error", err, "caregiverID", caregiverID, "patientID", patientID)
		return fmt.Errorf("failed to save care link: %w", err)
	}
	return nil
}

func (s *sqlStore) ActivePatientIDs(caregiverID string) ([]string, error) {
	rows, err := s.query(`SELECT patient_id FROM care_links WHERE caregiver_id = ? AND active = ? ORDER BY patient_id`, caregiverID, true)
	if err != nil {
		slog.Error(s.name+" ActivePatientIDs query failed", "error", err, "caregiverID", caregiverID)
		return nil, fmt.Errorf("failed to query care links: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan care link row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) ActiveCareLinks() ([]models.CareLink, error) {
	rows, err := s.query(`SELECT caregiver_id, patient_id FROM care_links WHERE active = ? ORDER BY caregiver_id, patient_id`, true)
	if err != nil {
		slog.Error(s.name+" ActiveCareLinks query failed", "error", err)
		return nil, fmt.Errorf("failed to query care links: %w", err)
	}
	defer rows.Close()
	var links []models.CareLink
	for rows.Next() {
		var l models.CareLink
		if err := rows.Scan(&l.CaregiverID, &l.PatientID); err != nil {
			return nil, fmt.Errorf("failed to scan care link row: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

const assignmentColumns = `id, survey_id, caregiver_id, patient_id, check_in_id, due_at, status, completed_at, created_at`

func (s *sqlStore) CreateAssignments(as []models.Assignment) error {
	err := s.withTx(func(tx *sql.Tx) error {
		insert := s.rebind(`INSERT INTO assignments (` + assignmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, a := range as {
			_, err := tx.Exec(insert, a.ID, a.SurveyID, a.CaregiverID, a.PatientID, nilIfNilString(a.CheckInID),
				a.DueAt, string(a.Status), a.CompletedAt, a.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert assignment for caregiver %s and patient %s: %w", a.CaregiverID, a.PatientID, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error(s.name+" CreateAssignments failed", "error", err, "count", len(as))
		return err
	}
	slog.Debug(s.name+" CreateAssignments succeeded", "count", len(as))
	return nil
}

func (s *sqlStore) GetAssignment(id string) (*models.Assignment, error) {
	a, err := scanAssignment(s.queryRow(`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetAssignment failed", "error", err, "assignmentID", id)
		return nil, fmt.Errorf("failed to get assignment %s: %w", id, err)
	}
	return &a, nil
}

func (s *sqlStore) ListAssignments(caregiverID string, statuses ...models.TaskStatus) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE caregiver_id = ?`
	args := []interface{}{caregiverID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, statusArgs(statuses)...)
	}
	rows, err := s.query(query+` ORDER BY due_at, id`, args...)
	if err != nil {
		slog.Error(s.name+" ListAssignments query failed", "error", err, "caregiverID", caregiverID)
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()
	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignment rows: %w", err)
	}
	slog.Debug(s.name+" ListAssignments succeeded", "caregiverID", caregiverID, "count", len(out))
	return out, nil
}

func (s *sqlStore) CancelAssignment(id string) (bool, error) {
	res, err := s.exec(`UPDATE assignments SET status = ? WHERE id = ? AND status = ?`,
		string(models.TaskStatusCancelled), id, string(models.TaskStatusPending))
	if err != nil {
		slog.Error(s.name+" CancelAssignment failed", "error", err, "assignmentID", id)
		return false, fmt.Errorf("failed to cancel assignment %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqlStore) CountAssignmentsByStatus(surveyID string) (map[models.TaskStatus]int, error) {
	rows, err := s.query(`SELECT status, COUNT(*) FROM assignments WHERE survey_id = ? GROUP BY status`, surveyID)
	if err != nil {
		slog.Error(s.name+" CountAssignmentsByStatus query failed", "error", err, "surveyID", surveyID)
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}
	defer rows.Close()
	counts := make(map[models.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[models.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

const checkInColumns = `id, caregiver_id, patient_id, week_of, due_at, status, completed_at, created_at`

func (s *sqlStore) CreateCheckIn(c models.CheckIn) (bool, error) {
	res, err := s.exec(`INSERT INTO check_ins (`+checkInColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (caregiver_id, patient_id, week_of) DO NOTHING`,
		c.ID, c.CaregiverID, c.PatientID, c.WeekOf.String(), c.DueAt, string(c.Status), c.CompletedAt, c.CreatedAt)
	if err != nil {
		slog.Error(s.name+" CreateCheckIn failed", "error", err, "caregiverID", c.CaregiverID, "patientID", c.PatientID)
		return false, fmt.Errorf("failed to insert check-in: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug(s.name+" CreateCheckIn", "caregiverID", c.CaregiverID, "patientID", c.PatientID, "weekOf", c.WeekOf, "created", n > 0)
	return n > 0, nil
}

func (s *sqlStore) GetCheckIn(id string) (*models.CheckIn, error) {
	c, err := scanCheckIn(s.queryRow(`SELECT `+checkInColumns+` FROM check_ins WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetCheckIn failed", "error", err, "checkInID", id)
		return nil, fmt.Errorf("failed to get check-in %s: %w", id, err)
	}
	return &c, nil
}

func (s *sqlStore) ListCheckIns(caregiverID string, statuses ...models.TaskStatus) ([]models.CheckIn, error) {
	query := `SELECT ` + checkInColumns + ` FROM check_ins WHERE caregiver_id = ?`
	args := []interface{}{caregiverID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, statusArgs(statuses)...)
	}
	rows, err := s.query(query+` ORDER BY due_at, id`, args...)
	if err != nil {
		slog.Error(s.name+" ListCheckIns query failed", "error", err, "caregiverID", caregiverID)
		return nil, fmt.Errorf("failed to query check-ins: %w", err)
	}
	defer rows.Close()
	var out []models.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate check-in rows: %w", err)
	}
	slog.Debug(s.name+" ListCheckIns succeeded", "caregiverID", caregiverID, "count", len(out))
	return out, nil
}

const responseColumns = `id, survey_id, assignment_id, check_in_id, caregiver_id, patient_id, submitted_at, meta_json`

func (s *sqlStore) RecordResponse(r models.Response, target models.SubmissionTarget) error {
	table := "assignments"
	if target.IsCheckIn() {
		table = "check_ins"
	}
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(s.rebind(`UPDATE `+table+` SET status = ?, completed_at = ? WHERE id = ? AND status = ?`),
			string(models.TaskStatusCompleted), r.SubmittedAt, target.ID(), string(models.TaskStatusPending))
		if err != nil {
			return fmt.Errorf("failed to complete %s: %w", target, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.Conflict("%s is no longer pending", target)
		}

		var meta interface{}
		if len(r.Meta) > 0 {
			meta = string(r.Meta)
		}
		_, err = tx.Exec(s.rebind(`INSERT INTO responses (`+responseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			r.ID, r.SurveyID, nilIfNilString(r.AssignmentID), nilIfNilString(r.CheckInID), r.CaregiverID, r.PatientID, r.SubmittedAt, meta)
		if err != nil {
			return fmt.Errorf("failed to insert response: %w", err)
		}

		insertItem := s.rebind(`INSERT INTO response_items (id, response_id, question_id, answer_json, value_text, value_number, value_bool, value_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, it := range r.Items {
			raw, err := models.MarshalAnswer(it.Answer)
			if err != nil {
				return fmt.Errorf("failed to encode answer for question %s: %w", it.QuestionID, err)
			}
			cols := models.ColumnsOf(it.Answer)
			if _, err := tx.Exec(insertItem, it.ID, r.ID, it.QuestionID, string(raw), cols.Text, cols.Number, cols.Bool, cols.Date); err != nil {
				return fmt.Errorf("failed to insert answer for question %s: %w", it.QuestionID, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			slog.Warn(s.name+" RecordResponse rejected", "target", target.String(), "error", err)
		} else {
			slog.Error(s.name+" RecordResponse failed", "target", target.String(), "error", err)
		}
		return err
	}
	slog.Debug(s.name+" RecordResponse succeeded", "responseID", r.ID, "target", target.String(), "items", len(r.Items))
	return nil
}

func (s *sqlStore) loadResponse(where string, args ...interface{}) (*models.Response, error) {
	r, err := scanResponse(s.queryRow(`SELECT `+responseColumns+` FROM responses WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}

	rows, err := s.query(`SELECT id, question_id, answer_json FROM response_items WHERE response_id = ? ORDER BY question_id`, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query response items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it models.ResponseItem
		var raw string
		if err := rows.Scan(&it.ID, &it.QuestionID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan response item: %w", err)
		}
		if it.Answer, err = models.UnmarshalAnswer([]byte(raw)); err != nil {
			return nil, fmt.Errorf("failed to decode answer for question %s: %w", it.QuestionID, err)
		}
		it.ResponseID = r.ID
		r.Items = append(r.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response items: %w", err)
	}
	return &r, nil
}

func (s *sqlStore) GetResponseForTarget(target models.SubmissionTarget) (*models.Response, error) {
	column := "assignment_id"
	if target.IsCheckIn() {
		column = "check_in_id"
	}
	r, err := s.loadResponse(column+` = ?`, target.ID())
	if err != nil {
		slog.Error(s.name+" GetResponseForTarget failed", "error", err, "target", target.String())
		return nil, err
	}
	return r, nil
}

func (s *sqlStore) LatestResponse(caregiverID, patientID, surveyID string) (*models.Response, error) {
	r, err := s.loadResponse(`caregiver_id = ? AND patient_id = ? AND survey_id = ? ORDER BY submitted_at DESC, id DESC LIMIT 1`,
		caregiverID, patientID, surveyID)
	if err != nil {
		slog.Error(s.name+" LatestResponse failed", "error", err, "caregiverID", caregiverID, "patientID", patientID, "surveyID", surveyID)
		return nil, err
	}
	return r, nil
}

func (s *sqlStore) CountResponses(surveyID string) (int, error) {
	var n int
	if err := s.queryRow(`SELECT COUNT(*) FROM responses WHERE survey_id = ?`, surveyID).Scan(&n); err != nil {
		slog.Error(s.name+" CountResponses failed", "error", err, "surveyID", surveyID)
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return n, nil
}
