// Package api provides HTTP handlers for CareCheck endpoints.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/CareCheck/internal/assignment"
	"github.com/BTreeMap/CareCheck/internal/auth"
	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/response"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// Survey authoring.

type createSurveyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) createSurveyHandler(w http.ResponseWriter, r *http.Request) {
	var req createSurveyRequest
	if !decodeJSON(w, r, "Server.createSurveyHandler", &req) {
		return
	}
	sv, err := s.surveys.CreateSurvey(req.Title, req.Description)
	if err != nil {
		writeError(w, "Server.createSurveyHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(sv))
}

func (s *Server) listSurveysHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.surveys.ListSurveys()
	if err != nil {
		writeError(w, "Server.listSurveysHandler", err)
		return
	}
	if list == nil {
		list = []models.Survey{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

func (s *Server) getSurveyHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if p, _ := auth.FromContext(r.Context()); !p.IsAdmin() {
		visible, err := s.caregiverCanRead(p.ID, id)
		if err != nil {
			writeError(w, "Server.getSurveyHandler", err)
			return
		}
		if !visible {
			writeError(w, "Server.getSurveyHandler", models.NotFound("survey", id))
			return
		}
	}
	sv, err := s.surveys.GetSurveyWithQuestions(id)
	if err != nil {
		writeError(w, "Server.getSurveyHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sv))
}

// caregiverCanRead reports whether the caregiver holds a live assignment for the survey.
// The weekly check-in survey is readable by every caregiver.
func (s *Server) caregiverCanRead(caregiverID, surveyID string) (bool, error) {
	if surveyID == models.LegacyCheckInSurveyID {
		return true, nil
	}
	list, err := s.st.ListAssignments(caregiverID, models.TaskStatusPending, models.TaskStatusCompleted)
	if err != nil {
		return false, err
	}
	for _, a := range list {
		if a.SurveyID == surveyID {
			return true, nil
		}
	}
	return false, nil
}

type saveQuestionsRequest struct {
	ExpectedVersion int               `json:"expectedVersion"`
	Questions       []models.Question `json:"questions"`
}

func (s *Server) saveQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	var req saveQuestionsRequest
	if !decodeJSON(w, r, "Server.saveQuestionsHandler", &req) {
		return
	}
	sv, err := s.surveys.SaveQuestions(r.PathValue("id"), req.ExpectedVersion, req.Questions)
	if err != nil {
		writeError(w, "Server.saveQuestionsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sv))
}

func (s *Server) publishSurveyHandler(w http.ResponseWriter, r *http.Request) {
	sv, err := s.surveys.Publish(r.PathValue("id"))
	if err != nil {
		writeError(w, "Server.publishSurveyHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sv))
}

func (s *Server) archiveSurveyHandler(w http.ResponseWriter, r *http.Request) {
	sv, err := s.surveys.Archive(r.PathValue("id"))
	if err != nil {
		writeError(w, "Server.archiveSurveyHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sv))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.responses.Stats(r.PathValue("id"))
	if err != nil {
		writeError(w, "Server.statsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// Assignments and check-ins.

type bulkAssignRequest struct {
	CaregiverIDs []string `json:"caregiverIds"`
	DueAt        string   `json:"dueAt"`
}

// parseDue accepts an RFC 3339 timestamp or a calendar date, which means midnight of
// that date in the agency time zone.
func (s *Server) parseDue(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, models.Invalid("dueAt", "Due date must be a date or an RFC 3339 timestamp")
	}
	return d.In(s.tracker.Location()), nil
}

func (s *Server) bulkAssignHandler(w http.ResponseWriter, r *http.Request) {
	var req bulkAssignRequest
	if !decodeJSON(w, r, "Server.bulkAssignHandler", &req) {
		return
	}
	due, err := s.parseDue(req.DueAt)
	if err != nil {
		writeError(w, "Server.bulkAssignHandler", err)
		return
	}
	created, err := s.tracker.BulkAssign(r.PathValue("id"), req.CaregiverIDs, due)
	if err != nil {
		writeError(w, "Server.bulkAssignHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(created))
}

func (s *Server) cancelAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	a, err := s.tracker.CancelAssignment(r.PathValue("id"))
	if err != nil {
		writeError(w, "Server.cancelAssignmentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(a))
}

type generateCheckInsRequest struct {
	WeekOf *models.Date `json:"weekOf"`
}

func (s *Server) generateCheckInsHandler(w http.ResponseWriter, r *http.Request) {
	var req generateCheckInsRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, "Server.generateCheckInsHandler", &req) {
		return
	}
	week := assignment.WeekStart(s.now(), s.tracker.Location())
	if req.WeekOf != nil {
		week = *req.WeekOf
	}
	created, err := s.tracker.CreateWeeklyCheckIns(week)
	if err != nil {
		writeError(w, "Server.generateCheckInsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"weekOf": week, "created": created}))
}

type linkCheckInRequest struct {
	SurveyID string `json:"surveyId"`
}

func (s *Server) linkCheckInHandler(w http.ResponseWriter, r *http.Request) {
	var req linkCheckInRequest
	if !decodeJSON(w, r, "Server.linkCheckInHandler", &req) {
		return
	}
	if strings.TrimSpace(req.SurveyID) == "" {
		writeError(w, "Server.linkCheckInHandler", models.Invalid("surveyId", "Survey is required"))
		return
	}
	a, created, err := s.tracker.LinkCheckIn(r.PathValue("id"), req.SurveyID)
	if err != nil {
		writeError(w, "Server.linkCheckInHandler", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, models.Success(a))
}

// Roster.

func (s *Server) saveCaregiverHandler(w http.ResponseWriter, r *http.Request) {
	var c models.Caregiver
	if !decodeJSON(w, r, "Server.saveCaregiverHandler", &c) {
		return
	}
	c.ID = r.PathValue("id")
	if strings.TrimSpace(c.Name) == "" {
		writeError(w, "Server.saveCaregiverHandler", models.Invalid("name", "Name is required"))
		return
	}
	if err := s.st.SaveCaregiver(c); err != nil {
		writeError(w, "Server.saveCaregiverHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

func (s *Server) savePatientHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Patient
	if !decodeJSON(w, r, "Server.savePatientHandler", &p) {
		return
	}
	p.ID = r.PathValue("id")
	if strings.TrimSpace(p.Name) == "" {
		writeError(w, "Server.savePatientHandler", models.Invalid("name", "Name is required"))
		return
	}
	if err := s.st.SavePatient(p); err != nil {
		writeError(w, "Server.savePatientHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

type careLinkRequest struct {
	Active bool `json:"active"`
}

func (s *Server) setCareLinkHandler(w http.ResponseWriter, r *http.Request) {
	var req careLinkRequest
	if !decodeJSON(w, r, "Server.setCareLinkHandler", &req) {
		return
	}
	cgID, ptID := r.PathValue("id"), r.PathValue("patientId")
	cg, err := s.st.GetCaregiver(cgID)
	if err != nil {
		writeError(w, "Server.setCareLinkHandler", err)
		return
	}
	if cg == nil {
		writeError(w, "Server.setCareLinkHandler", models.NotFound("caregiver", cgID))
		return
	}
	pt, err := s.st.GetPatient(ptID)
	if err != nil {
		writeError(w, "Server.setCareLinkHandler", err)
		return
	}
	if pt == nil {
		writeError(w, "Server.setCareLinkHandler", models.NotFound("patient", ptID))
		return
	}
	if err := s.st.SetCareLink(cgID, ptID, req.Active); err != nil {
		writeError(w, "Server.setCareLinkHandler", err)
		return
	}
	slog.Info("Server.setCareLinkHandler: link saved", "caregiverID", cgID, "patientID", ptID, "active", req.Active)
	writeJSONResponse(w, http.StatusOK, models.Success(models.CareLink{CaregiverID: cgID, PatientID: ptID}))
}

// Caregiver views.

func caregiverID(r *http.Request) string {
	p, _ := auth.FromContext(r.Context())
	return p.ID
}

func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	includeCompleted := r.URL.Query().Get("completed") == "true"
	items, err := s.tracker.UnifiedView(caregiverID(r), includeCompleted, s.now())
	if err != nil {
		writeError(w, "Server.tasksHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(items))
}

func (s *Server) checkInsHandler(w http.ResponseWriter, r *http.Request) {
	var completed bool
	switch status := r.URL.Query().Get("status"); status {
	case "", string(models.TaskStatusPending):
	case string(models.TaskStatusCompleted):
		completed = true
	default:
		writeError(w, "Server.checkInsHandler", models.Invalid("status", "Status must be pending or completed"))
		return
	}
	list, err := s.tracker.CheckIns(caregiverID(r), completed)
	if err != nil {
		writeError(w, "Server.checkInsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(list))
}

type previousResponseResult struct {
	Answers map[string]interface{} `json:"answers"`
}

func (s *Server) previousResponseHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	answers, err := s.responses.PreviousResponse(caregiverID(r), q.Get("patientId"), q.Get("surveyId"))
	if err != nil {
		writeError(w, "Server.previousResponseHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(previousResponseResult{Answers: answers}))
}

type submitResult struct {
	ResponseID  string    `json:"responseId"`
	CompletedAt time.Time `json:"completedAt"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, op string, target models.SubmissionTarget) {
	var req response.SubmitRequest
	if !decodeJSON(w, r, op, &req) {
		return
	}
	resp, err := s.responses.Submit(caregiverID(r), target, req)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(submitResult{ResponseID: resp.ID, CompletedAt: resp.SubmittedAt}))
}

func (s *Server) submitAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, "Server.submitAssignmentHandler", models.SubmissionTarget{AssignmentID: r.PathValue("id")})
}

func (s *Server) submitCheckInHandler(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, "Server.submitCheckInHandler", models.SubmissionTarget{CheckInID: r.PathValue("id")})
}
