// Package testutil provides common test utilities and helpers for CareCheck tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/store"
)

// NewSQLiteStore opens a fresh SQLite store in a temporary directory that is removed
// when the test ends.
func NewSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "carecheck.db")
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("failed to open SQLite store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// Roster ids created by SeedRoster.
const (
	CaregiverAna  = "cg-ana"
	CaregiverBen  = "cg-ben"
	CaregiverCruz = "cg-cruz"
	PatientRosa   = "pt-rosa"
	PatientWalter = "pt-walter"
)

// SeedRoster adds three caregivers and two patients. Ana cares for Rosa and Walter, Ben
// cares for Rosa, and Cruz has no active patients.
func SeedRoster(t *testing.T, st store.Store) {
	t.Helper()
	caregivers := []models.Caregiver{
		{ID: CaregiverAna, Name: "Ana Silva", Phone: "+15550100"},
		{ID: CaregiverBen, Name: "Ben Okafor", Phone: "+15550101"},
		{ID: CaregiverCruz, Name: "Cruz Medina"},
	}
	for _, c := range caregivers {
		if err := st.SaveCaregiver(c); err != nil {
			t.Fatalf("failed to save caregiver: %v", err)
		}
	}
	for _, p := range []models.Patient{{ID: PatientRosa, Name: "Rosa"}, {ID: PatientWalter, Name: "Walter"}} {
		if err := st.SavePatient(p); err != nil {
			t.Fatalf("failed to save patient: %v", err)
		}
	}
	links := []struct {
		caregiver, patient string
		active             bool
	}{
		{CaregiverAna, PatientRosa, true},
		{CaregiverAna, PatientWalter, true},
		{CaregiverBen, PatientRosa, true},
		{CaregiverCruz, PatientWalter, false},
	}
	for _, l := range links {
		if err := st.SetCareLink(l.caregiver, l.patient, l.active); err != nil {
			t.Fatalf("failed to save care link: %v", err)
		}
	}
}

// SampleQuestions returns a mixed question set covering every question type.
func SampleQuestions() []models.Question {
	return []models.Question{
		{Text: "Any falls since the last visit?", Type: models.QuestionTypeBoolean, Required: true},
		{
			Text: "Pain level (0-10)", Type: models.QuestionTypeNumber, Required: true,
			Validation: &models.Constraints{Min: models.Floatp(0), Max: models.Floatp(10)},
		},
		{
			Text: "Appetite", Type: models.QuestionTypeSingleChoice, Required: true,
			Options: []models.Option{{Value: "normal", Label: "Normal"}, {Value: "reduced", Label: "Reduced"}},
		},
		{
			Text: "Help needed with", Type: models.QuestionTypeMultiChoice,
			Options: []models.Option{{Value: "bathing", Label: "Bathing"}, {Value: "meals", Label: "Meals"}, {Value: "mobility", Label: "Mobility"}},
		},
		{Text: "Last doctor visit", Type: models.QuestionTypeDate},
		{Text: "Notes", Type: models.QuestionTypeText, Validation: &models.Constraints{MaxLength: models.Intp(500)}},
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
