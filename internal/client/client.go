// Package client is the caregiver-side API client. It loads task lists and surveys,
// turns a validated form into a wire submission and posts it, mapping every failure to
// one *SubmitError kind.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/BTreeMap/CareCheck/internal/assignment"
	"github.com/BTreeMap/CareCheck/internal/form"
	"github.com/BTreeMap/CareCheck/internal/models"
)

const (
	// DefaultTimeout bounds every request.
	DefaultTimeout = 15 * time.Second
	// DefaultCacheTTL is how long read results are served from memory.
	DefaultCacheTTL = 60 * time.Second
)

// Cache kinds.
const (
	kindTasks    = "tasks"
	kindCheckIns = "check-ins"
	kindPrevious = "previous"
	kindSurvey   = "survey"
)

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindTransport  ErrorKind = "transport"
)

// SubmitError is the single error type returned by Client calls.
type SubmitError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Fields     map[string][]string
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the matching models error so errors.Is(err, models.ErrConflict) and
// models.AsValidationError work on client errors.
func (e *SubmitError) Unwrap() error {
	return e.Err
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(code int) ErrorKind {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindTransport
	}
}

func newStatusError(code int, env envelope) *SubmitError {
	e := &SubmitError{Kind: kindForStatus(code), StatusCode: code, Message: env.Message, Fields: env.Fields}
	if e.Message == "" {
		e.Message = http.StatusText(code)
	}
	switch e.Kind {
	case KindValidation:
		e.Err = &models.ValidationError{Message: e.Message, Fields: e.Fields}
	case KindNotFound:
		e.Err = models.ErrNotFound
	case KindConflict:
		e.Err = models.ErrConflict
	}
	return e
}

// envelope mirrors models.APIResponse with a raw result.
type envelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Result  json.RawMessage     `json:"result"`
	Fields  map[string][]string `json:"fields"`
}

// Receipt acknowledges a recorded submission.
type Receipt struct {
	ResponseID  string    `json:"responseId"`
	CompletedAt time.Time `json:"completedAt"`
}

// Submission is the body posted for a response.
type Submission struct {
	Answers map[string]interface{} `json:"answers"`
	Meta    map[string]interface{} `json:"meta"`
}

// Normalize converts answers to their transmittable form. Dates become ISO 8601 strings
// at midnight UTC; numbers, booleans, text and selections pass through.
func Normalize(answers map[string]models.Answer) map[string]interface{} {
	out := make(map[string]interface{}, len(answers))
	for id, a := range answers {
		if a == nil {
			continue
		}
		out[id] = models.WireValue(a)
	}
	return out
}

// BuildSubmission assembles the request body. Caller metadata is kept and submittedAt is
// set to now in RFC 3339 UTC.
func BuildSubmission(answers map[string]models.Answer, meta map[string]interface{}, now time.Time) Submission {
	m := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		m[k] = v
	}
	m["submittedAt"] = now.UTC().Format(time.RFC3339)
	return Submission{Answers: Normalize(answers), Meta: m}
}

// Client talks to the CareCheck API on behalf of one caregiver.
type Client struct {
	baseURL     string
	caregiverID string
	token       string
	http        *http.Client
	timeout     time.Duration
	cacheTTL    time.Duration
	now         func() time.Time
	cache       *ttlCache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its Timeout is replaced by WithTimeout's value.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCacheTTL sets the read cache lifetime. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = d
	}
}

// WithClock overrides the time source used for submittedAt and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Client for the caregiver authenticated by token.
func New(baseURL, caregiverID, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		caregiverID: caregiverID,
		token:       token,
		http:        &http.Client{},
		timeout:     DefaultTimeout,
		cacheTTL:    DefaultCacheTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Timeout = c.timeout
	c.cache = newTTLCache(c.cacheTTL, c.now)
	return c
}

// do sends a request and decodes the envelope's result into out.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &SubmitError{Kind: KindTransport, Message: "failed to encode request", Err: err}
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &SubmitError{Kind: KindTransport, Message: "failed to build request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("Client.do: request failed", "method", method, "path", path, "error", err)
		return &SubmitError{Kind: KindTransport, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SubmitError{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return &SubmitError{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("Client.do: error status", "method", method, "path", path, "status", resp.StatusCode, "message", env.Message)
		return newStatusError(resp.StatusCode, env)
	}
	if out != nil && len(env.Result) > 0 && !bytes.Equal(env.Result, []byte("null")) {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return &SubmitError{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "malformed result", Err: err}
		}
	}
	return nil
}

// Submit validates f and posts its answers for target. Validation failures are returned
// without contacting the server. f is never modified, so a failed submit can be retried
// as is. On success the caregiver's cached lists and previous responses are dropped. A
// conflict or not found answer drops the cached lists.
func (c *Client) Submit(ctx context.Context, f *form.Form, target models.SubmissionTarget, meta map[string]interface{}) (*Receipt, error) {
	answers, err := f.Payload()
	if err != nil {
		ve, _ := models.AsValidationError(err)
		se := &SubmitError{Kind: KindValidation, Message: err.Error(), Err: err}
		if ve != nil {
			se.Message = ve.Message
			se.Fields = ve.Fields
		}
		return nil, se
	}
	if target.ID() == "" {
		return nil, &SubmitError{Kind: KindValidation, Message: "missing submission target", Err: models.Invalid("target", "missing submission target")}
	}

	path := "/assignments/" + url.PathEscape(target.AssignmentID) + "/responses"
	if target.IsCheckIn() {
		path = "/check-ins/" + url.PathEscape(target.CheckInID) + "/responses"
	}

	var receipt Receipt
	if err := c.do(ctx, http.MethodPost, path, BuildSubmission(answers, meta, c.now()), &receipt); err != nil {
		// The task was completed, cancelled or reassigned elsewhere, so the cached lists are stale.
		var se *SubmitError
		if errors.As(err, &se) && (se.Kind == KindConflict || se.Kind == KindNotFound) {
			c.cache.invalidate(c.caregiverID, kindTasks, kindCheckIns)
		}
		return nil, err
	}
	c.cache.invalidate(c.caregiverID, kindTasks, kindCheckIns, kindPrevious)
	slog.Info("Client.Submit: submitted", "target", target.String(), "responseID", receipt.ResponseID)
	return &receipt, nil
}

// Tasks returns the caregiver's unified task list.
func (c *Client) Tasks(ctx context.Context, includeCompleted bool) ([]assignment.TaskItem, error) {
	key := cacheKey(c.caregiverID, kindTasks, fmt.Sprint(includeCompleted))
	if v, ok := c.cache.get(key); ok {
		return slices.Clone(v.([]assignment.TaskItem)), nil
	}
	path := "/me/tasks"
	if includeCompleted {
		path += "?completed=true"
	}
	var items []assignment.TaskItem
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	c.cache.put(key, slices.Clone(items))
	return items, nil
}

// CheckIns returns the caregiver's pending or completed weekly check-ins.
func (c *Client) CheckIns(ctx context.Context, completed bool) ([]models.CheckIn, error) {
	status := string(models.TaskStatusPending)
	if completed {
		status = string(models.TaskStatusCompleted)
	}
	key := cacheKey(c.caregiverID, kindCheckIns, status)
	if v, ok := c.cache.get(key); ok {
		return slices.Clone(v.([]models.CheckIn)), nil
	}
	var out []models.CheckIn
	if err := c.do(ctx, http.MethodGet, "/me/check-ins?status="+status, nil, &out); err != nil {
		return nil, err
	}
	c.cache.put(key, slices.Clone(out))
	return out, nil
}

// Survey loads a survey with its questions.
func (c *Client) Survey(ctx context.Context, surveyID string) (*models.SurveyWithQuestions, error) {
	key := cacheKey(c.caregiverID, kindSurvey, surveyID)
	if v, ok := c.cache.get(key); ok {
		return v.(*models.SurveyWithQuestions), nil
	}
	var sv models.SurveyWithQuestions
	if err := c.do(ctx, http.MethodGet, "/surveys/"+url.PathEscape(surveyID), nil, &sv); err != nil {
		return nil, err
	}
	c.cache.put(key, &sv)
	return &sv, nil
}

// LoadForm renders an empty form for the survey.
func (c *Client) LoadForm(ctx context.Context, surveyID string) (*form.Form, error) {
	sv, err := c.Survey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return form.New(sv.Questions), nil
}

type previousResult struct {
	Answers map[string]json.RawMessage `json:"answers"`
}

// PreviousResponse returns the caregiver's latest answers for the survey and patient,
// decoded against the survey's questions so they can be passed to form.CopyFrom. It
// returns nil when there is no earlier response.
func (c *Client) PreviousResponse(ctx context.Context, surveyID, patientID string) (map[string]models.Answer, error) {
	key := cacheKey(c.caregiverID, kindPrevious, surveyID+"/"+patientID)
	if v, ok := c.cache.get(key); ok {
		return v.(map[string]models.Answer), nil
	}
	sv, err := c.Survey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("surveyId", surveyID)
	q.Set("patientId", patientID)
	var res previousResult
	if err := c.do(ctx, http.MethodGet, "/me/previous-response?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}

	var answers map[string]models.Answer
	if res.Answers != nil {
		answers = make(map[string]models.Answer, len(res.Answers))
		for _, question := range sv.Questions {
			raw, ok := res.Answers[question.ID]
			if !ok {
				continue
			}
			a, err := models.DecodeAnswer(question.Type, raw)
			if err != nil {
				if errors.Is(err, models.ErrMalformedAnswer) {
					continue
				}
				return nil, err
			}
			answers[question.ID] = a
		}
	}
	c.cache.put(key, answers)
	return answers, nil
}
