// Package messaging delivers caregiver notifications.
//
// The Service interface abstracts the transport so the outbox notifier can be exercised
// without a live SMS provider.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
)

// ErrNoRecipient is returned when a caregiver has no phone number on file.
var ErrNoRecipient = errors.New("recipient has no phone number")

var phoneNumberRegex = regexp.MustCompile(`[^\d]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error
}

// canonicalizePhone strips everything but digits and requires at least 6 of them.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("messaging.canonicalizePhone: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SentMessage is a message captured by RecordingService.
type SentMessage struct {
	To   string
	Body string
}

// RecordingService keeps every message in memory instead of delivering it. It is used
// when notifications are disabled and in tests.
type RecordingService struct {
	mu   sync.Mutex
	sent []SentMessage
	// Err, when set, is returned from SendMessage and nothing is recorded.
	Err error
}

// NewRecordingService creates an empty RecordingService.
func NewRecordingService() *RecordingService {
	return &RecordingService{}
}

// ValidateAndCanonicalizeRecipient applies the same phone rules as TwilioService.
func (s *RecordingService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage records the message.
func (s *RecordingService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, SentMessage{To: to, Body: body})
	slog.Debug("RecordingService.SendMessage: recorded", "to", to)
	return nil
}

// Sent returns a copy of the recorded messages.
func (s *RecordingService) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}
