package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/CareCheck/internal/assignment"
	"github.com/BTreeMap/CareCheck/internal/models"
	"github.com/BTreeMap/CareCheck/internal/store"
)

// Roster is the lookup the notifier needs to address and phrase a message.
type Roster interface {
	GetCaregiver(id string) (*models.Caregiver, error)
	GetPatient(id string) (*models.Patient, error)
}

// Notifier turns queued outbox messages into caregiver notifications.
type Notifier struct {
	svc    Service
	roster Roster
	loc    *time.Location
}

// NewNotifier creates a Notifier. Due dates are rendered in loc.
func NewNotifier(svc Service, roster Roster, loc *time.Location) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{svc: svc, roster: roster, loc: loc}
}

// Send delivers one outbox message. It has the store.OutboxSendFunc signature.
// A caregiver without a usable phone number is an error so the outbox records why
// the message was never delivered.
func (n *Notifier) Send(ctx context.Context, msg store.OutboxMessage) error {
	if msg.Kind != store.OutboxKindAssignmentCreated {
		return fmt.Errorf("unsupported outbox message kind %q", msg.Kind)
	}
	var notice assignment.AssignmentNotice
	if err := json.Unmarshal([]byte(msg.PayloadJSON), &notice); err != nil {
		return fmt.Errorf("decode assignment notice: %w", err)
	}

	cg, err := n.roster.GetCaregiver(msg.RecipientID)
	if err != nil {
		return fmt.Errorf("load caregiver: %w", err)
	}
	if cg == nil {
		return models.NotFound("caregiver", msg.RecipientID)
	}
	if cg.Phone == "" {
		return fmt.Errorf("caregiver %s: %w", cg.ID, ErrNoRecipient)
	}
	to, err := n.svc.ValidateAndCanonicalizeRecipient(cg.Phone)
	if err != nil {
		return err
	}

	patientName := notice.PatientID
	if pt, err := n.roster.GetPatient(notice.PatientID); err != nil {
		slog.Warn("Notifier.Send: patient lookup failed", "patientID", notice.PatientID, "error", err)
	} else if pt != nil {
		patientName = pt.Name
	}

	body := n.assignmentBody(cg.Name, patientName, notice)
	if err := n.svc.SendMessage(ctx, to, body); err != nil {
		return err
	}
	slog.Info("Notifier.Send: assignment notice sent", "assignmentID", notice.AssignmentID, "caregiverID", cg.ID)
	return nil
}

func (n *Notifier) assignmentBody(caregiver, patient string, notice assignment.AssignmentNotice) string {
	body := fmt.Sprintf("Hi %s, you have a new survey %q for %s.", caregiver, notice.SurveyTitle, patient)
	if !notice.DueAt.IsZero() {
		body += " Please complete it by " + notice.DueAt.In(n.loc).Format("Mon Jan 2") + "."
	}
	return body
}
