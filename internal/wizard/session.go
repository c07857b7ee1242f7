// Package wizard drives the six-step vehicle submission wizard: it keeps each
// owner's session, moves between steps, gates submission on the agreement and
// hands the finished draft to the submission orchestrator.
package wizard

import (
	"time"

	"github.com/google/uuid"
	"github.com/pickandgo/onboarding/internal/agreement"
	"github.com/pickandgo/onboarding/internal/models"
	"github.com/pickandgo/onboarding/internal/staging"
	"github.com/pickandgo/onboarding/internal/validation"
)

// Phase is the coarse position of a session in the wizard.
type Phase string

const (
	PhaseStep       Phase = "step"
	PhaseAgreement  Phase = "agreement"
	PhaseSubmitting Phase = "submitting"
	PhaseClosed     Phase = "closed"
)

// State is what the client needs to render the wizard chrome.
type State struct {
	Phase            Phase `json:"phase"`
	CurrentStep      int   `json:"currentStep"`
	AgreementVisible bool  `json:"agreementVisible"`
	Submitting       bool  `json:"submitting"`
	UploadingPhotos  bool  `json:"uploadingPhotos"`
}

// Session is one owner's pass through the wizard.
type Session struct {
	ID        string              `json:"id"`
	OwnerID   string              `json:"ownerId"`
	Draft     models.VehicleDraft `json:"draft"`
	Staging   staging.Area        `json:"staging"`
	Agreement agreement.Gate      `json:"agreement"`
	State     State               `json:"state"`
	Errors    validation.ErrorMap `json:"errors,omitempty"`
	LastError string              `json:"lastError,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func newSession(ownerID string, kind models.AgreementKind, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Draft:     models.NewVehicleDraft(),
		Staging:   staging.NewArea(),
		Agreement: agreement.NewGate(kind),
		State:     State{Phase: PhaseStep, CurrentStep: validation.StepBasicInfo},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no mutable state with s. Staged file bytes
// and the loaded agreement are never modified in place and stay shared.
func (s *Session) Clone() *Session {
	out := *s
	out.Draft = s.Draft.Clone()
	out.Staging = staging.Area{
		Documents: make(map[models.DocumentType]*staging.Entry, len(s.Staging.Documents)),
		Photos:    make(map[models.PhotoSide]*staging.Entry, len(s.Staging.Photos)),
	}
	for k, e := range s.Staging.Documents {
		out.Staging.Documents[k] = cloneEntry(e)
	}
	for k, e := range s.Staging.Photos {
		out.Staging.Photos[k] = cloneEntry(e)
	}
	if s.Errors != nil {
		out.Errors = make(validation.ErrorMap, len(s.Errors))
		for k, v := range s.Errors {
			out.Errors[k] = v
		}
	}
	return &out
}

func cloneEntry(e *staging.Entry) *staging.Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Errors = append([]string(nil), e.Errors...)
	return &c
}

// reset returns the session to a fresh step 1 with an empty draft.
func (s *Session) reset() {
	s.Draft = models.NewVehicleDraft()
	s.Staging.Reset()
	s.Agreement.Reset()
	s.State = State{Phase: PhaseStep, CurrentStep: validation.StepBasicInfo}
	s.Errors = nil
	s.LastError = ""
}
