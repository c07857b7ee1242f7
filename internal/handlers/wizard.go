package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pickandgo/onboarding/internal/agreement"
	"github.com/pickandgo/onboarding/internal/draft"
	"github.com/pickandgo/onboarding/internal/middleware"
	"github.com/pickandgo/onboarding/internal/models"
	"github.com/pickandgo/onboarding/internal/staging"
	"github.com/pickandgo/onboarding/internal/submission"
	"github.com/pickandgo/onboarding/internal/validation"
	"github.com/pickandgo/onboarding/internal/wizard"
	"github.com/sirupsen/logrus"
)

const maxFieldsBody = 1 << 20

// WizardService is the part of wizard.Service the HTTP layer drives.
type WizardService interface {
	Open(ctx context.Context, ownerID string) (*wizard.Session, error)
	Get(ctx context.Context, ownerID, id string) (*wizard.Session, error)
	SetFields(ctx context.Context, ownerID, id string, fields map[string]any) (*wizard.Session, error)
	StageDocument(ctx context.Context, ownerID, id string, t models.DocumentType, u staging.Upload) (*wizard.Session, error)
	RemoveDocument(ctx context.Context, ownerID, id string, t models.DocumentType) (*wizard.Session, error)
	StagePhoto(ctx context.Context, ownerID, id string, side models.PhotoSide, u staging.Upload) (*wizard.Session, error)
	RemovePhoto(ctx context.Context, ownerID, id string, side models.PhotoSide) (*wizard.Session, error)
	Next(ctx context.Context, ownerID, id string) (*wizard.Session, validation.ErrorMap, error)
	Back(ctx context.Context, ownerID, id string) (*wizard.Session, error)
	Accept(ctx context.Context, ownerID, id string, accepted bool) (*wizard.Session, error)
	Submit(ctx context.Context, ownerID, id string) (*models.Vehicle, *wizard.Session, error)
	Cancel(ctx context.Context, ownerID, id string) error
}

// WizardHandler exposes the add-vehicle wizard over HTTP.
type WizardHandler struct {
	service   WizardService
	maxUpload int64
	log       logrus.FieldLogger
}

// NewWizardHandler creates a wizard handler. maxUpload bounds a multipart
// request body; non-positive values default to 12 MiB.
func NewWizardHandler(service WizardService, maxUpload int64, log logrus.FieldLogger) *WizardHandler {
	if maxUpload <= 0 {
		maxUpload = 12 << 20
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WizardHandler{service: service, maxUpload: maxUpload, log: log}
}

// Routes mounts the wizard endpoints.
func (h *WizardHandler) Routes(r chi.Router) {
	r.Post("/", h.Open)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Cancel)
		r.Patch("/fields", h.SetFields)
		r.Put("/documents/{type}", h.PutDocument)
		r.Delete("/documents/{type}", h.DeleteDocument)
		r.Put("/photos/{side}", h.PutPhoto)
		r.Delete("/photos/{side}", h.DeletePhoto)
		r.Post("/next", h.Next)
		r.Post("/back", h.Back)
		r.Post("/agreement", h.Accept)
		r.Post("/submit", h.Submit)
	})
}

// slotView describes a staging slot without its bytes.
type slotView struct {
	Name        string   `json:"name,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
	Size        int64    `json:"size,omitempty"`
	Preview     string   `json:"preview,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	Staged      bool     `json:"staged"`
}

type agreementView struct {
	Kind     models.AgreementKind      `json:"kind"`
	Snapshot *models.AgreementSnapshot `json:"snapshot,omitempty"`
	Fallback bool                      `json:"fallback"`
	Accepted bool                      `json:"accepted"`
}

type sessionView struct {
	ID        string                           `json:"id"`
	State     wizard.State                     `json:"state"`
	Draft     models.VehicleDraft              `json:"draft"`
	Documents map[models.DocumentType]slotView `json:"documents"`
	Photos    map[models.PhotoSide]slotView    `json:"photos"`
	Missing   []models.DocumentType            `json:"missingDocuments"`
	Agreement *agreementView                   `json:"agreement,omitempty"`
	Errors    validation.ErrorMap              `json:"errors,omitempty"`
	LastError string                           `json:"lastError,omitempty"`
	UpdatedAt time.Time                        `json:"updatedAt"`
}

func newSlotView(e *staging.Entry) slotView {
	if e == nil {
		return slotView{}
	}
	v := slotView{Preview: e.Preview, Errors: e.Errors}
	if e.File != nil {
		v.Name = e.File.Name
		v.ContentType = e.File.ContentType
		v.Size = e.File.Size
		v.Staged = true
	}
	return v
}

func newSessionView(s *wizard.Session) sessionView {
	v := sessionView{
		ID:        s.ID,
		State:     s.State,
		Draft:     s.Draft,
		Documents: make(map[models.DocumentType]slotView, len(models.DocumentTypes)),
		Photos:    make(map[models.PhotoSide]slotView, len(models.PhotoSides)),
		Missing:   s.Staging.MissingDocuments(),
		Errors:    s.Errors,
		LastError: s.LastError,
		UpdatedAt: s.UpdatedAt,
	}
	for _, t := range models.DocumentTypes {
		v.Documents[t] = newSlotView(s.Staging.Documents[t])
	}
	for _, side := range models.PhotoSides {
		v.Photos[side] = newSlotView(s.Staging.Photos[side])
	}
	if s.Agreement.Shown() {
		v.Agreement = &agreementView{
			Kind:     s.Agreement.Kind,
			Snapshot: s.Agreement.Snapshot,
			Fallback: s.Agreement.Fallback,
			Accepted: s.Agreement.Accepted(),
		}
	}
	return v
}

// owner returns the caller's user id. The auth middleware guarantees claims.
func owner(r *http.Request) (string, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return "", false
	}
	return claims.UserID, true
}

// wizardStatus maps service errors to HTTP statuses.
func wizardStatus(err error) int {
	switch {
	case errors.Is(err, wizard.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrInvalidTransition), errors.Is(err, wizard.ErrSessionBusy), errors.Is(err, agreement.ErrNotShown):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrAgreementNotAccepted),
		errors.Is(err, draft.ErrUnknownField),
		errors.Is(err, draft.ErrInvalidValue),
		errors.Is(err, staging.ErrUnknownDocumentType),
		errors.Is(err, staging.ErrUnknownPhotoSide):
		return http.StatusBadRequest
	case errors.Is(err, submission.ErrInvalidDraft), errors.Is(err, wizard.ErrIncompleteDraft):
		return http.StatusUnprocessableEntity
	case errors.Is(err, submission.ErrCreateFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *WizardHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := wizardStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Wizard request failed")
	}
	writeError(w, status, err.Error())
}

// run resolves the caller and session id and writes the resulting session.
func (h *WizardHandler) run(w http.ResponseWriter, r *http.Request, fn func(ownerID, id string) (*wizard.Session, error)) {
	ownerID, ok := owner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return
	}
	sess, err := fn(ownerID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess))
}

// Open starts a new wizard session.
func (h *WizardHandler) Open(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return
	}
	sess, err := h.service.Open(r.Context(), ownerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+sess.ID)
	writeJSON(w, http.StatusCreated, newSessionView(sess))
}

// Get returns the session.
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ownerID, id string) (*wizard.Session, error) {
		return h.service.Get(r.Context(), ownerID, id)
	})
}

// SetFields applies {"fields": {"path": value}} to the draft.
func (h *WizardHandler) SetFields(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fields map[string]any `json:"fields"`
	}
	if err := decodeJSON(w, r, maxFieldsBody, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(body.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required")
		return
	}
	h.run(w, r, func(ownerID, id string) (*wizard.Session, error) {
		return h.service.SetFields(r.Context(), ownerID, id, body.Fields)
	})
}

// readUpload reads the multipart "file" field.
func (h *WizardHandler) readUpload(w http.ResponseWriter, r *http.Request) (staging.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return staging.Upload{}, false
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return staging.Upload{}, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return staging.Upload{}, false
	}
	defer file.Close()

	// One byte past the limit is enough for staging to report the size error.
	data, err := io.ReadAll(io.LimitReader(file, staging.MaxFileSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return staging.Upload{}, false
	}
	return staging.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

// PutDocument stages a document. A rejected file still answers 200 with the
// reasons on the slot.
func (h *WizardHandler) PutDocument(w http.ResponseWriter, r *http.Request) {
	t := models.DocumentType(chi.URLParam(r, "type"))
	if !models.IsValidDocumentType(t) {
		writeError(w, http.StatusBadRequest, staging.ErrUnknownDocumentType.Error())
		return
	}
	u, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	h.run(w, r, func(ownerID, id string) (*wizard.Session, error) {
		return h.service.StageDocument(r.Context(), ownerID, id, t, u)
	})
}

// DeleteDocument clears a document slot.
func (h *WizardHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	t := models.DocumentType(chi.URLParam(r, "type"))
	h.run(w, r, func(ownerID, id string) (*wizard.Session, error) {
		return h.service.RemoveDocument(r.Context(), ownerID, id, t)
	})
}

// PutPhoto stages a front or back photo.
func (h *WizardHandler) PutPhoto(w http.ResponseWriter, r *http.Request) {
	side := models.PhotoSide(chi.URLParam(r, "side"))
	if !models.IsValidPhotoSide(side) {
		writeError(w, http.StatusBadRequest, staging.ErrUnknownPhotoSide.Error())
		return
	}
	u, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	h.run(w, r, func(ownerID, id string) (*wizard.Session, error) {
		return h.service.StagePhoto(r.Context(), ownerID, id, side, u)
	})
}

// DeletePhoto clears a photo slot.
func (h *WizardHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	side := models.PhotoSide(chi.URLParam(r, "side"))
	h.run(w, r, func(ownerID, id string) (*wizard.Session, error) {
		return h.service.RemovePhoto(r.Context(), ownerID, id, side)
	})
}

// Next validates the current step. Validation errors answer 422 with the
// error map and the unchanged session.
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return
	}
	sess, errs, err := h.service.Next(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors":  errs,
			"session": newSessionView(sess),
		})
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess))
}

// Back returns to the previous step.
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ownerID, id string) (*wizard.Session, error) {
		return h.service.Back(r.Context(), ownerID, id)
	})
}

// Accept records {"accepted": bool} for the shown agreement.
func (h *WizardHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Accepted *bool `json:"accepted"`
	}
	if err := decodeJSON(w, r, maxFieldsBody, &body); err != nil || body.Accepted == nil {
		writeError(w, http.StatusBadRequest, "accepted is required")
		return
	}
	h.run(w, r, func(ownerID, id string) (*wizard.Session, error) {
		return h.service.Accept(r.Context(), ownerID, id, *body.Accepted)
	})
}

// Submit creates the vehicle. On failure the session stays open and is
// returned with the error so the owner can retry.
func (h *WizardHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return
	}
	vehicle, sess, err := h.service.Submit(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		status := wizardStatus(err)
		if status == http.StatusInternalServerError && sess != nil {
			status = http.StatusBadGateway
		}
		if status >= http.StatusInternalServerError {
			h.log.WithError(err).WithField("session_id", chi.URLParam(r, "id")).Warn("Vehicle submission failed")
		}
		resp := map[string]any{"error": err.Error()}
		if sess != nil {
			resp["session"] = newSessionView(sess)
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "Vehicle added successfully",
		"vehicleId": vehicle.ID,
		"vehicle":   vehicle,
	})
}

// Cancel abandons the session.
func (h *WizardHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return
	}
	if err := h.service.Cancel(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
