package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pickandgo/onboarding/internal/agreement"
	"github.com/pickandgo/onboarding/internal/draft"
	"github.com/pickandgo/onboarding/internal/events"
	"github.com/pickandgo/onboarding/internal/metrics"
	"github.com/pickandgo/onboarding/internal/models"
	"github.com/pickandgo/onboarding/internal/staging"
	"github.com/pickandgo/onboarding/internal/submission"
	"github.com/pickandgo/onboarding/internal/validation"
	"github.com/sirupsen/logrus"
)

var (
	ErrSessionNotFound      = errors.New("wizard session not found")
	ErrAgreementNotAccepted = errors.New("agreement must be accepted before submitting")
	ErrInvalidTransition    = errors.New("invalid wizard transition")
	ErrIncompleteDraft      = errors.New("draft has steps that do not pass validation")
	ErrSessionBusy          = errors.New("wizard session is busy")
)

// Locker is implemented by stores shared between processes. Lock holds
// session id until the returned func is called.
type Locker interface {
	Lock(ctx context.Context, id string) (func(), error)
}

// Submitter creates the vehicle and uploads its files.
type Submitter interface {
	Submit(ctx context.Context, ownerID string, d models.VehicleDraft, files submission.Files) (submission.Result, error)
}

// Notifier announces newly added vehicles.
type Notifier interface {
	NotifyVehicleAdded(ctx context.Context, ev events.VehicleAddedEvent) error
}

// Options configures a Service.
type Options struct {
	Store         Store
	Loader        *agreement.Loader
	Submitter     Submitter
	Notifier      Notifier
	Metrics       *metrics.Metrics
	Log           logrus.FieldLogger
	AgreementKind models.AgreementKind
	Now           func() time.Time
}

// Service runs wizard sessions. Operations on one session are serialized;
// different sessions proceed independently.
type Service struct {
	store     Store
	loader    *agreement.Loader
	submitter Submitter
	notifier  Notifier
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	kind      models.AgreementKind
	now       func() time.Time
	locks     sync.Map
}

// NewService creates a wizard service.
func NewService(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		loader:    opts.Loader,
		submitter: opts.Submitter,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		log:       opts.Log,
		kind:      opts.AgreementKind,
		now:       opts.Now,
	}
	if s.store == nil {
		s.store = NewMemoryStore(0)
	}
	if s.loader == nil {
		s.loader = agreement.NewLoader(nil, nil, opts.Log)
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.kind == "" {
		s.kind = models.AgreementBusiness
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Open starts a new session for ownerID at step 1 with an empty draft.
func (s *Service) Open(ctx context.Context, ownerID string) (*Session, error) {
	sess := newSession(ownerID, s.kind, s.now())
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.metrics.SessionEvent("opened")
	s.log.WithFields(logrus.Fields{"session_id": sess.ID, "owner_id": ownerID}).Info("Wizard session opened")
	return sess, nil
}

// Get returns the session id owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Session, error) {
	return s.load(ctx, ownerID, id)
}

// SetFields merges field edits into the draft. Nothing is stored when any
// path is unknown or any value cannot be coerced.
func (s *Service) SetFields(ctx context.Context, ownerID, id string, fields map[string]any) (*Session, error) {
	return s.mutate(ctx, ownerID, id, func(sess *Session) error {
		if err := sess.editable(); err != nil {
			return err
		}
		return draft.New(&sess.Draft).SetAll(fields)
	})
}

// StageDocument stages a document. Rejections are kept on the slot and are
// not returned as errors.
func (s *Service) StageDocument(ctx context.Context, ownerID, id string, t models.DocumentType, u staging.Upload) (*Session, error) {
	return s.mutate(ctx, ownerID, id, func(sess *Session) error {
		if err := sess.editable(); err != nil {
			return err
		}
		_, _, err := sess.Staging.StageDocument(t, u)
		return err
	})
}

// RemoveDocument clears a document slot.
func (s *Service) RemoveDocument(ctx context.Context, ownerID, id string, t models.DocumentType) (*Session, error) {
	return s.mutate(ctx, ownerID, id, func(sess *Session) error {
		if err := sess.editable(); err != nil {
			return err
		}
		return sess.Staging.RemoveDocument(t)
	})
}

// StagePhoto stages a vehicle photo.
func (s *Service) StagePhoto(ctx context.Context, ownerID, id string, side models.PhotoSide, u staging.Upload) (*Session, error) {
	return s.mutate(ctx, ownerID, id, func(sess *Session) error {
		if err := sess.editable(); err != nil {
			return err
		}
		_, _, err := sess.Staging.StagePhoto(side, u)
		return err
	})
}

// RemovePhoto clears a photo slot.
func (s *Service) RemovePhoto(ctx context.Context, ownerID, id string, side models.PhotoSide) (*Session, error) {
	return s.mutate(ctx, ownerID, id, func(sess *Session) error {
		if err := sess.editable(); err != nil {
			return err
		}
		return sess.Staging.RemovePhoto(side)
	})
}

// Next validates the current step and advances when it has no errors. The
// error map is returned, and stored on the session, when the step stays.
func (s *Service) Next(ctx context.Context, ownerID, id string) (*Session, validation.ErrorMap, error) {
	var errs validation.ErrorMap
	sess, err := s.mutate(ctx, ownerID, id, func(sess *Session) error {
		var err error
		errs, err = sess.next(ctx, s.loader)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, errs, nil
}

// Back moves to the previous step.
func (s *Service) Back(ctx context.Context, ownerID, id string) (*Session, error) {
	return s.mutate(ctx, ownerID, id, func(sess *Session) error {
		return sess.back()
	})
}

// Accept records the agreement choice. Only possible while the agreement is shown.
func (s *Service) Accept(ctx context.Context, ownerID, id string, accepted bool) (*Session, error) {
	return s.mutate(ctx, ownerID, id, func(sess *Session) error {
		if sess.State.Phase != PhaseAgreement {
			return fmt.Errorf("%w: accept during %s", ErrInvalidTransition, sess.State.Phase)
		}
		return sess.Agreement.Accept(accepted)
	})
}

// Submit hands the draft to the submitter. On success the session is closed
// and removed, and the created vehicle is returned. On failure the session
// stays on the agreement with its draft and the error recorded. The session
// lock is held only while entering and leaving the submitting phase, which
// refuses every other change in between.
func (s *Service) Submit(ctx context.Context, ownerID, id string) (*models.Vehicle, *Session, error) {
	sess, err := s.startSubmit(ctx, ownerID, id)
	if err != nil {
		return nil, sess, err
	}

	logger := s.log.WithFields(logrus.Fields{"session_id": id, "owner_id": ownerID})
	// Uploads keep going when the caller disconnects after the vehicle exists.
	bg := context.WithoutCancel(ctx)
	result, subErr := s.submitter.Submit(bg, ownerID, sess.Draft, &sess.Staging)
	if subErr != nil {
		sess.endSubmit(subErr)
		if err := s.withLock(bg, id, func() error { return s.save(bg, sess) }); err != nil {
			logger.WithError(err).Error("Failed to store session after failed submission")
		}
		logger.WithError(subErr).Warn("Vehicle submission failed")
		return nil, sess, subErr
	}

	submitted := sess.Draft
	sess.endSubmit(nil)
	if err := s.withLock(bg, id, func() error { return s.store.Delete(bg, id) }); err != nil {
		logger.WithError(err).Warn("Failed to delete submitted session")
	}
	s.locks.Delete(id)
	s.metrics.SessionEvent("submitted")

	if s.notifier != nil {
		ev := events.VehicleAddedEvent{
			VehicleID:    result.Vehicle.ID,
			OwnerID:      ownerID,
			Make:         submitted.Make,
			Model:        submitted.Model,
			LicensePlate: submitted.LicensePlate,
			OccurredAt:   s.now().UTC(),
		}
		if err := s.notifier.NotifyVehicleAdded(bg, ev); err != nil {
			logger.WithError(err).Warn("Failed to publish vehicle added event")
		}
	}
	logger.WithField("vehicle_id", result.Vehicle.ID).Info("Wizard session submitted")
	return result.Vehicle, sess, nil
}

// startSubmit moves the session into the submitting phase. A draft that no
// longer validates is stored back on its first failing step.
func (s *Service) startSubmit(ctx context.Context, ownerID, id string) (*Session, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := sess.beginSubmit(); err != nil {
		if errors.Is(err, ErrIncompleteDraft) {
			if saveErr := s.save(ctx, sess); saveErr != nil {
				return nil, saveErr
			}
		}
		return sess, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Cancel abandons the session from any phase. The draft is discarded.
func (s *Service) Cancel(ctx context.Context, ownerID, id string) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := s.load(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if sess.State.Phase == PhaseSubmitting {
		return fmt.Errorf("%w: cancel during submission", ErrInvalidTransition)
	}
	sess.reset()
	sess.State.Phase = PhaseClosed
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.locks.Delete(id)
	s.metrics.SessionEvent("cancelled")
	s.log.WithFields(logrus.Fields{"session_id": id, "owner_id": ownerID}).Info("Wizard session cancelled")
	return nil
}

func (s *Service) mutate(ctx context.Context, ownerID, id string, fn func(*Session) error) (*Session, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) load(ctx context.Context, ownerID, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now()
	return s.store.Save(ctx, sess)
}

func (s *Service) withLock(ctx context.Context, id string, fn func() error) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// lock serializes session id within the process and, when the store is
// shared, across processes.
func (s *Service) lock(ctx context.Context, id string) (func(), error) {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	locker, ok := s.store.(Locker)
	if !ok {
		return mu.Unlock, nil
	}
	release, err := locker.Lock(ctx, id)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	return func() {
		release()
		mu.Unlock()
	}, nil
}
