package wizard

import (
	"context"
	"fmt"

	"github.com/pickandgo/onboarding/internal/agreement"
	"github.com/pickandgo/onboarding/internal/validation"
)

// next validates the current step and advances when it is clean. Leaving the
// last step validates every step again, since earlier answers may have been
// edited since, and sends the owner back to the first one that fails. The
// returned map is empty on success.
func (s *Session) next(ctx context.Context, loader *agreement.Loader) (validation.ErrorMap, error) {
	if s.State.Phase != PhaseStep {
		return nil, fmt.Errorf("%w: next from %s", ErrInvalidTransition, s.State.Phase)
	}
	errs := validation.ValidateStep(s.State.CurrentStep, s.Draft, &s.Staging)
	if len(errs) > 0 {
		s.Errors = errs
		return errs, nil
	}
	s.Errors = nil
	if s.State.CurrentStep < validation.StepCount {
		s.State.CurrentStep++
		return errs, nil
	}
	if step, stale := s.revalidate(); step != 0 {
		return stale, nil
	}
	s.Agreement.Show(ctx, loader)
	s.State.Phase = PhaseAgreement
	s.State.AgreementVisible = true
	return errs, nil
}

// back moves one step back. Leaving the agreement returns to the last step
// and keeps the draft and the acceptance choice.
func (s *Session) back() error {
	switch s.State.Phase {
	case PhaseAgreement:
		s.State.Phase = PhaseStep
		s.State.CurrentStep = validation.StepCount
		s.State.AgreementVisible = false
	case PhaseStep:
		if s.State.CurrentStep > validation.StepBasicInfo {
			s.State.CurrentStep--
		}
	default:
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, s.State.Phase)
	}
	s.Errors = nil
	return nil
}

// editable reports an error unless the session is on a form step.
func (s *Session) editable() error {
	if s.State.Phase != PhaseStep {
		return fmt.Errorf("%w: edit during %s", ErrInvalidTransition, s.State.Phase)
	}
	return nil
}

// revalidate checks every step and, on the first failure, moves the session
// back to that step with its errors. It returns the failing step or 0.
func (s *Session) revalidate() (int, validation.ErrorMap) {
	step, errs := validation.FirstInvalidStep(validation.StepCount, s.Draft, &s.Staging)
	if step == 0 {
		return 0, nil
	}
	s.State.Phase = PhaseStep
	s.State.CurrentStep = step
	s.State.AgreementVisible = false
	s.Errors = errs
	return step, errs
}

// beginSubmit checks the agreement and the whole draft and flags the session
// as submitting.
func (s *Session) beginSubmit() error {
	if s.State.Phase != PhaseAgreement {
		return fmt.Errorf("%w: submit from %s", ErrInvalidTransition, s.State.Phase)
	}
	if !s.Agreement.Accepted() {
		return ErrAgreementNotAccepted
	}
	if step, _ := s.revalidate(); step != 0 {
		return fmt.Errorf("%w: step %d", ErrIncompleteDraft, step)
	}
	s.State.Phase = PhaseSubmitting
	s.State.Submitting = true
	s.State.UploadingPhotos = s.Staging.HasPhotos()
	s.LastError = ""
	return nil
}

// endSubmit records the outcome of a submission. On failure the session
// returns to the agreement with its draft intact.
func (s *Session) endSubmit(err error) {
	s.State.Submitting = false
	s.State.UploadingPhotos = false
	if err != nil {
		s.State.Phase = PhaseAgreement
		s.State.AgreementVisible = true
		s.LastError = err.Error()
		return
	}
	s.reset()
	s.State.Phase = PhaseClosed
}
