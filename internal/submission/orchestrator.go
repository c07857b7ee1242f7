// Package submission turns a completed wizard draft into a vehicle on the
// marketplace backend.
package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/pickandgo/onboarding/internal/metrics"
	"github.com/pickandgo/onboarding/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrCreateFailed = errors.New("vehicle creation failed")

// VehicleAPI is the part of the backend client the orchestrator needs.
type VehicleAPI interface {
	CreateVehicle(ctx context.Context, ownerID string, vehicle models.VehicleSubmission) (*models.Vehicle, error)
	UploadImage(ctx context.Context, vehicleID string, side models.PhotoSide, file *models.StagedFile) error
	UploadDocument(ctx context.Context, vehicleID string, docType models.DocumentType, file *models.StagedFile) error
}

// Files gives access to the staged photos and documents.
type Files interface {
	Photo(side models.PhotoSide) *models.StagedFile
	Document(t models.DocumentType) *models.StagedFile
}

// Result describes a successful submission.
type Result struct {
	Vehicle *models.Vehicle
}

// Orchestrator runs the create-then-upload sequence.
type Orchestrator struct {
	api     VehicleAPI
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewOrchestrator creates an orchestrator. log and m may be nil.
func NewOrchestrator(api VehicleAPI, log logrus.FieldLogger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{api: api, log: log, metrics: m}
}

// Submit creates the vehicle and then uploads staged photos (front, back) and
// documents (insurance, registration, emission test) one at a time. Only the
// creation call can fail the submission; upload failures are logged and
// counted, never retried and never rolled back.
func (o *Orchestrator) Submit(ctx context.Context, ownerID string, draft models.VehicleDraft, files Files) (Result, error) {
	payload, err := BuildSubmission(draft)
	if err != nil {
		o.metrics.Submission(metrics.OutcomeFailure)
		return Result{}, err
	}

	vehicle, err := o.api.CreateVehicle(ctx, ownerID, payload)
	if err != nil {
		o.metrics.Submission(metrics.OutcomeFailure)
		o.log.WithError(err).WithField("owner_id", ownerID).Error("Vehicle creation failed")
		return Result{}, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	entry := o.log.WithFields(logrus.Fields{"owner_id": ownerID, "vehicle_id": vehicle.ID})

	if files != nil {
		for _, side := range models.PhotoSides {
			file := files.Photo(side)
			if file == nil {
				continue
			}
			if err := o.api.UploadImage(ctx, vehicle.ID, side, file); err != nil {
				o.metrics.UploadFailure("photo", string(side))
				entry.WithError(err).WithField("slot", side).Warn("Vehicle photo upload failed")
			}
		}
		for _, t := range models.DocumentTypes {
			file := files.Document(t)
			if file == nil {
				continue
			}
			if err := o.api.UploadDocument(ctx, vehicle.ID, t, file); err != nil {
				o.metrics.UploadFailure("document", string(t))
				entry.WithError(err).WithField("slot", t).Warn("Vehicle document upload failed")
			}
		}
	}

	o.metrics.Submission(metrics.OutcomeSuccess)
	entry.Info("Vehicle submitted")
	return Result{Vehicle: vehicle}, nil
}
