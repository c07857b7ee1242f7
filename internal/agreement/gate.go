// Package agreement loads the agreement an owner must accept before a vehicle
// is submitted, and tracks that acceptance.
package agreement

import (
	"context"
	"errors"

	"github.com/pickandgo/onboarding/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrNotShown = errors.New("agreement has not been shown")

// Fetcher loads agreement templates from the backend.
type Fetcher interface {
	AgreementPreview(ctx context.Context, kind models.AgreementKind) (*models.AgreementSnapshot, error)
}

// Loader fetches an agreement and substitutes the fallback template on failure.
type Loader struct {
	fetcher   Fetcher
	templates Templates
	log       logrus.FieldLogger
}

// NewLoader creates a loader. A nil templates uses the compiled-in defaults.
func NewLoader(fetcher Fetcher, templates Templates, log logrus.FieldLogger) *Loader {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loader{fetcher: fetcher, templates: templates, log: log}
}

// Load returns the agreement for kind. The second result reports whether the
// fallback template was used. Load never fails.
func (l *Loader) Load(ctx context.Context, kind models.AgreementKind) (models.AgreementSnapshot, bool) {
	if l.fetcher != nil {
		snap, err := l.fetcher.AgreementPreview(ctx, kind)
		if err == nil && snap != nil && len(snap.Terms) > 0 {
			return *snap, false
		}
		entry := l.log.WithField("kind", kind)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("Agreement fetch failed, using default template")
	}
	return l.templates.For(kind), true
}

// Gate is the acceptance checkpoint of one wizard session.
type Gate struct {
	Kind       models.AgreementKind      `json:"kind"`
	Snapshot   *models.AgreementSnapshot `json:"snapshot,omitempty"`
	Fallback   bool                      `json:"fallback"`
	IsAccepted bool                      `json:"accepted"`
}

// NewGate returns a gate for kind that has not been shown yet.
func NewGate(kind models.AgreementKind) Gate {
	return Gate{Kind: kind}
}

// Shown reports whether an agreement has been loaded for display.
func (g *Gate) Shown() bool {
	return g.Snapshot != nil
}

// Show loads the agreement on first display. Later calls keep the loaded copy.
func (g *Gate) Show(ctx context.Context, l *Loader) *models.AgreementSnapshot {
	if g.Snapshot != nil {
		return g.Snapshot
	}
	if g.Kind == "" {
		g.Kind = models.AgreementBusiness
	}
	snap, fallback := l.Load(ctx, g.Kind)
	g.Snapshot = &snap
	g.Fallback = fallback
	return g.Snapshot
}

// Accept records the owner's explicit choice.
func (g *Gate) Accept(accepted bool) error {
	if g.Snapshot == nil {
		return ErrNotShown
	}
	g.IsAccepted = accepted
	return nil
}

// Accepted reports whether the owner accepted the agreement.
func (g *Gate) Accepted() bool {
	return g.Snapshot != nil && g.IsAccepted
}

// Reset forgets the loaded agreement and the acceptance.
func (g *Gate) Reset() {
	*g = NewGate(g.Kind)
}
