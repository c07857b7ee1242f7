package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pickandgo/onboarding/internal/agreement"
	"github.com/pickandgo/onboarding/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	snap *models.AgreementSnapshot
	err  error
	kind models.AgreementKind
}

func (f *stubFetcher) AgreementPreview(ctx context.Context, kind models.AgreementKind) (*models.AgreementSnapshot, error) {
	f.kind = kind
	return f.snap, f.err
}

func serveAgreement(t *testing.T, loader AgreementLoader, kind string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/agreements/{kind}", NewAgreementHandler(loader).Preview)
	req := httptest.NewRequest(http.MethodGet, "/api/agreements/"+kind, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAgreementHandler_Preview(t *testing.T) {
	remote := &models.AgreementSnapshot{
		Title:   "Client Rental Agreement",
		Version: "7",
		Terms:   []models.AgreementSection{{SectionTitle: "Use", Content: "Drive carefully."}},
	}

	t.Run("backend agreement", func(t *testing.T) {
		fetcher := &stubFetcher{snap: remote}
		rec := serveAgreement(t, agreement.NewLoader(fetcher, nil, quietLogger()), "client-rental")

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Agreement models.AgreementSnapshot `json:"agreement"`
			Fallback  bool                     `json:"fallback"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, models.AgreementClientRental, fetcher.kind)
		assert.Equal(t, "7", body.Agreement.Version)
		assert.False(t, body.Fallback)
	})

	t.Run("fallback when the backend fails", func(t *testing.T) {
		fetcher := &stubFetcher{err: errors.New("unreachable")}
		rec := serveAgreement(t, agreement.NewLoader(fetcher, nil, quietLogger()), "business")

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Agreement models.AgreementSnapshot `json:"agreement"`
			Fallback  bool                     `json:"fallback"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Fallback)
		assert.NotEmpty(t, body.Agreement.Terms)
	})

	t.Run("unknown kind", func(t *testing.T) {
		rec := serveAgreement(t, agreement.NewLoader(nil, nil, quietLogger()), "lease")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
