package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pickandgo/onboarding/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postQuote(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewQuoteHandler().Quote(rec, req)
	return rec
}

func TestQuoteHandler_Quote(t *testing.T) {
	t.Run("days with weekly rate and driver", func(t *testing.T) {
		rec := postQuote(t, `{"dailyRate": 50, "weeklyRate": "300", "securityDeposit": 200,
			"currency": "lkr", "days": 9, "withDriver": true, "driverDailyRate": 10}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var b pricing.Breakdown
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.Equal(t, 1, b.Weeks)
		assert.Equal(t, 2, b.Days)
		assert.Equal(t, "400", b.RentalTotal.String())
		assert.Equal(t, "90", b.DriverFee.String())
		assert.Equal(t, "490", b.Total.String())
		assert.Equal(t, "200", b.Deposit.String())
		assert.Equal(t, "LKR", b.Currency)
	})

	t.Run("dates round up to whole days", func(t *testing.T) {
		rec := postQuote(t, `{"dailyRate": "20", "startDate": "2026-03-01T10:00:00Z", "endDate": "2026-03-03T12:00:00Z"}`)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var b pricing.Breakdown
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.Equal(t, 3, b.Days)
		assert.Equal(t, "60", b.Total.String())
		assert.Equal(t, "USD", b.Currency)
	})

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"invalid json", `{"dailyRate":`},
			{"no duration", `{"dailyRate": 20}`},
			{"end before start", `{"dailyRate": 20, "startDate": "2026-03-03T00:00:00Z", "endDate": "2026-03-01T00:00:00Z"}`},
			{"start without end", `{"dailyRate": 20, "startDate": "2026-03-03T00:00:00Z"}`},
			{"bad currency", `{"dailyRate": 20, "days": 2, "currency": "dollars"}`},
			{"zero daily rate", `{"dailyRate": 0, "days": 2}`},
			{"negative days", `{"dailyRate": 20, "days": -1}`},
			{"too many days", `{"dailyRate": 20, "days": 3651}`},
			{"date range too long", `{"dailyRate": 20, "startDate": "2026-01-01T00:00:00Z", "endDate": "2040-01-01T00:00:00Z"}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := postQuote(t, tt.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})
}

func TestQuoteRequest_RentalDaysBound(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(maxRentalDays * 24 * time.Hour)

	days, err := quoteRequest{StartDate: &start, EndDate: &end}.rentalDays()
	require.NoError(t, err)
	assert.Equal(t, maxRentalDays, days)

	end = end.Add(time.Hour)
	_, err = quoteRequest{StartDate: &start, EndDate: &end}.rentalDays()
	assert.EqualError(t, err, "rental period must be at most 3650 days")
}
