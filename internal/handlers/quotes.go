package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pickandgo/onboarding/internal/pricing"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type quoteRequest struct {
	DailyRate       decimal.Decimal     `json:"dailyRate"`
	WeeklyRate      decimal.NullDecimal `json:"weeklyRate"`
	MonthlyRate     decimal.NullDecimal `json:"monthlyRate"`
	SecurityDeposit decimal.Decimal     `json:"securityDeposit"`
	Currency        string              `json:"currency" validate:"omitempty,len=3,alpha"`
	Days            int                 `json:"days" validate:"omitempty,min=1,max=3650"`
	StartDate       *time.Time          `json:"startDate"`
	EndDate         *time.Time          `json:"endDate" validate:"required_with=StartDate"`
	WithDriver      bool                `json:"withDriver"`
	DriverDailyRate decimal.Decimal     `json:"driverDailyRate"`
}

// maxRentalDays bounds the rental period however it is given.
const maxRentalDays = 3650

// rentalDays returns the explicit day count, or the number of started days
// between the start and end dates.
func (q quoteRequest) rentalDays() (int, error) {
	if q.Days > 0 {
		return q.Days, nil
	}
	if q.StartDate == nil || q.EndDate == nil {
		return 0, errors.New("days or startDate and endDate are required")
	}
	span := q.EndDate.Sub(*q.StartDate)
	if span <= 0 {
		return 0, errors.New("endDate must be after startDate")
	}
	days := int(math.Ceil(span.Hours() / 24))
	if days > maxRentalDays {
		return 0, fmt.Errorf("rental period must be at most %d days", maxRentalDays)
	}
	return days, nil
}

// QuoteHandler prices rentals.
type QuoteHandler struct{}

// NewQuoteHandler creates a quote handler
func NewQuoteHandler() *QuoteHandler {
	return &QuoteHandler{}
}

// Quote prices the rental described by the request body.
func (h *QuoteHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(w, r, maxFieldsBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	days, err := req.rentalDays()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	b, err := pricing.Quote(pricing.Rates{
		Daily:           req.DailyRate,
		Weekly:          req.WeeklyRate,
		Monthly:         req.MonthlyRate,
		SecurityDeposit: req.SecurityDeposit,
		Currency:        currency,
	}, days, req.WithDriver, req.DriverDailyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required_with":
		return fe.Field() + " is required with " + fe.Param()
	case "min", "max":
		return fe.Field() + " is out of range"
	default:
		return fe.Field() + " is invalid"
	}
}
