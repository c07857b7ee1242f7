package submission

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pickandgo/onboarding/internal/models"
	"github.com/shopspring/decimal"
)

var ErrInvalidDraft = errors.New("draft cannot be converted to a vehicle")

// BuildSubmission converts a validated draft into the backend payload. Pricing
// moves to rentalPrice with every amount rounded to cents.
func BuildSubmission(d models.VehicleDraft) (models.VehicleSubmission, error) {
	year, err := parseInt("year", d.Year)
	if err != nil {
		return models.VehicleSubmission{}, err
	}
	seats, err := parseInt("seatingCapacity", d.SeatingCapacity)
	if err != nil {
		return models.VehicleSubmission{}, err
	}
	mileage, err := optionalInt("mileage", d.Mileage)
	if err != nil {
		return models.VehicleSubmission{}, err
	}
	engine, err := optionalFloat("engineCapacity", d.EngineCapacity)
	if err != nil {
		return models.VehicleSubmission{}, err
	}
	price, err := rentalPrice(d.Pricing)
	if err != nil {
		return models.VehicleSubmission{}, err
	}

	features := d.Features
	if features == nil {
		features = []string{}
	}
	return models.VehicleSubmission{
		VehicleType:     d.VehicleType,
		Make:            strings.TrimSpace(d.Make),
		Model:           strings.TrimSpace(d.Model),
		Year:            year,
		Color:           strings.TrimSpace(d.Color),
		LicensePlate:    strings.ToUpper(strings.TrimSpace(d.LicensePlate)),
		SeatingCapacity: seats,
		FuelType:        d.FuelType,
		Transmission:    d.Transmission,
		Mileage:         mileage,
		EngineCapacity:  engine,
		Features:        append([]string{}, features...),
		Description:     strings.TrimSpace(d.Description),
		Location:        d.Location,
		Insurance:       d.Insurance,
		Registration:    d.Registration,
		RentalPrice:     price,
	}, nil
}

func rentalPrice(p models.Pricing) (models.RentalPrice, error) {
	daily, err := parseAmount("pricing.dailyRate", p.DailyRate)
	if err != nil {
		return models.RentalPrice{}, err
	}
	deposit, err := parseAmount("pricing.securityDeposit", p.SecurityDeposit)
	if err != nil {
		return models.RentalPrice{}, err
	}
	weekly, err := optionalAmount("pricing.weeklyRate", p.WeeklyRate)
	if err != nil {
		return models.RentalPrice{}, err
	}
	monthly, err := optionalAmount("pricing.monthlyRate", p.MonthlyRate)
	if err != nil {
		return models.RentalPrice{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return models.RentalPrice{
		DailyRate:       daily,
		WeeklyRate:      weekly,
		MonthlyRate:     monthly,
		SecurityDeposit: deposit,
		Currency:        currency,
	}, nil
}

func parseInt(field, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a whole number", ErrInvalidDraft, field, raw)
	}
	return n, nil
}

func optionalInt(field, raw string) (*int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	n, err := parseInt(field, raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func optionalFloat(field, raw string) (*float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is not a number", ErrInvalidDraft, field, raw)
	}
	return &v, nil
}

func parseAmount(field, raw string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an amount", ErrInvalidDraft, field, raw)
	}
	return d.Round(2).InexactFloat64(), nil
}

func optionalAmount(field, raw string) (*float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := parseAmount(field, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
