// Package pricing computes rental quotes for the booking flow.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	daysPerWeek  = 7
	daysPerMonth = 30
)

var (
	ErrInvalidDays  = errors.New("rental must be at least one day")
	ErrInvalidRates = errors.New("daily rate must be greater than 0")
)

// Rates are the prices a vehicle is listed with. Weekly and monthly rates are optional.
type Rates struct {
	Daily           decimal.Decimal
	Weekly          decimal.NullDecimal
	Monthly         decimal.NullDecimal
	SecurityDeposit decimal.Decimal
	Currency        string
}

// Breakdown is a quote split by billing period.
type Breakdown struct {
	Months      int             `json:"months"`
	Weeks       int             `json:"weeks"`
	Days        int             `json:"days"`
	RentalTotal decimal.Decimal `json:"rentalTotal"`
	DriverFee   decimal.Decimal `json:"driverFee"`
	Total       decimal.Decimal `json:"total"`
	Deposit     decimal.Decimal `json:"securityDeposit"`
	Currency    string          `json:"currency"`
}

// Quote prices a rental of days. Whole 30-day months bill at the monthly rate
// and whole weeks at the weekly rate when those rates exist; the rest bills
// daily. The driver fee is charged per day. The deposit is reported apart
// from the total.
func Quote(r Rates, days int, withDriver bool, driverDailyRate decimal.Decimal) (Breakdown, error) {
	if days < 1 {
		return Breakdown{}, ErrInvalidDays
	}
	if !r.Daily.IsPositive() {
		return Breakdown{}, ErrInvalidRates
	}
	if withDriver && driverDailyRate.IsNegative() {
		return Breakdown{}, fmt.Errorf("driver rate must not be negative")
	}

	b := Breakdown{Currency: r.Currency}
	remaining := days
	rental := decimal.Zero
	if r.Monthly.Valid && r.Monthly.Decimal.IsPositive() {
		b.Months = remaining / daysPerMonth
		remaining -= b.Months * daysPerMonth
		rental = rental.Add(r.Monthly.Decimal.Mul(decimal.NewFromInt(int64(b.Months))))
	}
	if r.Weekly.Valid && r.Weekly.Decimal.IsPositive() {
		b.Weeks = remaining / daysPerWeek
		remaining -= b.Weeks * daysPerWeek
		rental = rental.Add(r.Weekly.Decimal.Mul(decimal.NewFromInt(int64(b.Weeks))))
	}
	b.Days = remaining
	rental = rental.Add(r.Daily.Mul(decimal.NewFromInt(int64(remaining))))

	b.RentalTotal = rental.Round(2)
	b.DriverFee = decimal.Zero
	if withDriver {
		b.DriverFee = driverDailyRate.Mul(decimal.NewFromInt(int64(days))).Round(2)
	}
	b.Total = b.RentalTotal.Add(b.DriverFee)
	b.Deposit = r.SecurityDeposit.Round(2)
	return b, nil
}
