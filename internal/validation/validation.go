// Package validation checks each wizard step before the owner may leave it.
package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pickandgo/onboarding/internal/models"
	"github.com/shopspring/decimal"
)

// Wizard steps.
const (
	StepBasicInfo = iota + 1
	StepSpecifications
	StepLocation
	StepPricing
	StepDocuments
	StepPhotos

	StepCount = StepPhotos
)

// MinYear is the oldest model year accepted.
const MinYear = 1900

// DateLayout is the format of insurance and registration expiry dates.
const DateLayout = "2006-01-02"

// ErrorMap maps a field path to a human readable message.
type ErrorMap map[string]string

// Documents is the read side of the staging area the validator needs.
type Documents interface {
	HasDocument(t models.DocumentType) bool
}

var now = time.Now

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "model_year", modelYear)
	mustRegister(v, "positive_amount", positiveAmount)
	mustRegister(v, "non_negative", nonNegative)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

type rule struct {
	field    string
	value    func(d *models.VehicleDraft) string
	tags     string
	messages map[string]string
}

func required(field, label string, value func(d *models.VehicleDraft) string) rule {
	return rule{
		field:    field,
		value:    value,
		tags:     "required",
		messages: map[string]string{"required": label + " is required"},
	}
}

func amount(field, label string, optional bool, value func(d *models.VehicleDraft) string) rule {
	r := rule{
		field: field,
		value: value,
		tags:  "required,positive_amount",
		messages: map[string]string{
			"required":        label + " is required",
			"positive_amount": label + " must be a number greater than 0",
		},
	}
	if optional {
		r.tags = "omitempty,positive_amount"
	}
	return r
}

func expiry(field, label string, value func(d *models.VehicleDraft) string) rule {
	return rule{
		field: field,
		value: value,
		tags:  "required,datetime=" + DateLayout,
		messages: map[string]string{
			"required": label + " is required",
			"datetime": label + " must be a date (YYYY-MM-DD)",
		},
	}
}

func stepRules(step int) []rule {
	switch step {
	case StepBasicInfo:
		return []rule{
			required("vehicleType", "Vehicle type", func(d *models.VehicleDraft) string { return d.VehicleType }),
			required("make", "Make", func(d *models.VehicleDraft) string { return d.Make }),
			required("model", "Model", func(d *models.VehicleDraft) string { return d.Model }),
			{
				field: "year",
				value: func(d *models.VehicleDraft) string { return d.Year },
				tags:  "required,number,model_year",
				messages: map[string]string{
					"required":   "Year is required",
					"number":     "Year must be a valid number",
					"model_year": fmt.Sprintf("Year must be between %d and %d", MinYear, now().Year()+1),
				},
			},
			required("color", "Color", func(d *models.VehicleDraft) string { return d.Color }),
			required("licensePlate", "License plate", func(d *models.VehicleDraft) string { return d.LicensePlate }),
		}
	case StepSpecifications:
		return []rule{
			{
				field: "seatingCapacity",
				value: func(d *models.VehicleDraft) string { return d.SeatingCapacity },
				tags:  "required,oneof=" + joinInts(models.SeatingCapacities),
				messages: map[string]string{
					"required": "Seating capacity is required",
					"oneof":    "Seating capacity must be one of " + strings.ReplaceAll(joinInts(models.SeatingCapacities), " ", ", "),
				},
			},
			{
				field: "fuelType",
				value: func(d *models.VehicleDraft) string { return d.FuelType },
				tags:  "required,oneof=" + strings.Join(models.FuelTypes, " "),
				messages: map[string]string{
					"required": "Fuel type is required",
					"oneof":    "Fuel type must be one of " + strings.Join(models.FuelTypes, ", "),
				},
			},
			{
				field: "transmission",
				value: func(d *models.VehicleDraft) string { return d.Transmission },
				tags:  "required,oneof=" + strings.Join(models.Transmissions, " "),
				messages: map[string]string{
					"required": "Transmission is required",
					"oneof":    "Transmission must be one of " + strings.Join(models.Transmissions, ", "),
				},
			},
			{
				field:    "mileage",
				value:    func(d *models.VehicleDraft) string { return d.Mileage },
				tags:     "omitempty,number",
				messages: map[string]string{"number": "Mileage must be a whole number of 0 or more"},
			},
			{
				field:    "engineCapacity",
				value:    func(d *models.VehicleDraft) string { return d.EngineCapacity },
				tags:     "omitempty,non_negative",
				messages: map[string]string{"non_negative": "Engine capacity must be a number of 0 or more"},
			},
		}
	case StepLocation:
		return []rule{
			required("location.address", "Address", func(d *models.VehicleDraft) string { return d.Location.Address }),
			required("location.city", "City", func(d *models.VehicleDraft) string { return d.Location.City }),
		}
	case StepPricing:
		return []rule{
			amount("pricing.dailyRate", "Daily rate", false, func(d *models.VehicleDraft) string { return d.Pricing.DailyRate }),
			amount("pricing.weeklyRate", "Weekly rate", true, func(d *models.VehicleDraft) string { return d.Pricing.WeeklyRate }),
			amount("pricing.monthlyRate", "Monthly rate", true, func(d *models.VehicleDraft) string { return d.Pricing.MonthlyRate }),
			amount("pricing.securityDeposit", "Security deposit", false, func(d *models.VehicleDraft) string { return d.Pricing.SecurityDeposit }),
		}
	case StepDocuments:
		return []rule{
			required("insurance.provider", "Insurance provider", func(d *models.VehicleDraft) string { return d.Insurance.Provider }),
			required("insurance.policyNumber", "Policy number", func(d *models.VehicleDraft) string { return d.Insurance.PolicyNumber }),
			expiry("insurance.expiryDate", "Insurance expiry date", func(d *models.VehicleDraft) string { return d.Insurance.ExpiryDate }),
			required("registration.registrationNumber", "Registration number", func(d *models.VehicleDraft) string { return d.Registration.RegistrationNumber }),
			expiry("registration.expiryDate", "Registration expiry date", func(d *models.VehicleDraft) string { return d.Registration.ExpiryDate }),
		}
	default:
		return nil
	}
}

// ValidateStep returns the problems that keep the owner on step. The result
// is empty when the step may be left. Neither the draft nor docs are modified,
// and a nil docs counts as no documents staged.
func ValidateStep(step int, d models.VehicleDraft, docs Documents) ErrorMap {
	errs := ErrorMap{}
	if step < StepBasicInfo || step > StepCount {
		errs["step"] = fmt.Sprintf("Unknown step %d", step)
		return errs
	}

	for _, r := range stepRules(step) {
		value := strings.TrimSpace(r.value(&d))
		if err := validate.Var(value, r.tags); err != nil {
			errs[r.field] = message(r, err)
		}
	}

	if step == StepDocuments {
		for _, t := range models.DocumentTypes {
			if docs == nil || !docs.HasDocument(t) {
				errs["documents."+string(t)] = t.Label() + " is required"
			}
		}
	}
	return errs
}

// FirstInvalidStep validates steps 1 through last in order and returns the
// first step with problems together with its errors. It returns 0 and nil
// when every step passes.
func FirstInvalidStep(last int, d models.VehicleDraft, docs Documents) (int, ErrorMap) {
	for step := StepBasicInfo; step <= last && step <= StepCount; step++ {
		if errs := ValidateStep(step, d, docs); len(errs) > 0 {
			return step, errs
		}
	}
	return 0, nil
}

func message(r rule, err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		if msg, ok := r.messages[verrs[0].Tag()]; ok {
			return msg
		}
	}
	return "Invalid value"
}

func modelYear(fl validator.FieldLevel) bool {
	year, err := strconv.Atoi(fl.Field().String())
	if err != nil {
		return false
	}
	return year >= MinYear && year <= now().Year()+1
}

// positiveAmount rejects amounts that round to zero at cent precision.
func positiveAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && d.Round(2).IsPositive()
}

func nonNegative(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !d.IsNegative()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}
