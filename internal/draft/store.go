// Package draft holds the in-progress vehicle listing of a wizard session.
package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pickandgo/onboarding/internal/models"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidValue = errors.New("invalid value")
)

type setter func(d *models.VehicleDraft, v string)

var scalarFields = map[string]setter{
	"vehicleType":     func(d *models.VehicleDraft, v string) { d.VehicleType = v },
	"make":            func(d *models.VehicleDraft, v string) { d.Make = v },
	"model":           func(d *models.VehicleDraft, v string) { d.Model = v },
	"year":            func(d *models.VehicleDraft, v string) { d.Year = v },
	"color":           func(d *models.VehicleDraft, v string) { d.Color = v },
	"licensePlate":    func(d *models.VehicleDraft, v string) { d.LicensePlate = strings.ToUpper(v) },
	"seatingCapacity": func(d *models.VehicleDraft, v string) { d.SeatingCapacity = v },
	"fuelType":        func(d *models.VehicleDraft, v string) { d.FuelType = v },
	"transmission":    func(d *models.VehicleDraft, v string) { d.Transmission = v },
	"mileage":         func(d *models.VehicleDraft, v string) { d.Mileage = v },
	"engineCapacity":  func(d *models.VehicleDraft, v string) { d.EngineCapacity = v },
	"description":     func(d *models.VehicleDraft, v string) { d.Description = v },

	"location.address": func(d *models.VehicleDraft, v string) { d.Location.Address = v },
	"location.city":    func(d *models.VehicleDraft, v string) { d.Location.City = v },
	"location.state":   func(d *models.VehicleDraft, v string) { d.Location.State = v },
	"location.zipCode": func(d *models.VehicleDraft, v string) { d.Location.ZipCode = v },

	"insurance.provider":     func(d *models.VehicleDraft, v string) { d.Insurance.Provider = v },
	"insurance.policyNumber": func(d *models.VehicleDraft, v string) { d.Insurance.PolicyNumber = v },
	"insurance.expiryDate":   func(d *models.VehicleDraft, v string) { d.Insurance.ExpiryDate = v },
	"insurance.coverage":     func(d *models.VehicleDraft, v string) { d.Insurance.Coverage = v },

	"registration.registrationNumber": func(d *models.VehicleDraft, v string) { d.Registration.RegistrationNumber = v },
	"registration.expiryDate":         func(d *models.VehicleDraft, v string) { d.Registration.ExpiryDate = v },

	"pricing.dailyRate":       func(d *models.VehicleDraft, v string) { d.Pricing.DailyRate = v },
	"pricing.weeklyRate":      func(d *models.VehicleDraft, v string) { d.Pricing.WeeklyRate = v },
	"pricing.monthlyRate":     func(d *models.VehicleDraft, v string) { d.Pricing.MonthlyRate = v },
	"pricing.securityDeposit": func(d *models.VehicleDraft, v string) { d.Pricing.SecurityDeposit = v },
	"pricing.currency":        func(d *models.VehicleDraft, v string) { d.Pricing.Currency = strings.ToUpper(v) },
}

const featuresField = "features"

// Store wraps a draft and applies field edits addressed by dotted path.
type Store struct {
	draft *models.VehicleDraft
}

// New returns a store editing d in place. A nil d gets a fresh empty draft.
func New(d *models.VehicleDraft) *Store {
	if d == nil {
		empty := models.NewVehicleDraft()
		d = &empty
	}
	if d.Features == nil {
		d.Features = []string{}
	}
	return &Store{draft: d}
}

// Get returns a copy of the current draft.
func (s *Store) Get() models.VehicleDraft {
	return s.draft.Clone()
}

// Set stores value under path, leaving every other field untouched.
func (s *Store) Set(path string, value any) error {
	if path == featuresField {
		features, err := toFeatures(value)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		s.draft.Features = features
		return nil
	}
	set, ok := scalarFields[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	text, err := toText(value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	set(s.draft, text)
	return nil
}

// SetAll applies fields in sorted path order. The edits land together or not
// at all: the first bad path or value leaves the draft unchanged.
func (s *Store) SetAll(fields map[string]any) error {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	clone := s.draft.Clone()
	work := &Store{draft: &clone}
	for _, p := range paths {
		if err := work.Set(p, fields[p]); err != nil {
			return err
		}
	}
	*s.draft = clone
	return nil
}

// Reset puts the draft back to its empty initial shape.
func (s *Store) Reset() {
	*s.draft = models.NewVehicleDraft()
}

// Fields lists every settable path.
func Fields() []string {
	out := make([]string, 0, len(scalarFields)+1)
	for p := range scalarFields {
		out = append(out, p)
	}
	out = append(out, featuresField)
	sort.Strings(out)
	return out
}

func toText(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrInvalidValue, value)
	}
}

func toFeatures(value any) ([]string, error) {
	var raw []string
	switch v := value.(type) {
	case nil:
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: feature %T", ErrInvalidValue, item)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidValue, value)
	}
	features := make([]string, 0, len(raw))
	for _, f := range raw {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	return features, nil
}
