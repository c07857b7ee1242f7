package validation

import (
	"strconv"
	"testing"
	"time"

	"github.com/pickandgo/onboarding/internal/models"
	"github.com/pickandgo/onboarding/internal/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdf = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

func validDraft() models.VehicleDraft {
	d := models.NewVehicleDraft()
	d.VehicleType = "car"
	d.Make = "Toyota"
	d.Model = "Prius"
	d.Year = "2019"
	d.Color = "Silver"
	d.LicensePlate = "CAR-4521"
	d.SeatingCapacity = "5"
	d.FuelType = models.FuelHybrid
	d.Transmission = models.TransmissionAutomatic
	d.Mileage = "48000"
	d.EngineCapacity = "1.8"
	d.Location = models.Location{Address: "42 Lake Drive", City: "Kandy"}
	d.Pricing = models.Pricing{DailyRate: "45", SecurityDeposit: "150", Currency: "USD"}
	d.Insurance = models.Insurance{Provider: "Allianz", PolicyNumber: "POL-77", ExpiryDate: "2027-03-01"}
	d.Registration = models.Registration{RegistrationNumber: "REG-99", ExpiryDate: "2027-06-30"}
	return d
}

func stagedDocuments(t *testing.T) *staging.Area {
	t.Helper()
	a := staging.NewArea()
	for _, dt := range models.DocumentTypes {
		_, errs, err := a.StageDocument(dt, staging.Upload{Name: string(dt) + ".pdf", ContentType: "application/pdf", Data: pdf})
		require.NoError(t, err)
		require.Empty(t, errs)
	}
	return &a
}

func TestValidateStep_ValidDraftPassesEveryStep(t *testing.T) {
	d := validDraft()
	docs := stagedDocuments(t)
	for step := StepBasicInfo; step <= StepCount; step++ {
		assert.Empty(t, ValidateStep(step, d, docs), "step %d", step)
	}
}

func TestValidateStep_Idempotent(t *testing.T) {
	empty := models.NewVehicleDraft()
	for step := StepBasicInfo; step <= StepCount; step++ {
		first := ValidateStep(step, empty, nil)
		second := ValidateStep(step, empty, nil)
		assert.Equal(t, first, second, "step %d", step)
	}
}

func TestValidateStep_DoesNotMutate(t *testing.T) {
	d := validDraft()
	d.Year = " 2019 "
	before := d.Clone()
	docs := stagedDocuments(t)

	for step := StepBasicInfo; step <= StepCount; step++ {
		ValidateStep(step, d, docs)
	}
	assert.Equal(t, before, d)
	assert.Empty(t, docs.MissingDocuments())
}

func TestValidateStep_Year(t *testing.T) {
	maxYear := time.Now().Year() + 1
	tests := []struct {
		year    string
		wantErr bool
	}{
		{"", true},
		{"abcd", true},
		{"20x1", true},
		{"1899", true},
		{strconv.Itoa(maxYear + 1), true},
		{"-2000", true},
		{"1900", false},
		{"2015", false},
		{strconv.Itoa(maxYear), false},
	}
	for _, tt := range tests {
		t.Run("year "+tt.year, func(t *testing.T) {
			d := validDraft()
			d.Year = tt.year
			errs := ValidateStep(StepBasicInfo, d, nil)
			_, has := errs["year"]
			assert.Equal(t, tt.wantErr, has, "errors: %v", errs)
		})
	}
}

func TestValidateStep_YearMessages(t *testing.T) {
	d := validDraft()
	d.Year = "soon"
	assert.Equal(t, "Year must be a valid number", ValidateStep(StepBasicInfo, d, nil)["year"])

	d.Year = "1800"
	assert.Contains(t, ValidateStep(StepBasicInfo, d, nil)["year"], "between 1900 and")
}

func TestValidateStep_BasicInfoRequired(t *testing.T) {
	errs := ValidateStep(StepBasicInfo, models.NewVehicleDraft(), nil)
	for _, field := range []string{"vehicleType", "make", "model", "year", "color", "licensePlate"} {
		assert.Contains(t, errs, field)
	}

	d := validDraft()
	d.Make = "   "
	assert.Equal(t, "Make is required", ValidateStep(StepBasicInfo, d, nil)["make"])
}

func TestValidateStep_Specifications(t *testing.T) {
	d := validDraft()
	d.SeatingCapacity = "6"
	d.FuelType = "coal"
	d.Transmission = ""
	d.Mileage = "-3"
	d.EngineCapacity = "-1.5"

	errs := ValidateStep(StepSpecifications, d, nil)
	assert.Contains(t, errs["seatingCapacity"], "must be one of")
	assert.Contains(t, errs["fuelType"], "must be one of")
	assert.Equal(t, "Transmission is required", errs["transmission"])
	assert.Contains(t, errs, "mileage")
	assert.Contains(t, errs, "engineCapacity")

	d = validDraft()
	d.Mileage = ""
	d.EngineCapacity = ""
	assert.Empty(t, ValidateStep(StepSpecifications, d, nil))

	d.Mileage = "0"
	d.EngineCapacity = "0"
	assert.Empty(t, ValidateStep(StepSpecifications, d, nil))
}

func TestValidateStep_Location(t *testing.T) {
	d := validDraft()
	d.Location = models.Location{}
	errs := ValidateStep(StepLocation, d, nil)
	assert.Equal(t, ErrorMap{
		"location.address": "Address is required",
		"location.city":    "City is required",
	}, errs)
}

func TestValidateStep_DailyRate(t *testing.T) {
	tests := []struct {
		rate    string
		wantErr bool
	}{
		{"", true},
		{"0", true},
		{"0.00", true},
		{"-10", true},
		{"ten", true},
		{"0.004", true},
		{"0.001", true},
		{"0.005", false},
		{"0.01", false},
		{"45", false},
		{"1250.75", false},
	}
	for _, tt := range tests {
		t.Run("rate "+tt.rate, func(t *testing.T) {
			d := validDraft()
			d.Pricing.DailyRate = tt.rate
			_, has := ValidateStep(StepPricing, d, nil)["pricing.dailyRate"]
			assert.Equal(t, tt.wantErr, has)
		})
	}
}

func TestValidateStep_PricingDepositAndOptionalRates(t *testing.T) {
	d := validDraft()
	d.Pricing.SecurityDeposit = "0"
	d.Pricing.WeeklyRate = "-1"
	d.Pricing.MonthlyRate = ""

	errs := ValidateStep(StepPricing, d, nil)
	assert.Equal(t, "Security deposit must be a number greater than 0", errs["pricing.securityDeposit"])
	assert.Contains(t, errs, "pricing.weeklyRate")
	assert.NotContains(t, errs, "pricing.monthlyRate")
}

func TestValidateStep_SubCentDepositRejected(t *testing.T) {
	d := validDraft()
	d.Pricing.SecurityDeposit = "0.001"

	errs := ValidateStep(StepPricing, d, nil)
	assert.Equal(t, "Security deposit must be a number greater than 0", errs["pricing.securityDeposit"])
}

func TestValidateStep_DocumentsRequireAllThreeFiles(t *testing.T) {
	d := validDraft()
	docs := stagedDocuments(t)
	require.Empty(t, ValidateStep(StepDocuments, d, docs))

	for _, dt := range models.DocumentTypes {
		t.Run(string(dt), func(t *testing.T) {
			docs := stagedDocuments(t)
			require.NoError(t, docs.RemoveDocument(dt))

			errs := ValidateStep(StepDocuments, d, docs)
			assert.Equal(t, ErrorMap{"documents." + string(dt): dt.Label() + " is required"}, errs)
		})
	}
}

func TestValidateStep_DocumentsWithNilStaging(t *testing.T) {
	errs := ValidateStep(StepDocuments, models.NewVehicleDraft(), nil)
	for _, field := range []string{
		"insurance.provider", "insurance.policyNumber", "insurance.expiryDate",
		"registration.registrationNumber", "registration.expiryDate",
		"documents.insurance", "documents.registration", "documents.emissionTest",
	} {
		assert.Contains(t, errs, field)
	}
}

func TestValidateStep_ExpiryDateFormat(t *testing.T) {
	d := validDraft()
	d.Insurance.ExpiryDate = "03/01/2027"
	errs := ValidateStep(StepDocuments, d, stagedDocuments(t))
	assert.Equal(t, "Insurance expiry date must be a date (YYYY-MM-DD)", errs["insurance.expiryDate"])
}

func TestValidateStep_PhotosNeverBlock(t *testing.T) {
	assert.Empty(t, ValidateStep(StepPhotos, models.NewVehicleDraft(), nil))
}

func TestValidateStep_UnknownStep(t *testing.T) {
	assert.Contains(t, ValidateStep(0, validDraft(), nil), "step")
	assert.Contains(t, ValidateStep(7, validDraft(), nil), "step")
}

func TestValidateStep_UsesCurrentYear(t *testing.T) {
	restore := now
	defer func() { now = restore }()
	now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

	d := validDraft()
	d.Year = "2031"
	assert.Empty(t, ValidateStep(StepBasicInfo, d, nil))
	d.Year = "2032"
	assert.Equal(t, "Year must be between 1900 and 2031", ValidateStep(StepBasicInfo, d, nil)["year"])
}
