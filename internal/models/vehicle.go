package models

// DefaultCurrency is used for new drafts until the owner picks another one.
const DefaultCurrency = "USD"

// Fuel types accepted by the marketplace.
const (
	FuelPetrol   = "petrol"
	FuelDiesel   = "diesel"
	FuelHybrid   = "hybrid"
	FuelElectric = "electric"
	FuelLPG      = "lpg"
)

// Transmission types accepted by the marketplace.
const (
	TransmissionManual    = "manual"
	TransmissionAutomatic = "automatic"
)

var (
	// FuelTypes lists the accepted fuelType values.
	FuelTypes = []string{FuelPetrol, FuelDiesel, FuelHybrid, FuelElectric, FuelLPG}
	// Transmissions lists the accepted transmission values.
	Transmissions = []string{TransmissionManual, TransmissionAutomatic}
	// SeatingCapacities lists the seat counts offered by the listing form.
	SeatingCapacities = []int{2, 4, 5, 7, 8, 9, 12, 15}
	// VehicleTypes lists the categories offered by the listing form.
	VehicleTypes = []string{"car", "suv", "van", "pickup", "motorcycle", "bus", "truck"}
)

// Insurance holds the policy details entered on the documentation step.
type Insurance struct {
	Provider     string `json:"provider"`
	PolicyNumber string `json:"policyNumber"`
	ExpiryDate   string `json:"expiryDate"`
	Coverage     string `json:"coverage"`
}

// Registration holds the registration details entered on the documentation step.
type Registration struct {
	RegistrationNumber string `json:"registrationNumber"`
	ExpiryDate         string `json:"expiryDate"`
}

// Pricing holds the rates exactly as typed. Amounts are parsed on submission.
type Pricing struct {
	DailyRate       string `json:"dailyRate"`
	WeeklyRate      string `json:"weeklyRate"`
	MonthlyRate     string `json:"monthlyRate"`
	SecurityDeposit string `json:"securityDeposit"`
	Currency        string `json:"currency"`
}

// VehicleDraft is the in-progress listing composed by the wizard.
// Numeric inputs are kept as the raw text the owner typed so that bad input
// reaches the validator instead of being silently dropped.
type VehicleDraft struct {
	VehicleType     string       `json:"vehicleType"`
	Make            string       `json:"make"`
	Model           string       `json:"model"`
	Year            string       `json:"year"`
	Color           string       `json:"color"`
	LicensePlate    string       `json:"licensePlate"`
	SeatingCapacity string       `json:"seatingCapacity"`
	FuelType        string       `json:"fuelType"`
	Transmission    string       `json:"transmission"`
	Mileage         string       `json:"mileage"`
	EngineCapacity  string       `json:"engineCapacity"`
	Features        []string     `json:"features"`
	Description     string       `json:"description"`
	Location        Location     `json:"location"`
	Insurance       Insurance    `json:"insurance"`
	Registration    Registration `json:"registration"`
	Pricing         Pricing      `json:"pricing"`
}

// NewVehicleDraft returns the empty draft every wizard session starts from.
func NewVehicleDraft() VehicleDraft {
	return VehicleDraft{
		Features: []string{},
		Pricing:  Pricing{Currency: DefaultCurrency},
	}
}

// Clone returns a deep copy of the draft.
func (d VehicleDraft) Clone() VehicleDraft {
	out := d
	out.Features = append([]string{}, d.Features...)
	return out
}

// RentalPrice is the pricing block in the shape the backend expects.
type RentalPrice struct {
	DailyRate       float64  `json:"dailyRate"`
	WeeklyRate      *float64 `json:"weeklyRate,omitempty"`
	MonthlyRate     *float64 `json:"monthlyRate,omitempty"`
	SecurityDeposit float64  `json:"securityDeposit"`
	Currency        string   `json:"currency"`
}

// VehicleSubmission is the body of the backend vehicle creation call.
type VehicleSubmission struct {
	VehicleType     string       `json:"vehicleType"`
	Make            string       `json:"make"`
	Model           string       `json:"model"`
	Year            int          `json:"year"`
	Color           string       `json:"color"`
	LicensePlate    string       `json:"licensePlate"`
	SeatingCapacity int          `json:"seatingCapacity"`
	FuelType        string       `json:"fuelType"`
	Transmission    string       `json:"transmission"`
	Mileage         *int         `json:"mileage,omitempty"`
	EngineCapacity  *float64     `json:"engineCapacity,omitempty"`
	Features        []string     `json:"features"`
	Description     string       `json:"description"`
	Location        Location     `json:"location"`
	Insurance       Insurance    `json:"insurance"`
	Registration    Registration `json:"registration"`
	RentalPrice     RentalPrice  `json:"rentalPrice"`
}

// Vehicle is the backend's view of a created vehicle.
type Vehicle struct {
	ID           string `json:"_id"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	LicensePlate string `json:"licensePlate,omitempty"`
	Status       string `json:"status,omitempty"`
}
