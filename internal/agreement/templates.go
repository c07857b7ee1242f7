package agreement

import (
	"fmt"
	"os"
	"time"

	"github.com/pickandgo/onboarding/internal/models"
	"gopkg.in/yaml.v3"
)

// Templates holds the fallback agreement shown when the backend cannot serve one.
type Templates map[models.AgreementKind]models.AgreementSnapshot

// For returns a copy of the template for kind, falling back to the business agreement.
func (t Templates) For(kind models.AgreementKind) models.AgreementSnapshot {
	snap, ok := t[kind]
	if !ok {
		snap = t[models.AgreementBusiness]
	}
	snap.Terms = append([]models.AgreementSection(nil), snap.Terms...)
	return snap
}

// DefaultTemplates returns the compiled-in agreements.
func DefaultTemplates() Templates {
	modified := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	return Templates{
		models.AgreementBusiness: {
			Title:        "Pick & Go Vehicle Owner Business Agreement",
			Version:      "1.0",
			LastModified: modified,
			Terms: []models.AgreementSection{
				{
					SectionTitle: "1. Vehicle Listing",
					Content:      "The owner confirms that the listed vehicle is legally owned or lawfully controlled by them, is roadworthy, and that every detail supplied in the listing is accurate. Pick & Go may review, suspend or remove any listing that does not meet platform standards.",
				},
				{
					SectionTitle: "2. Documentation and Insurance",
					Content:      "The owner must keep valid insurance, registration and emission test certificates for the vehicle at all times and upload current copies. Expired documents lead to the listing being hidden until updated documents are approved.",
				},
				{
					SectionTitle: "3. Pricing and Payments",
					Content:      "The owner sets the daily rate and security deposit and may set weekly and monthly rates. Pick & Go collects rental payments from clients and pays out the owner's share after deducting the platform commission, according to the payout schedule in force.",
				},
				{
					SectionTitle: "4. Availability and Cancellations",
					Content:      "The owner keeps the vehicle calendar up to date. Confirmed bookings cancelled by the owner may incur a cancellation fee and affect the listing's ranking.",
				},
				{
					SectionTitle: "5. Damage and Liability",
					Content:      "Damage during a rental is settled against the client's security deposit and the applicable insurance. The owner remains responsible for routine maintenance and for defects existing before the rental began.",
				},
				{
					SectionTitle: "6. Termination",
					Content:      "Either party may end this agreement with written notice. Bookings already confirmed at the time of notice must be honoured.",
				},
			},
		},
		models.AgreementClientRental: {
			Title:        "Pick & Go Vehicle Rental Agreement",
			Version:      "1.0",
			LastModified: modified,
			Terms: []models.AgreementSection{
				{
					SectionTitle: "1. Rental Period",
					Content:      "The vehicle is rented for the dates shown at checkout. Late returns are charged at the daily rate for each additional day started.",
				},
				{
					SectionTitle: "2. Driver Requirements",
					Content:      "Self-drive rentals require a valid driving licence held for at least one year. When a driver is booked, the driver operates the vehicle for the whole rental.",
				},
				{
					SectionTitle: "3. Payment and Deposit",
					Content:      "The rental total is paid at checkout. The security deposit is held and released after the vehicle is returned in the condition it was received.",
				},
				{
					SectionTitle: "4. Use of the Vehicle",
					Content:      "The vehicle may not be sub-let, used for racing, or driven outside the permitted area. Traffic fines incurred during the rental are the client's responsibility.",
				},
				{
					SectionTitle: "5. Cancellation",
					Content:      "Cancellations made more than 48 hours before pick-up are refunded in full. Later cancellations may be charged one day's rental.",
				},
			},
		},
	}
}

type templateFile struct {
	Business     *models.AgreementSnapshot `yaml:"business"`
	ClientRental *models.AgreementSnapshot `yaml:"client-rental"`
}

// LoadTemplates reads a YAML file overriding the compiled-in templates.
// Kinds missing from the file keep their default.
func LoadTemplates(path string) (Templates, error) {
	templates := DefaultTemplates()
	if path == "" {
		return templates, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agreement templates: %w", err)
	}
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse agreement templates: %w", err)
	}
	if file.Business != nil {
		if err := checkTemplate(file.Business); err != nil {
			return nil, fmt.Errorf("business template: %w", err)
		}
		templates[models.AgreementBusiness] = *file.Business
	}
	if file.ClientRental != nil {
		if err := checkTemplate(file.ClientRental); err != nil {
			return nil, fmt.Errorf("client-rental template: %w", err)
		}
		templates[models.AgreementClientRental] = *file.ClientRental
	}
	return templates, nil
}

func checkTemplate(s *models.AgreementSnapshot) error {
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(s.Terms) == 0 {
		return fmt.Errorf("at least one section is required")
	}
	return nil
}
