package models

import "time"

// AgreementKind selects which agreement template is shown.
type AgreementKind string

const (
	AgreementBusiness     AgreementKind = "business"
	AgreementClientRental AgreementKind = "client-rental"
)

// IsValidAgreementKind checks if an agreement kind is known
func IsValidAgreementKind(k AgreementKind) bool {
	return k == AgreementBusiness || k == AgreementClientRental
}

// AgreementSection is one titled block of agreement text.
type AgreementSection struct {
	SectionTitle string `json:"sectionTitle" yaml:"sectionTitle"`
	Content      string `json:"content" yaml:"content"`
}

// AgreementSnapshot is a read-only copy of an agreement template.
type AgreementSnapshot struct {
	Title        string             `json:"title" yaml:"title"`
	Version      string             `json:"version" yaml:"version"`
	LastModified time.Time          `json:"lastModified" yaml:"lastModified"`
	Terms        []AgreementSection `json:"terms" yaml:"terms"`
}
