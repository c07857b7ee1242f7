package models

// DocumentType names a required vehicle document slot.
type DocumentType string

const (
	DocumentInsurance    DocumentType = "insurance"
	DocumentRegistration DocumentType = "registration"
	DocumentEmissionTest DocumentType = "emissionTest"
)

// DocumentTypes is the fixed order documents are validated and uploaded in.
var DocumentTypes = []DocumentType{DocumentInsurance, DocumentRegistration, DocumentEmissionTest}

// IsValidDocumentType checks if a document type is one of the required slots
func IsValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentInsurance, DocumentRegistration, DocumentEmissionTest:
		return true
	default:
		return false
	}
}

// Label is the human name used in messages.
func (t DocumentType) Label() string {
	switch t {
	case DocumentInsurance:
		return "Insurance document"
	case DocumentRegistration:
		return "Registration document"
	case DocumentEmissionTest:
		return "Emission test certificate"
	default:
		return string(t)
	}
}

// PhotoSide names an optional vehicle photo slot.
type PhotoSide string

const (
	PhotoFront PhotoSide = "front"
	PhotoBack  PhotoSide = "back"
)

// PhotoSides is the order photos are uploaded in.
var PhotoSides = []PhotoSide{PhotoFront, PhotoBack}

// IsValidPhotoSide checks if a photo side is known
func IsValidPhotoSide(s PhotoSide) bool {
	return s == PhotoFront || s == PhotoBack
}

// StagedFile is a file held locally until the vehicle exists on the backend.
type StagedFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Data        []byte `json:"data"`
}
