// Package staging keeps vehicle documents and photos selected in the wizard
// until the vehicle exists on the backend and they can be uploaded.
package staging

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/pickandgo/onboarding/internal/models"
)

// MaxFileSize is the upload ceiling for documents and photos.
const MaxFileSize = 10 << 20

var (
	ErrUnknownDocumentType = errors.New("unknown document type")
	ErrUnknownPhotoSide    = errors.New("unknown photo side")
)

// Upload is a file as received from the client.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Entry is one staging slot.
type Entry struct {
	File    *models.StagedFile `json:"file,omitempty"`
	Preview string             `json:"preview,omitempty"`
	Errors  []string           `json:"errors,omitempty"`
}

// HasFile reports whether the slot holds an accepted file.
func (e *Entry) HasFile() bool {
	return e != nil && e.File != nil
}

// Area holds every staging slot of one wizard session.
type Area struct {
	Documents map[models.DocumentType]*Entry `json:"documents"`
	Photos    map[models.PhotoSide]*Entry    `json:"photos"`
}

// NewArea returns an area with every slot present and empty.
func NewArea() Area {
	a := Area{}
	a.ensure()
	return a
}

func (a *Area) ensure() {
	if a.Documents == nil {
		a.Documents = make(map[models.DocumentType]*Entry, len(models.DocumentTypes))
	}
	for _, t := range models.DocumentTypes {
		if a.Documents[t] == nil {
			a.Documents[t] = &Entry{}
		}
	}
	if a.Photos == nil {
		a.Photos = make(map[models.PhotoSide]*Entry, len(models.PhotoSides))
	}
	for _, s := range models.PhotoSides {
		if a.Photos[s] == nil {
			a.Photos[s] = &Entry{}
		}
	}
}

// StageDocument validates u and stores it in the slot for t. Validation
// problems are returned as messages and kept on the slot; the error return is
// only set for an unknown document type. Other slots are never touched.
func (a *Area) StageDocument(t models.DocumentType, u Upload) (string, []string, error) {
	if !models.IsValidDocumentType(t) {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownDocumentType, t)
	}
	a.ensure()
	entry := stage(u, documentTypes)
	a.Documents[t] = entry
	return entry.Preview, entry.Errors, nil
}

// RemoveDocument clears the slot for t, errors included.
func (a *Area) RemoveDocument(t models.DocumentType) error {
	if !models.IsValidDocumentType(t) {
		return fmt.Errorf("%w: %s", ErrUnknownDocumentType, t)
	}
	a.ensure()
	a.Documents[t] = &Entry{}
	return nil
}

// StagePhoto validates u and stores it in the slot for side.
func (a *Area) StagePhoto(side models.PhotoSide, u Upload) (string, []string, error) {
	if !models.IsValidPhotoSide(side) {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownPhotoSide, side)
	}
	a.ensure()
	entry := stage(u, photoTypes)
	a.Photos[side] = entry
	return entry.Preview, entry.Errors, nil
}

// RemovePhoto clears the slot for side.
func (a *Area) RemovePhoto(side models.PhotoSide) error {
	if !models.IsValidPhotoSide(side) {
		return fmt.Errorf("%w: %s", ErrUnknownPhotoSide, side)
	}
	a.ensure()
	a.Photos[side] = &Entry{}
	return nil
}

// HasDocument reports whether the slot for t holds a file.
func (a *Area) HasDocument(t models.DocumentType) bool {
	if a == nil || a.Documents == nil {
		return false
	}
	return a.Documents[t].HasFile()
}

// MissingDocuments lists the required documents without a file, in upload order.
func (a *Area) MissingDocuments() []models.DocumentType {
	var missing []models.DocumentType
	for _, t := range models.DocumentTypes {
		if !a.HasDocument(t) {
			missing = append(missing, t)
		}
	}
	return missing
}

// Document returns the staged file for t, or nil.
func (a *Area) Document(t models.DocumentType) *models.StagedFile {
	if !a.HasDocument(t) {
		return nil
	}
	return a.Documents[t].File
}

// Photo returns the staged file for side, or nil.
func (a *Area) Photo(side models.PhotoSide) *models.StagedFile {
	if a == nil || a.Photos == nil || !a.Photos[side].HasFile() {
		return nil
	}
	return a.Photos[side].File
}

// HasPhotos reports whether any photo is staged.
func (a *Area) HasPhotos() bool {
	for _, s := range models.PhotoSides {
		if a.Photo(s) != nil {
			return true
		}
	}
	return false
}

// Reset empties every slot.
func (a *Area) Reset() {
	*a = NewArea()
}

func stage(u Upload, allowed allowList) *Entry {
	errs := check(u, allowed)
	if len(errs) > 0 {
		return &Entry{Errors: errs}
	}
	mediaType, _ := normalizeMediaType(u.ContentType)
	if mediaType == "" {
		mediaType = sniff(u.Data)
	}
	data := append([]byte(nil), u.Data...)
	entry := &Entry{
		File: &models.StagedFile{
			Name:        u.Name,
			ContentType: mediaType,
			Size:        int64(len(data)),
			Data:        data,
		},
	}
	if isImage(mediaType) {
		entry.Preview = "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
	}
	return entry
}

func check(u Upload, allowed allowList) []string {
	var errs []string
	switch {
	case len(u.Data) == 0:
		return []string{"File is empty"}
	case len(u.Data) > MaxFileSize:
		errs = append(errs, "File size must be less than 10MB")
	}

	sniffed := sniff(u.Data)
	declared, err := normalizeMediaType(u.ContentType)
	if err != nil {
		return append(errs, "File type could not be read")
	}
	if declared == "" {
		declared = sniffed
	}
	if !allowed.allows(declared) {
		return append(errs, fmt.Sprintf("Invalid file type %s. Only %s files are allowed", declared, allowed.description))
	}
	if sniffed != declared {
		errs = append(errs, fmt.Sprintf("File content does not match its type %s", declared))
	}
	return errs
}
