package staging

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
	mimeWebP = "image/webp"
	mimePDF  = "application/pdf"
)

type allowList struct {
	types       []string
	description string
}

var (
	documentTypes = allowList{
		types:       []string{mimeJPEG, mimePNG, mimePDF},
		description: humanReadableList([]string{"JPEG", "PNG", "PDF"}),
	}
	photoTypes = allowList{
		types:       []string{mimeJPEG, mimePNG, mimeWebP},
		description: humanReadableList([]string{"JPEG", "PNG", "WebP"}),
	}
)

func (l allowList) allows(mediaType string) bool {
	for _, t := range l.types {
		if t == mediaType {
			return true
		}
	}
	return false
}

// aliases browsers still send for the canonical types
var mimeAliases = map[string]string{
	"image/jpg":   mimeJPEG,
	"image/pjpeg": mimeJPEG,
	"image/x-png": mimePNG,
}

func normalizeMediaType(value string) (string, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return "", nil
	}
	mediaType, _, err := mime.ParseMediaType(clean)
	if err != nil {
		return "", fmt.Errorf("mime type invalid: %w", err)
	}
	mediaType = strings.ToLower(mediaType)
	if canonical, ok := mimeAliases[mediaType]; ok {
		return canonical, nil
	}
	return mediaType, nil
}

// sniff reports the media type of data based on its content.
func sniff(data []byte) string {
	detected := mimetype.Detect(data)
	mediaType, err := normalizeMediaType(detected.String())
	if err != nil || mediaType == "" {
		return "application/octet-stream"
	}
	return mediaType
}

func isImage(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

func humanReadableList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return fmt.Sprintf("%s or %s", items[0], items[1])
	default:
		return fmt.Sprintf("%s, or %s", strings.Join(items[:len(items)-1], ", "), items[len(items)-1])
	}
}
