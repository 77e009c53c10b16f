package storage

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/domain"
)

// PhotoPolicy holds the upload limits applied before photos reach the store.
type PhotoPolicy struct {
	MaxCount     int      `json:"maxCount"`
	MaxBytes     int64    `json:"maxBytes"`
	AllowedTypes []string `json:"allowedTypes"`
}

// DefaultPhotoPolicy is 10 photos of at most 2MB, JPG or PNG.
func DefaultPhotoPolicy() PhotoPolicy {
	return PhotoPolicy{MaxCount: 10, MaxBytes: 2 << 20, AllowedTypes: []string{"image/jpeg", "image/png"}}
}

// Hint is the guidance text shown under the upload field.
func (p PhotoPolicy) Hint() string {
	formats := make([]string, 0, len(p.AllowedTypes))
	for _, t := range p.AllowedTypes {
		formats = append(formats, formatLabel(t))
	}
	return fmt.Sprintf("Maksimal %d foto, format %s, maksimal %s per file", p.MaxCount, strings.Join(formats, "/"), sizeLabel(p.MaxBytes))
}

// CheckCount rejects a batch that would push a report past MaxCount photos.
func (p PhotoPolicy) CheckCount(current, adding int) error {
	if current+adding > p.MaxCount {
		return &domain.ValidationError{Fields: map[string]string{
			"photos": fmt.Sprintf("Maksimal %d foto", p.MaxCount),
		}}
	}
	return nil
}

// Admit checks one file's size and sniffed content type and returns the type.
func (p PhotoPolicy) Admit(name string, data []byte) (string, error) {
	if int64(len(data)) > p.MaxBytes {
		return "", &domain.ValidationError{Fields: map[string]string{
			"photos": fmt.Sprintf("%s: ukuran file maksimal %s", name, sizeLabel(p.MaxBytes)),
		}}
	}

	detected := mimetype.Detect(data)
	for _, allowed := range p.AllowedTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}

	formats := make([]string, 0, len(p.AllowedTypes))
	for _, t := range p.AllowedTypes {
		formats = append(formats, formatLabel(t))
	}
	return "", &domain.ValidationError{Fields: map[string]string{
		"photos": fmt.Sprintf("%s: format file harus %s", name, strings.Join(formats, "/")),
	}}
}

func formatLabel(contentType string) string {
	if contentType == "image/jpeg" {
		return "JPG"
	}
	if m := mimetype.Lookup(contentType); m != nil {
		return strings.ToUpper(strings.TrimPrefix(m.Extension(), "."))
	}
	return contentType
}

func sizeLabel(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	if n >= 1<<10 && n%(1<<10) == 0 {
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d byte", n)
}
