package upload

import (
	"fmt"
	"path/filepath"
	"strings"
)

// allowedExtensions maps each media type in signatureTable's coverage to
// the set of filename extensions (without the leading dot) that a
// declared file of that type may carry. Built to follow the signature
// table in validator.go.
var allowedExtensions = map[string]map[string]bool{
	"image/jpeg":      set("jpg", "jpeg", "jpe"),
	"image/png":       set("png"),
	"image/gif":       set("gif"),
	"image/webp":      set("webp"),
	"video/mp4":       set("mp4", "m4v"),
	"video/quicktime": set("mov", "qt"),
	"video/x-msvideo": set("avi"),
	"video/mpeg":      set("mpg", "mpeg"),
}

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// MetadataValidator enforces Initiate-time metadata checks: size bounds,
// media-type allow-listing, and extension/type consistency.
type MetadataValidator struct {
	MaxFileSize  int64
	AllowedTypes map[string]bool
}

// NewMetadataValidator builds a validator from the configured allow-list.
func NewMetadataValidator(maxFileSize int64, allowedTypes []string) *MetadataValidator {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = true
	}
	return &MetadataValidator{MaxFileSize: maxFileSize, AllowedTypes: allowed}
}

// Validate returns a list of human-readable validation errors; an empty
// slice means the metadata is acceptable.
func (v *MetadataValidator) Validate(filename, mediaType string, size int64) []string {
	var errs []string

	if size <= 0 {
		errs = append(errs, "fileSize must be greater than zero")
	} else if size > v.MaxFileSize {
		errs = append(errs, fmt.Sprintf("fileSize %d exceeds maximum of %d bytes", size, v.MaxFileSize))
	}

	if !v.AllowedTypes[mediaType] {
		errs = append(errs, fmt.Sprintf("mediaType %q is not in the allowed list", mediaType))
		return errs
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	allowedExts, known := allowedExtensions[mediaType]
	if !known {
		errs = append(errs, fmt.Sprintf("mediaType %q has no configured extension mapping", mediaType))
		return errs
	}
	if ext == "" || !allowedExts[ext] {
		errs = append(errs, fmt.Sprintf("extension %q is not valid for mediaType %q", ext, mediaType))
	}

	return errs
}
