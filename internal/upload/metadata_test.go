package upload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMetadataValidator() *MetadataValidator {
	return NewMetadataValidator(1000, []string{"image/jpeg", "video/mp4"})
}

func TestMetadataValidator_Accepts(t *testing.T) {
	v := newTestMetadataValidator()
	errs := v.Validate("photo.jpg", "image/jpeg", 500)
	require.Empty(t, errs)
}

func TestMetadataValidator_RejectsZeroSize(t *testing.T) {
	v := newTestMetadataValidator()
	errs := v.Validate("photo.jpg", "image/jpeg", 0)
	require.NotEmpty(t, errs)
}

func TestMetadataValidator_RejectsOversize(t *testing.T) {
	v := newTestMetadataValidator()
	errs := v.Validate("photo.jpg", "image/jpeg", 1001)
	require.NotEmpty(t, errs)
}

func TestMetadataValidator_RejectsDisallowedType(t *testing.T) {
	v := newTestMetadataValidator()
	errs := v.Validate("photo.bmp", "image/bmp", 500)
	require.NotEmpty(t, errs)
}

func TestMetadataValidator_RejectsExtensionTypeMismatch(t *testing.T) {
	v := newTestMetadataValidator()
	errs := v.Validate("clip.mp4", "image/jpeg", 500)
	require.NotEmpty(t, errs)
}
