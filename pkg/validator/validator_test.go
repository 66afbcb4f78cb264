package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type TestStructFilename struct {
	Filename string `json:"filename" validate:"safe_filename"`
}

type TestStructURL struct {
	URL string `json:"url" validate:"safe_url"`
}

type TestStructContent struct {
	Content string `json:"content" validate:"no_special_chars"`
}

type TestStructDescription struct {
	Description string `json:"description" validate:"max_length=20,min_length=3"`
}

func TestValidator_SafeFilename(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"valid mp3", "track.mp3", false},
		{"valid wav", "my_song.wav", false},
		{"path traversal", "../etc/passwd", true},
		{"windows device name", "con.wav", true},
		{"executable extension", "payload.exe", true},
		{"contains colon", "c:file.wav", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(TestStructFilename{Filename: tt.filename})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_SafeURL(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://open.spotify.com/track/abc123", false},
		{"valid http", "http://example.com/audio.mp3", false},
		{"javascript protocol", "javascript:alert(1)", true},
		{"ftp not allowed", "ftp://example.com/file.wav", true},
		{"embedded script tag", "https://example.com/<script>", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(TestStructURL{URL: tt.url})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_NoSpecialChars(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(TestStructContent{Content: "plain text query"}))
	assert.Error(t, v.Validate(TestStructContent{Content: "drop`rm -rf`"}))
}

func TestValidator_LengthBounds(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(TestStructDescription{Description: "humming search"}))
	assert.Error(t, v.Validate(TestStructDescription{Description: "ok"}))
	assert.Error(t, v.Validate(TestStructDescription{Description: "this description is far too long for the field"}))
}

func TestValidator_GetValidationErrors(t *testing.T) {
	v := New()

	err := v.Validate(TestStructFilename{Filename: "payload.exe"})
	assert.Error(t, err)

	errs := v.GetValidationErrors(err)
	assert.Len(t, errs, 1)
	assert.Equal(t, "Filename", errs[0].Field)
	assert.Equal(t, "safe_filename", errs[0].Tag)
}
