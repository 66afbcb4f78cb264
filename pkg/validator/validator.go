package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator and registers custom tags for
// filenames, URLs, free text and string lengths. The request DTOs in
// internal/api use only the built-in required/oneof tags.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the custom tags registered.
func New() *Validator {
	v := validator.New()

	if err := v.RegisterValidation("safe_filename", validateSafeFilename); err != nil {
		panic("failed to register safe_filename validation: " + err.Error())
	}
	if err := v.RegisterValidation("safe_url", validateSafeURL); err != nil {
		panic("failed to register safe_url validation: " + err.Error())
	}
	if err := v.RegisterValidation("no_special_chars", validateNoSpecialChars); err != nil {
		panic("failed to register no_special_chars validation: " + err.Error())
	}
	if err := v.RegisterValidation("max_length", validateMaxLength); err != nil {
		panic("failed to register max_length validation: " + err.Error())
	}
	if err := v.RegisterValidation("min_length", validateMinLength); err != nil {
		panic("failed to register min_length validation: " + err.Error())
	}

	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func (v *Validator) ValidateStruct(i interface{}) error {
	return v.Validate(i)
}

// validateSafeFilename rejects path separators, reserved Windows device
// names, and executable extensions on an uploaded file's name.
func validateSafeFilename(fl validator.FieldLevel) bool {
	filename := fl.Field().String()

	invalidChars := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range invalidChars {
		if strings.Contains(filename, char) {
			return false
		}
	}

	systemFiles := []string{"con", "prn", "aux", "nul", "com1", "com2", "com3", "com4", "com5", "com6", "com7", "com8", "com9", "lpt1", "lpt2", "lpt3", "lpt4", "lpt5", "lpt6", "lpt7", "lpt8", "lpt9"}
	nameWithoutExt := filename
	if strings.Contains(filename, ".") {
		parts := strings.Split(filename, ".")
		nameWithoutExt = parts[0]
	}
	for _, sysFile := range systemFiles {
		if strings.ToLower(nameWithoutExt) == sysFile {
			return false
		}
	}

	if strings.Contains(filename, ".") {
		parts := strings.Split(filename, ".")
		ext := strings.ToLower(parts[len(parts)-1])
		dangerousExts := []string{"exe", "bat", "cmd", "com", "pif", "scr", "vbs", "js", "jar", "msi"}
		for _, dangerousExt := range dangerousExts {
			if ext == dangerousExt {
				return false
			}
		}
	}

	return true
}

// validateSafeURL accepts only http/https URLs free of script content. No
// request DTO carries this tag, so a job's source_value is not checked by it.
func validateSafeURL(fl validator.FieldLevel) bool {
	url := fl.Field().String()

	allowedProtocols := []string{"http://", "https://"}
	hasValidProtocol := false
	for _, protocol := range allowedProtocols {
		if strings.HasPrefix(strings.ToLower(url), protocol) {
			hasValidProtocol = true
			break
		}
	}
	if !hasValidProtocol {
		return false
	}

	dangerousChars := []string{"<", ">", "\"", "'", "javascript:", "vbscript:"}
	for _, char := range dangerousChars {
		if strings.Contains(strings.ToLower(url), char) {
			return false
		}
	}

	return true
}

func validateNoSpecialChars(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	dangerousChars := []rune{'<', '>', '"', '\'', '&', ';', '|', '`', '$', '(', ')', '{', '}', '[', ']'}
	for _, char := range value {
		for _, dangerous := range dangerousChars {
			if char == dangerous {
				return false
			}
		}
	}
	return true
}

func validateMaxLength(fl validator.FieldLevel) bool {
	var max int
	if _, err := fmt.Sscanf(fl.Param(), "%d", &max); err != nil {
		return false
	}
	return len(fl.Field().String()) <= max
}

func validateMinLength(fl validator.FieldLevel) bool {
	var min int
	if _, err := fmt.Sscanf(fl.Param(), "%d", &min); err != nil {
		return false
	}
	return len(fl.Field().String()) >= min
}

// ValidationError describes one failed field, returned in the API's error
// envelope `details`.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (v *Validator) GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError
	if validationErr, ok := err.(validator.ValidationErrors); ok {
		for _, fieldErr := range validationErr {
			validationErrors = append(validationErrors, ValidationError{
				Field:   fieldErr.Field(),
				Tag:     fieldErr.Tag(),
				Value:   fmt.Sprintf("%v", fieldErr.Value()),
				Message: getErrorMessage(fieldErr),
			})
		}
	}
	return validationErrors
}

func getErrorMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldErr.Field())
	case "safe_filename":
		return "filename contains disallowed characters or extension"
	case "safe_url":
		return "url must use http or https and contain no script content"
	case "max_length":
		return fmt.Sprintf("%s must not exceed %s characters", fieldErr.Field(), fieldErr.Param())
	case "min_length":
		return fmt.Sprintf("%s must be at least %s characters", fieldErr.Field(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s is invalid", fieldErr.Field())
	}
}
