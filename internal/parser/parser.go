package parser

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"provkit/pkg/profile"
)

var validate *validator.Validate

var (
	schemaVersionRe = regexp.MustCompile(`^\d+(\.\d+)*$`)
	localeRe        = regexp.MustCompile(`^[a-z]{2}([_-][A-Z]{2})?$`)
	// A UTC offset like +01:00, or a region name like Europe/Oslo.
	timezoneRe = regexp.MustCompile(`^[+-]\d{2}:\d{2}$|^[A-Za-z]+(/[A-Za-z_]+)*$`)
)

func init() {
	validate = validator.New()
	mustRegister("schema_version", schemaVersionRe)
	mustRegister("locale_code", localeRe)
	mustRegister("timezone_spec", timezoneRe)
}

func mustRegister(tag string, re *regexp.Regexp) {
	err := validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

// Parse reads and validates a provisioning profile YAML file, returning the
// parsed Profile struct or an error.
func Parse(filePath string) (*profile.Profile, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("profile file not found: %s", filePath)
	}

	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("profile file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var p profile.Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("failed to parse profile file - malformed YAML: %w", err)
	}

	if err := Validate(&p); err != nil {
		return nil, err
	}

	return &p, nil
}

// Validate checks a Profile against the schema rules, including the paired
// non-managed-storage directories. The sequencer calls this again before any
// step runs so programmatically constructed profiles get the same checks.
func Validate(p *profile.Profile) error {
	if err := validate.Struct(p); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "required_with":
		return fmt.Sprintf("field '%s' must be set together with '%s'", field, e.Param())
	case "eq":
		return fmt.Sprintf("field '%s' must be '%s'", field, e.Param())
	case "schema_version":
		return fmt.Sprintf("field '%s' must be a dotted version number, e.g. 14.2.1", field)
	case "locale_code":
		return fmt.Sprintf("field '%s' must be a locale code, e.g. nb_NO", field)
	case "timezone_spec":
		return fmt.Sprintf("field '%s' must be a UTC offset like +01:00 or a region name", field)
	case "min":
		return fmt.Sprintf("field '%s' must have at least %s entries", field, e.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, tag)
	}
}
