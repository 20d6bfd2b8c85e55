package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	for tag, fn := range map[string]validator.Func{
		"env":         validateEnvironment,
		"file_exists": validateFileExists,
		"host":        validateHost,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("config: register %s validator: %v", tag, err))
		}
	}
	v.RegisterStructValidation(validateInventory, InventoryConfig{})
	v.RegisterStructValidation(validateStorage, StorageConfig{})
	v.RegisterStructValidation(validateGRPCTLS, GRPCTLSConfig{})
	return v
}

// ConfigError is one failed rule, keyed by the field's struct path.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors lists every failed rule of one validation pass.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, "configuration validation failed:")
	for _, ce := range e {
		lines = append(lines, "  - "+ce.Error())
	}
	return strings.Join(lines, "\n") + "\n"
}

// ValidateWithDetails validates cfg and reports failures as
// ValidationErrors.
func ValidateWithDetails(cfg *Config) error {
	err := validate.Struct(cfg)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	details := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, ConfigError{
			Field:   fe.Namespace(),
			Message: describe(fe),
			Value:   fe.Value(),
		})
	}
	return details
}

var tagMessages = map[string]string{
	"required":     "this field is required",
	"min":          "must be at least %s",
	"max":          "must be at most %s",
	"oneof":        "must be one of [%s]",
	"gte":          "must be greater than or equal to %s",
	"lte":          "must be less than or equal to %s",
	"file_exists":  "file does not exist",
	"host":         "must be a hostname or IP address",
	"env":          "must be development, staging or production",
	"required_for": "is required when %s",
}

func describe(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return "failed validation: " + fe.Tag()
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

var environments = map[string]bool{"development": true, "staging": true, "production": true}

func validateEnvironment(fl validator.FieldLevel) bool {
	return environments[fl.Field().String()]
}

// validateFileExists accepts an empty path or a regular file.
func validateFileExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// validateHost is loose: hostnames, IPv4, IPv6 and
// host:port all pass, whitespace and punctuation do not.
func validateHost(fl validator.FieldLevel) bool {
	return strings.IndexFunc(fl.Field().String(), func(r rune) bool { return !isValidHostChar(r) }) < 0
}

func isValidHostChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-.:_", r)
}

// requireFor reports value as missing when blank. reason completes "is
// required when ...".
func requireFor(sl validator.StructLevel, value, field, reason string) {
	if strings.TrimSpace(value) == "" {
		name := field[strings.LastIndex(field, ".")+1:]
		sl.ReportError(value, field, name, "required_for", reason)
	}
}

func validateInventory(sl validator.StructLevel) {
	inv := sl.Current().Interface().(InventoryConfig)
	switch inv.Type {
	case "http":
		requireFor(sl, inv.HTTP.BaseURL, "HTTP.BaseURL", "type is http")
	case "catalog":
		requireFor(sl, inv.CatalogPath, "CatalogPath", "type is catalog")
	}
}

func validateStorage(sl validator.StructLevel) {
	st := sl.Current().Interface().(StorageConfig)
	switch st.Type {
	case "badger":
		requireFor(sl, st.Badger.Path, "Badger.Path", "type is badger")
	case "redis":
		requireFor(sl, st.Redis.Address, "Redis.Address", "type is redis")
	}
}

func validateGRPCTLS(sl validator.StructLevel) {
	tls := sl.Current().Interface().(GRPCTLSConfig)
	if !tls.Enabled {
		return
	}
	requireFor(sl, tls.CertFile, "CertFile", "tls is enabled")
	requireFor(sl, tls.KeyFile, "KeyFile", "tls is enabled")
	if tls.ClientAuth {
		requireFor(sl, tls.CAFile, "CAFile", "client auth is on")
	}
}
