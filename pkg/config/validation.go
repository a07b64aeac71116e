package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate the share is a UNC name with both server and share parts
	if err := validateShareName(cfg.Mount.Share); err != nil {
		return err
	}

	// Administratively disabling DFS only makes sense on a DFS share
	if cfg.Mount.NoDFS && !cfg.Mount.DFS {
		return fmt.Errorf("mount: no_dfs is set but dfs is false, nothing to disable")
	}

	return nil
}

// validateShareName checks the UNC form \\server\share.
func validateShareName(share string) error {
	if !strings.HasPrefix(share, `\\`) {
		return fmt.Errorf(`mount.share: %q must be a UNC name starting with \\`, share)
	}
	parts := strings.Split(strings.TrimPrefix(share, `\\`), `\`)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf(`mount.share: %q must name both a server and a share (\\server\share)`, share)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
