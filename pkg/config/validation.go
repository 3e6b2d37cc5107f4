package config

import (
	"fmt"

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
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Session.FetchTimeout > cfg.Session.DefaultTimeout {
		return fmt.Errorf("session: fetch_timeout (%s) exceeds default_timeout (%s)",
			cfg.Session.FetchTimeout, cfg.Session.DefaultTimeout)
	}

	if cfg.Session.OwnerID != "" && cfg.Session.AgentID == "" {
		return fmt.Errorf("session: owner_id requires agent_id")
	}

	// The selected cache backend must carry its required options
	switch cfg.Cache.Type {
	case "fs":
		if stringOption(cfg.Cache.FS, "path") == "" {
			return fmt.Errorf("cache.fs: path is required")
		}
	case "badger":
		inMemory, _ := cfg.Cache.Badger["in_memory"].(bool)
		if !inMemory && stringOption(cfg.Cache.Badger, "db_path") == "" {
			return fmt.Errorf("cache.badger: db_path is required unless in_memory is set")
		}
	case "s3":
		if stringOption(cfg.Cache.S3, "bucket") == "" {
			return fmt.Errorf("cache.s3: bucket is required")
		}
		if stringOption(cfg.Cache.S3, "region") == "" {
			return fmt.Errorf("cache.s3: region is required")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics: port is required when metrics are enabled")
	}

	return nil
}

func stringOption(options map[string]any, key string) string {
	s, _ := options[key].(string)
	return s
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
