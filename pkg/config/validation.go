package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Struct tag rules live on the
// Config types themselves; cross-field rules are checked separately below.
var validate = validator.New()

// Validate checks the configuration for errors.
//
// Two layers of validation run:
//  1. Struct tag validation (required fields, value ranges, enums)
//  2. Semantic validation that tags cannot express (port collisions,
//     relations between collector knobs)
//
// Returns a descriptive error naming the offending field, or nil.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if ok := errorsAs(err, &verrs); ok {
			return formatValidationErrors(verrs)
		}
		return err
	}

	return validateSemantics(cfg)
}

// errorsAs is a tiny wrapper so the type assertion reads cleanly above.
func errorsAs(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// formatValidationErrors converts validator errors into a user-facing message.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace looks like "Config.Logging.Level"; drop the root.
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s: must be >= %s", field, fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s: must be <= %s", field, fe.Param()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s: must be > %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}

// validateSemantics checks rules spanning multiple fields.
func validateSemantics(cfg *Config) error {
	if cfg.Metrics.Enabled && cfg.Debug.Enabled && cfg.Metrics.Port == cfg.Debug.Port {
		return fmt.Errorf("metrics and debug servers cannot share port %d", cfg.Metrics.Port)
	}

	if cfg.GC.Workers < 0 {
		return fmt.Errorf("gc.workers cannot be negative")
	}

	if cfg.GC.TimeLimit < 0 {
		return fmt.Errorf("gc.time_limit cannot be negative")
	}

	return nil
}
