package config

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"

	"pyscan/internal/core/errors"
	"pyscan/internal/engine/defect"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		_, err := defect.ParseSeverity(fl.Field().String())
		return err == nil
	})
	return v
}

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			return errors.Configuration(fieldKey(fe.Namespace()),
				fmt.Sprintf("invalid value %v (rule %s)", fe.Value(), rule))
		}
		return errors.Wrap(err, errors.CodeConfiguration, "validate config")
	}
	if err := validateThresholds(cfg); err != nil {
		return err
	}
	if err := validateSymbolic(cfg); err != nil {
		return err
	}
	if err := validateExclude(cfg); err != nil {
		return err
	}
	if err := validateObservability(cfg); err != nil {
		return err
	}
	return nil
}

func validateThresholds(cfg *Config) error {
	for key, value := range cfg.Patterns.Thresholds {
		if value <= 0 {
			return errors.Configuration("patterns.thresholds."+key, fmt.Sprintf("threshold must be > 0, got %d", value))
		}
	}
	return nil
}

func validateSymbolic(cfg *Config) error {
	if cfg.Symbolic.Timeout <= 0 {
		return errors.Configuration("symbolic_execution.timeout", "timeout must be positive")
	}
	return nil
}

func validateExclude(cfg *Config) error {
	for _, pattern := range cfg.Exclude.Files {
		if _, err := glob.Compile(pattern); err != nil {
			return errors.Configuration("exclude.files", fmt.Sprintf("invalid glob %q: %v", pattern, err))
		}
	}
	for _, pattern := range cfg.Exclude.Dirs {
		if _, err := glob.Compile(pattern); err != nil {
			return errors.Configuration("exclude.dirs", fmt.Sprintf("invalid glob %q: %v", pattern, err))
		}
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.TraceExporter == "otlp" && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		return errors.Configuration("observability.otlp_endpoint", "otlp exporter requires an endpoint")
	}
	return nil
}

// fieldKey turns a validator namespace such as Config.symbolic_execution.max_depth
// into the dotted key users write in their config file.
func fieldKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
