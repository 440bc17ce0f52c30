package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/redolog/internal/redolog"
)

var ErrInvalidConfig = errors.New("cli: invalid config")

var validate = validator.New()

// LoadOptions reads a YAML config file over the default options. An empty
// path returns the defaults.
func LoadOptions(path string) (redolog.Options, error) {
	opts := redolog.DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return opts, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := ValidateOptions(opts); err != nil {
		return opts, err
	}
	return opts.WithDefaults(), nil
}

// ValidateOptions checks the struct tags on redolog.Options.
func ValidateOptions(opts redolog.Options) error {
	if err := validate.Struct(opts); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return strings.Join(msgs, "; ")
}
