// Package yamlutil decodes daemon configuration files with goccy/go-yaml.
package yamlutil

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
)

// MaxInputSize limits YAML input to prevent memory exhaustion (default 1MB).
var MaxInputSize = 1 << 20

var (
	ErrNilData        = errors.New("yamlutil: nil or empty data")
	ErrNilDestination = errors.New("yamlutil: nil destination pointer")
	ErrInputTooLarge  = errors.New("yamlutil: input exceeds maximum size")
	ErrUnsetVariable  = errors.New("yamlutil: environment variable not set")
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// envRef matches ${NAME} and ${NAME:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

func validateInput(data []byte, v any) error {
	if len(data) == 0 {
		return ErrNilData
	}
	if len(data) > MaxInputSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	if v == nil {
		return ErrNilDestination
	}
	return nil
}

// ExpandEnv replaces ${NAME} references with values from lookup (the
// process environment when nil). ${NAME:-default} falls back to default;
// a bare reference to an unset variable is an error.
func ExpandEnv(data []byte, lookup LookupFunc) ([]byte, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var missing []string
	out := envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		name := string(sub[1])
		if v, ok := lookup(name); ok {
			return []byte(v)
		}
		if hasDefault(m) {
			return sub[2]
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnsetVariable, missing)
	}
	return out, nil
}

func hasDefault(ref []byte) bool {
	for i := 0; i+1 < len(ref); i++ {
		if ref[i] == ':' && ref[i+1] == '-' {
			return true
		}
	}
	return false
}

// UnmarshalStrict expands environment references and decodes data into v,
// rejecting unknown fields.
func UnmarshalStrict(data []byte, v any, lookup LookupFunc) error {
	if err := validateInput(data, v); err != nil {
		return err
	}
	expanded, err := ExpandEnv(data, lookup)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalWithOptions(expanded, v, yaml.Strict()); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// Marshal encodes v, used to print the effective configuration.
func Marshal(v any) ([]byte, error) {
	result, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	return result, nil
}
