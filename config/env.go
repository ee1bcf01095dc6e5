package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvDuration parses key as a Go duration string such as "5s".
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// LoadSelectors reads a YAML selector file. Keys missing from the file
// keep their default values.
func LoadSelectors(path string) (Selectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Selectors{}, fmt.Errorf("read selectors file: %w", err)
	}

	selectors := DefaultSelectors()
	if err := yaml.Unmarshal(data, &selectors); err != nil {
		return Selectors{}, fmt.Errorf("decode selectors file: %w", err)
	}
	if err := selectors.Validate(); err != nil {
		return Selectors{}, fmt.Errorf("selectors file %s: %w", path, err)
	}
	return selectors, nil
}
