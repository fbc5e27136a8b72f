// Package environment reads typed settings from environment variables for the
// small binaries that do not load a config file (jarvis-client).
//
// Required variables return an error rather than exiting, so main decides how
// to fail.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StringOr returns the named variable, or defaultValue when unset or empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the named variable or an error when unset or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// IntOr parses the named variable as a decimal integer, falling back to
// defaultValue when unset or unparsable.
func IntOr(name string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return n
}

// DurationOr parses the named variable with time.ParseDuration, falling back
// to defaultValue when unset or unparsable.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return d
}
