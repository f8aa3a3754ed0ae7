package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissingCredential marks a key or token that is required but unset.
// Callers surface it to the user instead of retrying.
var ErrMissingCredential = errors.New("missing credential")

// ResolveAPIKey resolves a required secret. Source "env" reads envVar,
// "config" uses configValue. An empty source means "env".
func ResolveAPIKey(source, configValue, envVar string) (string, error) {
	switch strings.ToLower(source) {
	case "", "env":
		if envVar == "" {
			return "", fmt.Errorf("no environment variable name specified")
		}
		if val := strings.TrimSpace(os.Getenv(envVar)); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrMissingCredential, envVar)
	case "config":
		if strings.TrimSpace(configValue) == "" {
			return "", fmt.Errorf("%w: api_key_source is 'config' but no value provided", ErrMissingCredential)
		}
		return strings.TrimSpace(configValue), nil
	default:
		return "", fmt.Errorf("unknown api_key_source: %q", source)
	}
}

// ResolveToken resolves an optional secret such as a content-host token.
// Anything that cannot be resolved yields "" (anonymous access).
func ResolveToken(source, configValue string, envVars ...string) string {
	if strings.EqualFold(source, "config") {
		return strings.TrimSpace(configValue)
	}
	for _, name := range envVars {
		if val, err := ResolveAPIKey("env", "", name); err == nil {
			return val
		}
	}
	return ""
}
