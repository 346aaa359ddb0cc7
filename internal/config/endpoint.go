package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Endpoint describes the completion endpoint under test.
type Endpoint struct {
	Provider     string            `yaml:"provider"`
	Model        string            `yaml:"model"`
	BaseURL      string            `yaml:"base_url"`
	APIKeyEnvVar string            `yaml:"api_key_env_var,omitempty"`
	Deployment   string            `yaml:"deployment,omitempty"`
	APIVersion   string            `yaml:"api_version,omitempty"`
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty"`
}

// ProviderModel is "provider/model", or just the model without a provider.
func (e Endpoint) ProviderModel() string {
	if e.Provider == "" {
		return e.Model
	}
	return e.Provider + "/" + e.Model
}

var unsafeFolderChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FolderName is ProviderModel made safe for use in a directory name.
func (e Endpoint) FolderName() string {
	return strings.Trim(unsafeFolderChars.ReplaceAllString(e.ProviderModel(), "_"), "_")
}

// APIKey reads the key from the configured environment variable.
func (e Endpoint) APIKey() string {
	if e.APIKeyEnvVar == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnvVar)
}

func (e Endpoint) Validate() error {
	var errs []error
	if e.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if e.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	} else if !strings.HasPrefix(e.BaseURL, "http://") && !strings.HasPrefix(e.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("base_url must be http(s), got %q", e.BaseURL))
	}
	if e.Deployment != "" && e.APIVersion == "" {
		errs = append(errs, errors.New("api_version is required with deployment"))
	}
	return errors.Join(errs...)
}

// LoadEndpoint reads and validates an endpoint spec.
func LoadEndpoint(path string) (*Endpoint, error) {
	var e Endpoint
	if err := loadYAML(path, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid endpoint spec %s: %w", path, err)
	}
	return &e, nil
}
