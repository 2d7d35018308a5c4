package config

import (
	"fmt"
	"os"

	"github.com/sofatutor/llm-observer/internal/sanitize"
	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file overlaid on top of
// environment variables. It carries settings that are awkward as env vars:
// the intercept target list and per-source binary field sets.
type FileConfig struct {
	// InterceptAddresses replaces the target list wholesale when non-empty.
	InterceptAddresses []string `yaml:"intercept_addresses"`
	// BinaryFields maps a source tag to extra field-name substrings whose
	// values are stripped before delivery.
	BinaryFields map[string][]string `yaml:"binary_fields"`
	// Source selects the binary field strip set applied to payloads.
	Source string `yaml:"source"`
	// BaseURL overrides the collector base URL when set.
	BaseURL string `yaml:"base_url"`
}

// LoadFile loads a FileConfig from a YAML file and applies it to cfg.
func LoadFile(path string, cfg *Config) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	for source, fields := range fc.BinaryFields {
		sanitize.RegisterBinaryFields(source, fields)
	}

	if cfg != nil {
		if len(fc.InterceptAddresses) > 0 {
			cfg.SetInterceptAddresses(fc.InterceptAddresses)
		}
		if fc.Source != "" {
			cfg.Source = fc.Source
		}
		if fc.BaseURL != "" {
			cfg.BaseURL = fc.BaseURL
		}
	}
	return &fc, nil
}
