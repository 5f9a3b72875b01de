package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/llmuptime/internal/errs"
)

// Provider is one entry under the models section of the providers file.
type Provider struct {
	Name           string `yaml:"name"`
	Enabled        *bool  `yaml:"enabled"` // nil means enabled
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TestMessage    string `yaml:"test_message"`
	CAFile         string `yaml:"ca_file"`         // PEM bundle; empty uses the system pool
	TimeoutSeconds int    `yaml:"timeout_seconds"` // 0 leaves the client without a timeout
}

// IsEnabled is false only when enabled is explicitly set to false.
func (p Provider) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Timeout returns the per-call client timeout.
func (p Provider) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Providers is the decoded models section. Entries that failed to decode
// are kept in Invalid so a single bad entry cannot sink the whole file.
type Providers struct {
	Entries map[string]*Provider
	Invalid map[string]error
}

// Lookup returns the entry for key, or nil when it is absent or malformed.
func (p Providers) Lookup(key string) *Provider {
	if p.Entries == nil {
		return nil
	}
	return p.Entries[key]
}

// Keys returns the configured keys in sorted order.
func (p Providers) Keys() []string {
	keys := make([]string, 0, len(p.Entries))
	for k := range p.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type providersFile struct {
	Models map[string]yaml.Node `yaml:"models"`
}

// LoadProviders reads the providers file. A missing or unparseable file is an
// error; a malformed entry is only recorded in Invalid.
func LoadProviders(path string) (Providers, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Providers{}, errs.Errorf(errs.CodeConfigLoadFailure, "read providers config %s: %w", path, err)
	}
	return ParseProviders(content)
}

// ParseProviders decodes the YAML document in content.
func ParseProviders(content []byte) (Providers, error) {
	var raw providersFile
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return Providers{}, errs.Errorf(errs.CodeConfigLoadFailure, "parse providers config: %w", err)
	}

	out := Providers{
		Entries: make(map[string]*Provider, len(raw.Models)),
		Invalid: make(map[string]error),
	}
	for key, node := range raw.Models {
		if node.Kind != yaml.MappingNode {
			out.Invalid[key] = fmt.Errorf("models.%s: expected a mapping", key)
			continue
		}
		var p Provider
		if err := node.Decode(&p); err != nil {
			out.Invalid[key] = fmt.Errorf("models.%s: %w", key, err)
			continue
		}
		p.APIKey = os.ExpandEnv(p.APIKey)
		if p.Name == "" {
			p.Name = key
		}
		out.Entries[key] = &p
	}
	return out, nil
}
