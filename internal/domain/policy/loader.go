package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a policy preset file.
type File struct {
	Policies []Policy `yaml:"policies"`
}

// LoadFromFile reads the policies in a YAML preset file.
// Policies omitting `enabled` are enabled.
func LoadFromFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied preset path
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var raw struct {
		Policies []yaml.Node `yaml:"policies"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	out := make([]Policy, 0, len(raw.Policies))
	for i := range raw.Policies {
		p := Policy{Enabled: true}
		if err := raw.Policies[i].Decode(&p); err != nil {
			return nil, fmt.Errorf("parse policy file %s: policies[%d]: %w", path, i, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("validate policy file %s: %w", path, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadFromDirectory reads all .yaml/.yml files from a directory.
// Missing directories return an empty slice (not an error).
func LoadFromDirectory(dir string) ([]Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy directory %s: %w", dir, err)
	}

	var all []Policy
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		ps, err := LoadFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		all = append(all, ps...)
	}
	return all, nil
}
