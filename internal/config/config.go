// Package config locates and loads the .scout project file.
//
// A .scout file names the contract type under review and the seed files to
// include in the prompt. It is YAML; the JSON form written by older tools is
// a subset and loads unchanged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the only accepted config file name.
const FileName = ".scout"

// Analysis modes.
const (
	ModeDeterministic = "deterministic"
	ModeCreative      = "creative"
)

var (
	// ErrNotFound is returned when no .scout file exists where one is expected.
	ErrNotFound = errors.New("config file not found")
	// ErrBadName is returned when an explicit config path is not named .scout.
	ErrBadName = errors.New("config file must be named " + FileName)
	// ErrInvalid is returned when the file parses but its content is unusable.
	ErrInvalid = errors.New("invalid config")
)

// Config is the content of a .scout file.
type Config struct {
	ContractType string   `yaml:"contract_type"`
	Files        []string `yaml:"files"`
	Model        string   `yaml:"model,omitempty"`
	Mode         string   `yaml:"mode,omitempty"`
	// DependencyDepth is the default traversal depth; nil when unset.
	DependencyDepth *int `yaml:"dependency_depth,omitempty"`
}

type rawConfig struct {
	ContractType    string    `yaml:"contract_type"`
	Files           yaml.Node `yaml:"files"`
	Model           yaml.Node `yaml:"model"`
	Mode            yaml.Node `yaml:"mode"`
	DependencyDepth *int      `yaml:"dependency_depth"`
}

// ResolvePath finds the .scout file for target. override, if set, is either
// a directory to search or the .scout file itself.
func ResolvePath(target, override string) (string, error) {
	search := target
	if override != "" {
		search = expandHome(override)
	}
	search, err := filepath.Abs(search)
	if err != nil {
		return "", fmt.Errorf("resolving config path: %w", err)
	}

	candidate := search
	if filepath.Base(search) != FileName {
		if info, err := os.Stat(search); err == nil && !info.IsDir() {
			return "", fmt.Errorf("%w, got %q", ErrBadName, filepath.Base(search))
		}
		candidate = filepath.Join(search, FileName)
	}

	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("%w: no %s under %s", ErrNotFound, FileName, filepath.Dir(candidate))
	}
	return candidate, nil
}

// Load reads and validates a .scout file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates .scout content.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	cfg := &Config{
		ContractType:    strings.TrimSpace(raw.ContractType),
		DependencyDepth: raw.DependencyDepth,
	}
	if cfg.ContractType == "" {
		return nil, fmt.Errorf("%w: config file must include 'contract_type'", ErrInvalid)
	}

	if !raw.Files.IsZero() {
		if raw.Files.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%w: 'files' must be a list of paths", ErrInvalid)
		}
		if err := raw.Files.Decode(&cfg.Files); err != nil {
			return nil, fmt.Errorf("%w: 'files': %w", ErrInvalid, err)
		}
	}

	model, err := optionalString(raw.Model, "model")
	if err != nil {
		return nil, err
	}
	cfg.Model = model
	mode, err := optionalString(raw.Mode, "mode")
	if err != nil {
		return nil, err
	}
	if mode != "" {
		if cfg.Mode, err = NormalizeMode(mode); err != nil {
			return nil, err
		}
	}

	if cfg.DependencyDepth != nil && *cfg.DependencyDepth < 0 {
		return nil, fmt.Errorf("%w: 'dependency_depth' must not be negative", ErrInvalid)
	}
	return cfg, nil
}

// NormalizeMode lowercases mode and checks it is a known analysis mode.
func NormalizeMode(mode string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(mode))
	switch m {
	case ModeDeterministic, ModeCreative:
		return m, nil
	}
	return "", fmt.Errorf("%w: 'mode' must be one of %s, %s; got %q", ErrInvalid, ModeDeterministic, ModeCreative, mode)
}

// Marshal renders cfg as a .scout file.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func optionalString(n yaml.Node, field string) (string, error) {
	if n.IsZero() || n.ShortTag() == "!!null" {
		return "", nil
	}
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return "", fmt.Errorf("%w: '%s' must be a string when provided", ErrInvalid, field)
	}
	return n.Value, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
