package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// decoders maps file extensions to parsers.
var decoders = map[string]func([]byte) (Config, error){
	".yaml": FromYAML,
	".yml":  FromYAML,
	".json": FromJSON,
}

// FromFile reads a .yaml, .yml or .json settings file. ${VAR} and
// ${VAR:-fallback} references are replaced from the environment first.
func FromFile(path string) (Config, error) {
	decode, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config file extension: %q", filepath.Ext(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := decode([]byte(expandEnv(string(raw))))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// expandEnv is os.ExpandEnv with shell-style fallbacks.
func expandEnv(s string) string {
	return os.Expand(s, func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		return ""
	})
}

// FromYAML decodes a YAML document.
func FromYAML(data []byte) (Config, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(tree), nil
}

// FromJSON decodes a JSON object.
func FromJSON(data []byte) (Config, error) {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(tree), nil
}
