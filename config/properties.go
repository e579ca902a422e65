// Package config supplies the container's configuration surface: a single
// recognized key, framework.beginning.startlevel, read through a small
// PropertySource interface with file-backed implementations for the
// formats the rest of this codebase's lineage favors.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// PropertySource is a string-keyed configuration lookup, matching the
// Adaptor contract's GetProperty(key) method.
type PropertySource interface {
	GetProperty(key string) (string, bool)
}

// StaticProperties is a PropertySource backed by an in-memory map, useful
// for tests and for hosts that assemble configuration programmatically.
type StaticProperties map[string]string

func (p StaticProperties) GetProperty(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

// TOMLFile is a PropertySource backed by a TOML file, decoded once into a
// flat string map on construction.
type TOMLFile struct {
	values map[string]string
}

// NewTOMLFile reads and decodes path as TOML. Non-string leaf values are
// coerced with golobby/cast so callers may write integers or booleans in
// the file and still retrieve them through the string-only GetProperty
// contract.
func NewTOMLFile(path string) (*TOMLFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if _, err := toml.Decode(string(raw), &decoded); err != nil {
		return nil, err
	}
	return &TOMLFile{values: flatten(decoded)}, nil
}

func (t *TOMLFile) GetProperty(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

// YAMLFile is a PropertySource backed by a YAML file, decoded the same way
// as TOMLFile.
type YAMLFile struct {
	values map[string]string
}

func NewYAMLFile(path string) (*YAMLFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return &YAMLFile{values: flatten(decoded)}, nil
}

func (y *YAMLFile) GetProperty(key string) (string, bool) {
	v, ok := y.values[key]
	return v, ok
}

// flatten walks nested tables (TOML's dotted keys and YAML's nested maps
// both decode this way) and joins them back into dotted property keys, so
// "framework.beginning.startlevel = 3" round-trips through GetProperty the
// same way a caller wrote it.
func flatten(m map[string]any) map[string]string {
	out := make(map[string]string)
	flattenInto(out, "", m)
	return out
}

func flattenInto(out map[string]string, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch nested := v.(type) {
		case map[string]any:
			flattenInto(out, key, nested)
		default:
			if s, err := cast.ToString(v); err == nil {
				out[key] = s
			}
		}
	}
}
