package fields

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// aliasFile is the on-disk alias override format:
//
//	override:
//	  title: [headline, name]
//	extend:
//	  summary: [synopsis]
type aliasFile struct {
	Overrides `yaml:",inline"`
}

// LoadOverrides reads alias overrides from a YAML file.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read alias file: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes YAML alias overrides.
func ParseOverrides(data []byte) (Overrides, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Overrides{}, fmt.Errorf("parse alias file: %w", err)
	}
	return f.Overrides, nil
}

// MarshalYAML renders the table as an ordered YAML sequence.
func (t *Table) MarshalYAML() (any, error) {
	return t.Mappings(), nil
}
