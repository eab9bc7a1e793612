// Package fields resolves canonical CTI fields from heterogeneous records.
//
// A Table maps each canonical field to the raw keys that may carry it. The
// first alias, in table order, that names a non-null top-level member of the
// record supplies the field's value. Key matching is case-insensitive.
package fields

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Canonical field names known to the renderer.
const (
	Title              = "title"
	Summary            = "summary"
	ObjectType         = "object_type"
	Identifier         = "identifier"
	URL                = "url"
	Created            = "created"
	Modified           = "modified"
	Attribution        = "attribution"
	Country            = "country"
	Aliases            = "aliases"
	CVE                = "cve"
	Techniques         = "techniques"
	Tactics            = "tactics"
	Platforms          = "platforms"
	DataSources        = "data_sources"
	Detection          = "detection"
	Indicators         = "indicators"
	Labels             = "labels"
	Targets            = "targets"
	TargetedCountries  = "targeted_countries"
	TargetedIndustries = "targeted_industries"
	RelatedActors      = "related_actors"
	Severity           = "severity"
	Confidence         = "confidence"
	Pattern            = "pattern"
	References         = "references"
	MalpediaURL        = "malpedia_url"
	MISPThreatActor    = "misp_threat_actor"
	MITREAttackGroup   = "mitre_attack_group"
	Version            = "version"
	Objects            = "objects"
)

// ErrInvalidTable is returned when a table definition is malformed.
var ErrInvalidTable = errors.New("invalid alias table")

// Mapping binds a canonical field to the raw keys that may carry it, highest
// priority first.
type Mapping struct {
	Field   string   `yaml:"field" json:"field"`
	Aliases []string `yaml:"aliases" json:"aliases"`
}

// Table is an ordered, immutable alias table. It is safe for concurrent use.
type Table struct {
	mappings []Mapping
	index    map[string]int
}

// NewTable validates mappings and builds a Table. Field names must be unique
// and every field needs at least one alias. Duplicate aliases within a field
// (compared case-insensitively) are dropped.
func NewTable(mappings ...Mapping) (*Table, error) {
	t := &Table{
		mappings: make([]Mapping, 0, len(mappings)),
		index:    make(map[string]int, len(mappings)),
	}
	for _, m := range mappings {
		name := strings.TrimSpace(m.Field)
		if name == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidTable)
		}
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidTable, name)
		}
		aliases := dedupe(m.Aliases)
		if len(aliases) == 0 {
			return nil, fmt.Errorf("%w: field %q has no aliases", ErrInvalidTable, name)
		}
		t.index[name] = len(t.mappings)
		t.mappings = append(t.mappings, Mapping{Field: name, Aliases: aliases})
	}
	return t, nil
}

// MustTable is NewTable that panics on error.
func MustTable(mappings ...Mapping) *Table {
	t, err := NewTable(mappings...)
	if err != nil {
		panic(err)
	}
	return t
}

func dedupe(aliases []string) []string {
	seen := make(map[string]struct{}, len(aliases))
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		k := strings.ToLower(a)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Len returns the number of canonical fields.
func (t *Table) Len() int { return len(t.mappings) }

// Fields returns canonical field names in table order.
func (t *Table) Fields() []string {
	out := make([]string, len(t.mappings))
	for i, m := range t.mappings {
		out[i] = m.Field
	}
	return out
}

// Aliases returns the aliases of field, nil when the field is unknown.
func (t *Table) Aliases(field string) []string {
	i, ok := t.index[field]
	if !ok {
		return nil
	}
	return append([]string(nil), t.mappings[i].Aliases...)
}

// Has reports whether field is a canonical field of the table.
func (t *Table) Has(field string) bool {
	_, ok := t.index[field]
	return ok
}

// Mappings returns a copy of the table definition.
func (t *Table) Mappings() []Mapping {
	out := make([]Mapping, len(t.mappings))
	for i, m := range t.mappings {
		out[i] = Mapping{Field: m.Field, Aliases: append([]string(nil), m.Aliases...)}
	}
	return out
}

// Overrides adjusts a table. Override replaces a field's aliases, Extend
// appends lower-priority aliases. Fields the table does not know are added
// after the existing ones in name order.
type Overrides struct {
	Override map[string][]string `yaml:"override" mapstructure:"override"`
	Extend   map[string][]string `yaml:"extend" mapstructure:"extend"`
}

// Empty reports whether o changes nothing.
func (o Overrides) Empty() bool {
	return len(o.Override) == 0 && len(o.Extend) == 0
}

// Merge returns o with other's entries layered on top.
func (o Overrides) Merge(other Overrides) Overrides {
	out := Overrides{
		Override: make(map[string][]string, len(o.Override)+len(other.Override)),
		Extend:   make(map[string][]string, len(o.Extend)+len(other.Extend)),
	}
	for k, v := range o.Override {
		out.Override[k] = v
	}
	for k, v := range other.Override {
		out.Override[k] = v
	}
	for k, v := range o.Extend {
		out.Extend[k] = v
	}
	for k, v := range other.Extend {
		out.Extend[k] = append(append([]string(nil), out.Extend[k]...), v...)
	}
	return out
}

// Apply returns a new table with o applied. t is not modified.
func (t *Table) Apply(o Overrides) (*Table, error) {
	mappings := t.Mappings()
	pos := make(map[string]int, len(mappings))
	for i, m := range mappings {
		pos[m.Field] = i
	}

	var added []string
	for _, src := range []map[string][]string{o.Override, o.Extend} {
		for field := range src {
			if _, ok := pos[field]; !ok && !contains(added, field) {
				added = append(added, field)
			}
		}
	}
	sort.Strings(added)
	for _, field := range added {
		pos[field] = len(mappings)
		mappings = append(mappings, Mapping{Field: field})
	}

	for field, aliases := range o.Override {
		mappings[pos[field]].Aliases = append([]string(nil), aliases...)
	}
	for field, aliases := range o.Extend {
		i := pos[field]
		mappings[i].Aliases = append(mappings[i].Aliases, aliases...)
	}
	return NewTable(mappings...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
