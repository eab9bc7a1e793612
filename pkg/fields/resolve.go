package fields

import (
	"strings"

	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

// RootKey wraps top-level values that are not objects.
const RootKey = "_root"

// Entry is one resolved canonical field.
type Entry struct {
	Field string
	// Key is the raw record key that supplied the value, as spelled in the record.
	Key   string
	Value jsonvalue.Value
}

// Resolved holds the canonical fields found in a record, in table order.
// Fields that did not resolve are absent.
type Resolved struct {
	entries []Entry
}

// NewResolved builds a Resolved from entries, mostly for tests.
func NewResolved(entries ...Entry) Resolved {
	return Resolved{entries: append([]Entry(nil), entries...)}
}

// Len returns the number of resolved fields.
func (r Resolved) Len() int { return len(r.entries) }

// Empty reports whether no canonical field resolved.
func (r Resolved) Empty() bool { return len(r.entries) == 0 }

// Entries returns the resolved fields in table order.
func (r Resolved) Entries() []Entry { return r.entries }

// Fields returns the names of the resolved fields in table order.
func (r Resolved) Fields() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Field
	}
	return out
}

// Entry returns the entry for field.
func (r Resolved) Entry(field string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Field == field {
			return e, true
		}
	}
	return Entry{}, false
}

// Get returns the value resolved for field.
func (r Resolved) Get(field string) (jsonvalue.Value, bool) {
	e, ok := r.Entry(field)
	return e.Value, ok
}

// Has reports whether field resolved.
func (r Resolved) Has(field string) bool {
	_, ok := r.Entry(field)
	return ok
}

// Text returns the trimmed literal text of a scalar field, "" when the field
// is absent or holds a container.
func (r Resolved) Text(field string) string {
	v, ok := r.Get(field)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.Text())
}

// AsRecord returns the object resolution operates on. Non-object values are
// wrapped as {"_root": v}.
func AsRecord(v jsonvalue.Value) *jsonvalue.Object {
	if obj := v.Object(); obj != nil {
		return obj
	}
	return jsonvalue.NewObject(jsonvalue.Member{Key: RootKey, Value: v})
}

// Resolve finds every canonical field of table in record. Only the record's
// own top-level keys are considered. For each field the aliases are tried in
// order and the first one naming a non-null member wins; when several keys
// differ only by case, the first in record order is used.
func Resolve(record jsonvalue.Value, table *Table) Resolved {
	obj := AsRecord(record)
	var entries []Entry
	for _, m := range table.mappings {
		for _, alias := range m.Aliases {
			member, ok := obj.GetFold(alias)
			if !ok || member.Value.IsNull() {
				continue
			}
			entries = append(entries, Entry{Field: m.Field, Key: member.Key, Value: member.Value})
			break
		}
	}
	return Resolved{entries: entries}
}
