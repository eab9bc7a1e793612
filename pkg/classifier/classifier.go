package classifier

import (
	"strings"

	"github.com/telhawk-systems/ctidoc/pkg/fields"
	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

// Rule is one entry of the ordered predicate list.
type Rule interface {
	Name() string
	// Classify reports the category for record when the rule applies.
	Classify(record *jsonvalue.Object, resolved fields.Resolved) (Category, bool)
}

// RuleFunc adapts a function into a Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(record *jsonvalue.Object, resolved fields.Resolved) (Category, bool)
}

// Name returns the rule name.
func (r RuleFunc) Name() string { return r.RuleName }

// Classify calls the wrapped function.
func (r RuleFunc) Classify(record *jsonvalue.Object, resolved fields.Resolved) (Category, bool) {
	return r.Fn(record, resolved)
}

// Registry holds ordered rules and picks the first that applies.
type Registry struct {
	rules []Rule
}

// NewRegistry constructs a registry with the provided rules.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// Rules returns the rules in evaluation order.
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Classify returns the category of the first matching rule and that rule's
// name. Records no rule accepts are Generic.
func (r *Registry) Classify(record jsonvalue.Value, resolved fields.Resolved) (Category, string) {
	obj := fields.AsRecord(record)
	if r != nil {
		for _, rule := range r.rules {
			if c, ok := rule.Classify(obj, resolved); ok {
				return c, rule.Name()
			}
		}
	}
	return Generic, "generic"
}

var mitreTypes = map[string]Category{
	"attack-pattern":   MITRETechnique,
	"intrusion-set":    MITREGroup,
	"course-of-action": MITREMitigation,
}

// MITRERule matches STIX objects carrying MITRE extension keys.
var MITRERule = RuleFunc{RuleName: "mitre", Fn: func(record *jsonvalue.Object, _ fields.Resolved) (Category, bool) {
	if !hasKeyPrefixFold(record, "x_mitre_") {
		return "", false
	}
	c, ok := mitreTypes[strings.ToLower(typeOf(record))]
	return c, ok
}}

// STIXRule matches STIX bundles and objects that declare a spec version.
var STIXRule = RuleFunc{RuleName: "stix", Fn: func(record *jsonvalue.Object, _ fields.Resolved) (Category, bool) {
	if strings.EqualFold(typeOf(record), "bundle") || record.HasKeyFold("spec_version") {
		return STIXObject, true
	}
	return "", false
}}

// OpenCTIRule matches OpenCTI exports.
var OpenCTIRule = RuleFunc{RuleName: "opencti", Fn: func(record *jsonvalue.Object, _ fields.Resolved) (Category, bool) {
	if record.HasKeyFold("entity_type") || record.HasKeyFold("standard_id") {
		return OpenCTIEntity, true
	}
	return "", false
}}

// ThreatActorRule matches threat actor catalog entries.
var ThreatActorRule = RuleFunc{RuleName: "threat-actor", Fn: func(record *jsonvalue.Object, _ fields.Resolved) (Category, bool) {
	if record.HasKeyFold("threat_actor_name") {
		return ThreatActor, true
	}
	return "", false
}}

// BulletinRule matches anything with both a title and a summary.
var BulletinRule = RuleFunc{RuleName: "security-bulletin", Fn: func(_ *jsonvalue.Object, resolved fields.Resolved) (Category, bool) {
	if resolved.Has(fields.Title) && resolved.Has(fields.Summary) {
		return SecurityBulletin, true
	}
	return "", false
}}

// GenericRule accepts every record.
var GenericRule = RuleFunc{RuleName: "generic", Fn: func(*jsonvalue.Object, fields.Resolved) (Category, bool) {
	return Generic, true
}}

var defaultRegistry = NewRegistry(MITRERule, STIXRule, OpenCTIRule, ThreatActorRule, BulletinRule, GenericRule)

// Default returns the built-in rule order.
func Default() *Registry { return defaultRegistry }

// Classify classifies record with the default rules.
func Classify(record jsonvalue.Value, resolved fields.Resolved) Category {
	c, _ := defaultRegistry.Classify(record, resolved)
	return c
}

func typeOf(record *jsonvalue.Object) string {
	m, ok := record.GetFold("type")
	if !ok {
		return ""
	}
	return strings.TrimSpace(m.Value.Str())
}

func hasKeyPrefixFold(record *jsonvalue.Object, prefix string) bool {
	for _, m := range record.Members() {
		if len(m.Key) >= len(prefix) && strings.EqualFold(m.Key[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}
