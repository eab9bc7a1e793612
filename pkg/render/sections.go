package render

import (
	"strings"

	"github.com/telhawk-systems/ctidoc/pkg/classifier"
	"github.com/telhawk-systems/ctidoc/pkg/fields"
	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

// Derived section keys. They do not name canonical fields.
const (
	KeyMITREID  = "mitre_id"
	KeyMetadata = "metadata"
)

// input is what section builders see.
type input struct {
	record   *jsonvalue.Object
	resolved fields.Resolved
	category classifier.Category
}

type sectionSpec struct {
	key     string
	heading string
	// headings overrides heading per category.
	headings map[classifier.Category]string
	// only restricts the section to these categories when set.
	only  []classifier.Category
	build func(in input) string
}

func (s sectionSpec) headingFor(c classifier.Category) string {
	if h, ok := s.headings[c]; ok {
		return h
	}
	return s.heading
}

func (s sectionSpec) applies(c classifier.Category) bool {
	if len(s.only) == 0 {
		return true
	}
	for _, o := range s.only {
		if o == c {
			return true
		}
	}
	return false
}

// field renders a canonical field with the default block layout.
func field(name string) func(input) string {
	return func(in input) string {
		v, ok := in.resolved.Get(name)
		if !ok {
			return ""
		}
		return block(v)
	}
}

var sectionTable = []sectionSpec{
	{key: fields.Summary, heading: "Overview", headings: map[classifier.Category]string{
		classifier.MITRETechnique:  "Technique Overview",
		classifier.MITREGroup:      "Group Overview",
		classifier.MITREMitigation: "Mitigation Overview",
	}, build: field(fields.Summary)},
	{key: fields.ObjectType, heading: "Object Type", build: field(fields.ObjectType)},
	{key: fields.Identifier, heading: "Identifier", build: field(fields.Identifier)},
	{key: KeyMITREID, heading: "MITRE ID", build: func(in input) string { return mitreID(in.resolved) }},
	{key: fields.Attribution, heading: "Attribution", build: field(fields.Attribution)},
	{key: fields.Country, heading: "Country", build: field(fields.Country)},
	{key: fields.Aliases, heading: "Known Aliases", build: field(fields.Aliases)},
	{key: KeyMetadata, heading: "Metadata", build: metadata},
	{key: fields.URL, heading: "URLs", build: field(fields.URL)},
	{key: fields.MalpediaURL, heading: "Malpedia", build: field(fields.MalpediaURL)},
	{key: fields.Tactics, heading: "Tactics", build: field(fields.Tactics)},
	{key: fields.Platforms, heading: "Platforms", build: field(fields.Platforms)},
	{key: fields.DataSources, heading: "Data Sources", build: field(fields.DataSources)},
	{key: fields.Detection, heading: "Detection", build: field(fields.Detection)},
	{key: fields.Techniques, heading: "Techniques", headings: map[classifier.Category]string{
		classifier.ThreatActor: "Associated MITRE ATT&CK Techniques",
	}, build: field(fields.Techniques)},
	{key: fields.CVE, heading: "CVE References", build: field(fields.CVE)},
	{key: fields.Targets, heading: "Targeted Vendors and Products", build: field(fields.Targets)},
	{key: fields.TargetedCountries, heading: "Targeted Countries", build: field(fields.TargetedCountries)},
	{key: fields.TargetedIndustries, heading: "Targeted Industries", build: field(fields.TargetedIndustries)},
	{key: fields.RelatedActors, heading: "Related Actors", build: field(fields.RelatedActors)},
	{key: fields.MITREAttackGroup, heading: "MITRE ATT&CK Group", build: field(fields.MITREAttackGroup)},
	{key: fields.MISPThreatActor, heading: "MISP Threat Actor", build: field(fields.MISPThreatActor)},
	{key: fields.Indicators, heading: "Indicators", build: field(fields.Indicators)},
	{key: fields.Labels, heading: "Labels", build: field(fields.Labels)},
	{key: fields.Pattern, heading: "Pattern", build: field(fields.Pattern)},
	{key: fields.Objects, heading: "Contained Objects", only: []classifier.Category{classifier.STIXObject}, build: field(fields.Objects)},
	{key: fields.References, heading: "External References", build: field(fields.References)},
}

// handled lists the canonical fields that have a dedicated place in the
// document. Other resolved fields get a section of their own.
var handled = map[string]bool{
	fields.Title:      true,
	fields.Created:    true,
	fields.Modified:   true,
	fields.Version:    true,
	fields.Severity:   true,
	fields.Confidence: true,
}

func init() {
	for _, s := range sectionTable {
		handled[s.key] = true
	}
}

var mitreSources = []string{"mitre-attack", "mitre-ics-attack", "mitre-mobile-attack"}

// mitreID returns the ATT&CK external ID from external_references.
func mitreID(resolved fields.Resolved) string {
	refs, ok := resolved.Get(fields.References)
	if !ok {
		return ""
	}
	for _, ref := range refs.Items() {
		obj := ref.Object()
		if obj == nil {
			continue
		}
		source := strings.ToLower(str(obj, "source_name"))
		for _, s := range mitreSources {
			if source == s {
				if id := str(obj, "external_id"); id != "" {
					return id
				}
			}
		}
	}
	return ""
}

var metadataFields = []struct {
	field, label string
}{
	{fields.Created, "Created"},
	{fields.Modified, "Modified"},
	{fields.Version, "Version"},
	{fields.Confidence, "Confidence"},
	{fields.Severity, "Severity"},
}

func metadata(in input) string {
	var lines []string
	for _, f := range metadataFields {
		v, ok := in.resolved.Get(f.field)
		if !ok {
			continue
		}
		if s := inline(v); s != "" {
			lines = append(lines, "- **"+f.label+":** "+s)
		}
	}
	return strings.Join(lines, "\n")
}

// displayID is the identifier shown in titles and paths: the ATT&CK ID when
// present, the resolved identifier otherwise.
func displayID(resolved fields.Resolved) string {
	if id := mitreID(resolved); id != "" {
		return id
	}
	if v, ok := resolved.Get(fields.Identifier); ok {
		return inline(v)
	}
	return ""
}

// DisplayID exposes the identifier used for titles and output paths.
func DisplayID(resolved fields.Resolved) string { return displayID(resolved) }

// DisplayTitle returns the single-line title text of a record, "" when none resolved.
func DisplayTitle(resolved fields.Resolved) string {
	if v, ok := resolved.Get(fields.Title); ok {
		return inline(v)
	}
	return ""
}

// documentTitle reports false when it falls back to "Unknown Object".
func documentTitle(resolved fields.Resolved) (string, bool) {
	id, name := displayID(resolved), DisplayTitle(resolved)
	switch {
	case id != "" && name != "" && id != name:
		return id + ": " + name, true
	case name != "":
		return name, true
	case id != "":
		return id, true
	default:
		return "Unknown Object", false
	}
}
