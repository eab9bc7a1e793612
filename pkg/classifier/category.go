// Package classifier assigns CTI records to a closed set of categories.
package classifier

import "fmt"

// Category is a source-format tag chosen for a record.
type Category string

const (
	MITRETechnique   Category = "mitre-technique"
	MITREGroup       Category = "mitre-group"
	MITREMitigation  Category = "mitre-mitigation"
	STIXObject       Category = "stix-object"
	OpenCTIEntity    Category = "opencti-entity"
	ThreatActor      Category = "threat-actor"
	SecurityBulletin Category = "security-bulletin"
	Generic          Category = "generic"
)

var categories = []Category{
	MITRETechnique,
	MITREGroup,
	MITREMitigation,
	STIXObject,
	OpenCTIEntity,
	ThreatActor,
	SecurityBulletin,
	Generic,
}

var labels = map[Category]string{
	MITRETechnique:   "MITRE ATT&CK Technique",
	MITREGroup:       "MITRE ATT&CK Group",
	MITREMitigation:  "MITRE ATT&CK Mitigation",
	STIXObject:       "STIX Object",
	OpenCTIEntity:    "OpenCTI Entity",
	ThreatActor:      "Threat Actor",
	SecurityBulletin: "Security Bulletin",
	Generic:          "Generic",
}

// All returns every category in classification order.
func All() []Category {
	return append([]Category(nil), categories...)
}

// String returns the category tag.
func (c Category) String() string { return string(c) }

// Label returns the human-readable name of the category.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// IsMITRE reports whether c is one of the MITRE ATT&CK categories.
func (c Category) IsMITRE() bool {
	return c == MITRETechnique || c == MITREGroup || c == MITREMitigation
}

// ParseCategory converts a tag into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}
