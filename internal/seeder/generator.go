// Package seeder generates synthetic CTI records for demos, load tests and
// property tests.
package seeder

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

// Record kinds understood by Generator.Record.
const (
	KindTechnique   = "technique"
	KindGroup       = "group"
	KindMitigation  = "mitigation"
	KindBundle      = "bundle"
	KindOpenCTI     = "opencti"
	KindThreatActor = "threat-actor"
	KindBulletin    = "bulletin"
	KindGeneric     = "generic"
)

// Kinds lists every record kind.
func Kinds() []string {
	return []string{KindTechnique, KindGroup, KindMitigation, KindBundle, KindOpenCTI, KindThreatActor, KindBulletin, KindGeneric}
}

var tactics = []string{
	"reconnaissance", "initial-access", "execution", "persistence", "privilege-escalation",
	"defense-evasion", "credential-access", "discovery", "lateral-movement", "collection",
	"command-and-control", "exfiltration", "impact",
}

var platforms = []string{"Windows", "Linux", "macOS", "Network", "Containers", "IaaS", "SaaS"}

// Generator produces deterministic fake data for a given seed.
type Generator struct {
	faker *gofakeit.Faker
}

// New creates a generator. Equal seeds produce equal sequences.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Record builds one record of the given kind as plain Go data.
func (g *Generator) Record(kind string) (map[string]any, error) {
	switch kind {
	case KindTechnique:
		return g.technique(), nil
	case KindGroup:
		return g.group(), nil
	case KindMitigation:
		return g.mitigation(), nil
	case KindBundle:
		return g.bundle(), nil
	case KindOpenCTI:
		return g.opencti(), nil
	case KindThreatActor:
		return g.threatActor(), nil
	case KindBulletin:
		return g.bulletin(), nil
	case KindGeneric:
		return g.generic(), nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}

func (g *Generator) stixID(prefix string) string {
	return prefix + "--" + g.faker.UUID()
}

func (g *Generator) timestamp() string {
	return g.faker.DateRange(time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)).Format(time.RFC3339)
}

func (g *Generator) pick(list []string, n int) []any {
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, list[g.faker.IntRange(0, len(list)-1)])
	}
	return out
}

func (g *Generator) mitreRef(prefix string) map[string]any {
	id := g.faker.Numerify(prefix + "####")
	return map[string]any{
		"source_name": "mitre-attack",
		"external_id": id,
		"url":         "https://attack.mitre.org/" + strings.ToLower(id),
	}
}

func (g *Generator) technique() map[string]any {
	phases := make([]any, 0, 2)
	for _, t := range g.pick(tactics, g.faker.IntRange(1, 2)) {
		phases = append(phases, map[string]any{"kill_chain_name": "mitre-attack", "phase_name": t})
	}
	return map[string]any{
		"type":                    "attack-pattern",
		"spec_version":            "2.1",
		"id":                      g.stixID("attack-pattern"),
		"name":                    titleWords(g.faker.HackerVerb() + " " + g.faker.HackerNoun()),
		"description":             g.faker.Paragraph(2, 3, 12, "\n\n"),
		"created":                 g.timestamp(),
		"modified":                g.timestamp(),
		"kill_chain_phases":       phases,
		"external_references":     []any{g.mitreRef("T")},
		"x_mitre_platforms":       g.pick(platforms, g.faker.IntRange(1, 3)),
		"x_mitre_detection":       g.faker.Sentence(20),
		"x_mitre_version":         fmt.Sprintf("1.%d", g.faker.IntRange(0, 5)),
		"x_mitre_is_subtechnique": g.faker.Bool(),
	}
}

func (g *Generator) group() map[string]any {
	return map[string]any{
		"type":                "intrusion-set",
		"id":                  g.stixID("intrusion-set"),
		"name":                g.faker.Company(),
		"description":         g.faker.Paragraph(1, 4, 10, " "),
		"aliases":             []any{g.faker.AppName(), g.faker.AppName()},
		"external_references": []any{g.mitreRef("G")},
		"x_mitre_version":     "2.0",
		"x_mitre_domains":     []any{"enterprise-attack"},
	}
}

func (g *Generator) mitigation() map[string]any {
	return map[string]any{
		"type":                "course-of-action",
		"id":                  g.stixID("course-of-action"),
		"name":                titleWords(g.faker.HackerAdjective() + " " + g.faker.HackerNoun()),
		"description":         g.faker.Sentence(25),
		"external_references": []any{g.mitreRef("M")},
		"x_mitre_deprecated":  false,
	}
}

func (g *Generator) bundle() map[string]any {
	n := g.faker.IntRange(1, 4)
	objects := make([]any, 0, n)
	for i := 0; i < n; i++ {
		objects = append(objects, map[string]any{
			"type":     "indicator",
			"id":       g.stixID("indicator"),
			"name":     g.faker.HackerPhrase(),
			"pattern":  fmt.Sprintf("[ipv4-addr:value = '%s']", g.faker.IPv4Address()),
			"created":  g.timestamp(),
			"modified": g.timestamp(),
		})
	}
	return map[string]any{
		"type":    "bundle",
		"id":      g.stixID("bundle"),
		"objects": objects,
	}
}

func (g *Generator) opencti() map[string]any {
	return map[string]any{
		"entity_type":  "Malware",
		"standard_id":  g.stixID("malware"),
		"name":         g.faker.AppName(),
		"description":  g.faker.Sentence(18),
		"confidence":   g.faker.IntRange(0, 100),
		"created_time": g.timestamp(),
		"updated_time": g.timestamp(),
		"labels":       []any{g.faker.HackerNoun(), g.faker.HackerNoun()},
	}
}

func (g *Generator) threatActor() map[string]any {
	techniques := []any{map[string]any{"id": g.faker.Numerify("T####"), "name": g.faker.HackerPhrase()}}
	targets := []any{map[string]any{"vendor": g.faker.Company(), "product": g.faker.AppName()}}
	cves := []any{map[string]any{"cve": []any{g.faker.Numerify("CVE-20##-####")}, "url": g.faker.URL()}}
	return map[string]any{
		"threat_actor_name":                  g.faker.Company(),
		"description":                        g.faker.Paragraph(1, 3, 14, " "),
		"country":                            g.faker.Country(),
		"vendor_names_for_threat_actors":     []any{g.faker.AppName(), g.faker.AppName()},
		"associated_mitre_attack_techniques": techniques,
		"vendors_and_products_targeted":      targets,
		"cve_references":                     cves,
		"targeted_countries":                 []any{g.faker.Country()},
		"first_seen":                         g.timestamp(),
	}
}

func (g *Generator) bulletin() map[string]any {
	return map[string]any{
		"title":     g.faker.Numerify("TS-20##-###"),
		"summary":   g.faker.Sentence(15),
		"solution":  g.faker.Sentence(10),
		"severity":  g.faker.RandomString([]string{"low", "medium", "high", "critical"}),
		"cves":      []any{g.faker.Numerify("CVE-20##-#####")},
		"url":       g.faker.URL(),
		"published": g.timestamp(),
	}
}

func (g *Generator) generic() map[string]any {
	return map[string]any{
		"sensor":   g.faker.Word(),
		"observed": g.faker.IntRange(1, 1000),
		"payload":  g.faker.HackerPhrase(),
	}
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Value builds an arbitrary JSON value with containers nested at most
// depth levels. Object keys are unique; strings may span several lines.
func (g *Generator) Value(depth int) jsonvalue.Value {
	if depth <= 0 {
		return g.scalar()
	}
	switch g.faker.IntRange(0, 5) {
	case 0:
		n := g.faker.IntRange(0, 4)
		items := make([]jsonvalue.Value, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, g.Value(depth-1))
		}
		return jsonvalue.ArrayValue(items...)
	case 1, 2:
		n := g.faker.IntRange(0, 5)
		obj := jsonvalue.NewObject()
		for i := 0; i < n; i++ {
			obj.Add(fmt.Sprintf("%s_%d", g.faker.Word(), i), g.Value(depth-1))
		}
		return jsonvalue.ObjectValue(obj)
	default:
		return g.scalar()
	}
}

func (g *Generator) scalar() jsonvalue.Value {
	switch g.faker.IntRange(0, 6) {
	case 0:
		return jsonvalue.NullValue()
	case 1:
		return jsonvalue.BoolValue(g.faker.Bool())
	case 2:
		return jsonvalue.NumberValue(fmt.Sprint(g.faker.IntRange(-1000, 100000)))
	case 3:
		return jsonvalue.NumberValue(fmt.Sprintf("%.3f", g.faker.Float64Range(-10, 10)))
	case 4:
		return jsonvalue.StringValue(g.faker.Paragraph(2, 2, 6, "\n\n"))
	default:
		return jsonvalue.StringValue(g.faker.Sentence(g.faker.IntRange(1, 12)))
	}
}

// Document builds a Markdown text of roughly words words split into
// sections and paragraphs.
func (g *Generator) Document(sections, paragraphs, wordsPerParagraph int) string {
	var b strings.Builder
	for s := 0; s < sections; s++ {
		fmt.Fprintf(&b, "## %s\n\n", g.faker.HackerNoun())
		for p := 0; p < paragraphs; p++ {
			b.WriteString(g.faker.Sentence(wordsPerParagraph))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
