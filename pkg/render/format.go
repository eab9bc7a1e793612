package render

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

// cleanText collapses whitespace and drops a leading ": " left over from
// scraped "Field: value" text.
func cleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if strings.HasPrefix(s, ":") {
		s = strings.TrimSpace(s[1:])
	}
	return s
}

// escapeLine keeps display text from turning into a Markdown heading.
func escapeLine(s string) string {
	if strings.HasPrefix(s, "#") {
		return `\` + s
	}
	return s
}

// humanize turns "initial-access" or "data_source" into "Initial Access" / "Data Source".
func humanize(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// inline renders v on a single line for structured sections.
func inline(v jsonvalue.Value) string {
	switch v.Kind() {
	case jsonvalue.KindNull:
		return "(none)"
	case jsonvalue.KindArray:
		parts := make([]string, 0, v.Len())
		for _, item := range v.Items() {
			if s := inline(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case jsonvalue.KindObject:
		return objectSummary(v.Object())
	default:
		return cleanText(v.Text())
	}
}

// block renders v as the body of a structured section: scalars as text,
// arrays as bullet lists, objects as bold key lines.
func block(v jsonvalue.Value) string {
	switch v.Kind() {
	case jsonvalue.KindArray:
		var lines []string
		for _, item := range v.Items() {
			if s := inline(item); s != "" {
				lines = append(lines, "- "+s)
			}
		}
		return strings.Join(lines, "\n")
	case jsonvalue.KindObject:
		if s, ok := knownShape(v.Object()); ok {
			return escapeLine(s)
		}
		var lines []string
		for _, m := range v.Object().Members() {
			if s := inline(m.Value); s != "" {
				lines = append(lines, "- **"+humanize(m.Key)+":** "+s)
			}
		}
		return strings.Join(lines, "\n")
	case jsonvalue.KindNull:
		return ""
	default:
		return escapeLine(cleanText(v.Text()))
	}
}

func str(obj *jsonvalue.Object, keys ...string) string {
	for _, k := range keys {
		if m, ok := obj.GetFold(k); ok && !m.Value.IsContainer() {
			if s := cleanText(m.Value.Text()); s != "" {
				return s
			}
		}
	}
	return ""
}

// knownShape formats the object layouts that recur across CTI feeds.
func knownShape(obj *jsonvalue.Object) (string, bool) {
	switch {
	case obj.HasKeyFold("phase_name"):
		s := humanize(str(obj, "phase_name"))
		if chain := str(obj, "kill_chain_name"); chain != "" {
			s += " (" + chain + ")"
		}
		return s, true

	case obj.HasKeyFold("source_name"):
		s := str(obj, "source_name")
		if id := str(obj, "external_id"); id != "" {
			s += ": " + id
		}
		if d := str(obj, "description"); d != "" {
			s += " - " + d
		}
		if u := str(obj, "url"); u != "" {
			s += " (" + u + ")"
		}
		return s, true

	case obj.HasKeyFold("vendor"):
		s := str(obj, "vendor")
		if p := str(obj, "product"); p != "" {
			s += " " + p
		} else if m, ok := obj.GetFold("products"); ok && m.Value.Kind() == jsonvalue.KindArray {
			s += ": " + inline(m.Value)
		}
		return s, true

	case obj.HasKeyFold("cve") || obj.HasKeyFold("cves"):
		m, _ := obj.GetFold("cve")
		if m.Value.IsNull() {
			m, _ = obj.GetFold("cves")
		}
		s := inline(m.Value)
		if u := str(obj, "url", "link"); u != "" {
			s += " (" + u + ")"
		}
		return s, true

	case (obj.HasKeyFold("id") || obj.HasKeyFold("technique_id")) && (obj.HasKeyFold("name") || obj.HasKeyFold("technique_name")):
		id := str(obj, "technique_id", "id")
		name := str(obj, "technique_name", "name")
		if t := str(obj, "type"); t != "" {
			return t + ": " + name + " (" + id + ")", true
		}
		return id + " - " + name, true
	}
	return "", false
}

// objectSummary renders an object on one line, using known shapes first and
// "key: value; ..." otherwise.
func objectSummary(obj *jsonvalue.Object) string {
	if s, ok := knownShape(obj); ok {
		return s
	}
	parts := make([]string, 0, obj.Len())
	for _, m := range obj.Members() {
		var val string
		if m.Value.IsContainer() {
			val = string(m.Value.AppendJSON(nil))
		} else {
			val = inline(m.Value)
		}
		parts = append(parts, m.Key+": "+val)
	}
	return strings.Join(parts, "; ")
}
