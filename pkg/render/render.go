// Package render turns a resolved, classified CTI record into Markdown.
//
// A document opens with a title and a set of structured sections built from
// canonical fields, and always ends with a "Complete Data Structure" section
// that walks the original record so no data is lost.
package render

import (
	"errors"
	"strings"

	"github.com/telhawk-systems/ctidoc/pkg/classifier"
	"github.com/telhawk-systems/ctidoc/pkg/fields"
	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

// ErrRenderDepthExceeded is returned when a record nests deeper than the
// configured depth budget.
var ErrRenderDepthExceeded = errors.New("render depth exceeded")

// DefaultMaxDepth bounds container nesting in the raw data section.
const DefaultMaxDepth = 64

// MaxDepthLimit is the largest accepted MaxDepth.
const MaxDepthLimit = 10000

// RawSectionHeading titles the final section of every document.
const RawSectionHeading = "Complete Data Structure"

// KeyRaw identifies the raw data section.
const KeyRaw = "raw"

// Options tune rendering.
type Options struct {
	// MaxDepth is the deepest container nesting rendered. Zero means
	// DefaultMaxDepth; values above MaxDepthLimit are lowered to it.
	MaxDepth int
}

// Section is one "## Heading" block of a document.
type Section struct {
	// Key is the canonical field or derived key the section came from.
	Key     string
	Heading string
	Body    string
}

// TitleHeading names the Title section returned by Document.Section.
const TitleHeading = "Title"

// Document is a rendered record.
type Document struct {
	Category classifier.Category
	// Title is the body of the Title section. It is written as the "# "
	// heading of the document rather than as a "## " section, and is
	// "Unknown Object" when neither a title nor an identifier resolved.
	Title string
	// titled is set when Title came from resolved fields.
	titled bool
	// Sections are the structured sections in output order.
	Sections []Section
	// Raw is the body of the final raw data section.
	Raw string
}

// Section returns the structured section with the given key. fields.Title
// returns the Title section held in Title.
func (d *Document) Section(key string) (Section, bool) {
	if key == fields.Title {
		return Section{Key: fields.Title, Heading: TitleHeading, Body: d.Title}, d.titled
	}
	for _, s := range d.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// SectionByHeading returns the structured section with the given heading.
func (d *Document) SectionByHeading(heading string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Heading == heading {
			return s, true
		}
	}
	return Section{}, false
}

// Markdown returns the full document text.
func (d *Document) Markdown() string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(d.Title)
	b.WriteString("\n\n*Generated from ")
	b.WriteString(d.Category.Label())
	b.WriteString(" CTI data*\n\n")

	for _, s := range d.Sections {
		b.WriteString("## ")
		b.WriteString(s.Heading)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(s.Body, "\n"))
		b.WriteString("\n\n")
	}

	b.WriteString("## ")
	b.WriteString(RawSectionHeading)
	b.WriteString("\n\n*The following section contains all available data from the original JSON.*\n\n")
	b.WriteString(d.Raw)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Renderer renders documents. It holds no mutable state and is safe for
// concurrent use.
type Renderer struct {
	maxDepth int
}

// New creates a renderer.
func New(opts Options) *Renderer {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	opts.MaxDepth = min(opts.MaxDepth, MaxDepthLimit)
	return &Renderer{maxDepth: opts.MaxDepth}
}

// Render builds the document for record.
func (r *Renderer) Render(record jsonvalue.Value, resolved fields.Resolved, category classifier.Category) (*Document, error) {
	obj := fields.AsRecord(record)

	raw := rawWriter{maxDepth: r.maxDepth}
	if err := raw.object("", obj, 1); err != nil {
		return nil, err
	}

	title, titled := documentTitle(resolved)
	doc := &Document{
		Category: category,
		Title:    escapeLine(title),
		titled:   titled,
		Raw:      raw.b.String(),
	}

	in := input{record: obj, resolved: resolved, category: category}
	for _, spec := range sectionTable {
		if !spec.applies(category) {
			continue
		}
		if body := spec.build(in); strings.TrimSpace(body) != "" {
			doc.Sections = append(doc.Sections, Section{Key: spec.key, Heading: spec.headingFor(category), Body: body})
		}
	}
	doc.Sections = append(doc.Sections, extraSections(resolved)...)
	return doc, nil
}

// extraSections covers canonical fields added through alias overrides.
func extraSections(resolved fields.Resolved) []Section {
	var extra []Section
	for _, e := range resolved.Entries() {
		if handled[e.Field] {
			continue
		}
		if body := block(e.Value); strings.TrimSpace(body) != "" {
			extra = append(extra, Section{Key: e.Field, Heading: humanize(e.Field), Body: body})
		}
	}
	return extra
}
