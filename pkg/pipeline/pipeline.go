// Package pipeline converts CTI records into Markdown documents:
// resolve canonical fields, classify, render.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/telhawk-systems/ctidoc/pkg/classifier"
	"github.com/telhawk-systems/ctidoc/pkg/fields"
	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
	"github.com/telhawk-systems/ctidoc/pkg/render"
)

// ErrUnresolvableRecord marks a record in which no canonical field matched.
// It is reported as a warning: the record is still rendered, as Generic,
// from its raw data alone.
var ErrUnresolvableRecord = errors.New("unresolvable record")

// Result is the outcome of converting one record.
type Result struct {
	Record   jsonvalue.Value
	Resolved fields.Resolved
	Category classifier.Category
	// Rule names the classifier rule that chose Category.
	Rule     string
	Document *render.Document
	// Warnings are non-fatal conditions met while converting.
	Warnings []error
}

// Unresolved reports whether the record matched no canonical field.
func (r *Result) Unresolved() bool {
	for _, w := range r.Warnings {
		if errors.Is(w, ErrUnresolvableRecord) {
			return true
		}
	}
	return false
}

// Converter runs the conversion pipeline. It is immutable after construction
// and safe for concurrent use.
type Converter struct {
	table      *fields.Table
	classifier *classifier.Registry
	renderer   *render.Renderer
}

// Option configures a Converter.
type Option func(*Converter)

// WithTable sets the alias table.
func WithTable(t *fields.Table) Option {
	return func(c *Converter) { c.table = t }
}

// WithClassifier replaces the classification rules.
func WithClassifier(r *classifier.Registry) Option {
	return func(c *Converter) { c.classifier = r }
}

// WithRenderOptions sets renderer options.
func WithRenderOptions(o render.Options) Option {
	return func(c *Converter) { c.renderer = render.New(o) }
}

// NewConverter creates a converter with the default table and rules.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		table:      fields.Default(),
		classifier: classifier.Default(),
		renderer:   render.New(render.Options{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the alias table in use.
func (c *Converter) Table() *fields.Table { return c.table }

// Convert resolves, classifies and renders record. The only error is a
// render failure, which wraps render.ErrRenderDepthExceeded.
func (c *Converter) Convert(record jsonvalue.Value) (*Result, error) {
	res := &Result{Record: record}
	res.Resolved = fields.Resolve(record, c.table)

	if res.Resolved.Empty() {
		res.Category, res.Rule = classifier.Generic, "unresolved"
		res.Warnings = append(res.Warnings, ErrUnresolvableRecord)
	} else {
		res.Category, res.Rule = c.classifier.Classify(record, res.Resolved)
	}

	doc, err := c.renderer.Render(record, res.Resolved, res.Category)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	res.Document = doc
	return res, nil
}
