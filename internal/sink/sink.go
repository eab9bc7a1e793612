// Package sink forwards converted documents to external systems after they
// have been written to disk.
package sink

import (
	"context"

	"github.com/telhawk-systems/ctidoc/pkg/classifier"
)

// Sink receives every successfully converted record.
type Sink interface {
	Name() string
	Publish(ctx context.Context, out *Output) error
	// Close flushes buffered work.
	Close() error
}

// Output describes one converted record and the files it produced.
type Output struct {
	Source   string              `json:"source"`
	Category classifier.Category `json:"category"`
	Title    string              `json:"title"`
	Digest   string              `json:"source_sha256"`
	// Markdown is the whole rendered document.
	Markdown string `json:"markdown"`
	Files    []File `json:"files"`
}

// File is one written output file. Index is the 1-based chunk number. Unsplit
// documents have a single File with Index and Total of zero.
type File struct {
	Path    string `json:"path"`
	DocID   string `json:"doc_id"`
	Index   int    `json:"index,omitempty"`
	Total   int    `json:"total,omitempty"`
	Tokens  int    `json:"tokens"`
	Overlap bool   `json:"overlap,omitempty"`
	// Text is the content without frontmatter or chunk header.
	Text string `json:"text"`
}

// Chunked reports whether the record was split.
func (o *Output) Chunked() bool {
	return len(o.Files) > 0 && o.Files[0].Total > 0
}

// PrimaryPath is the first written path.
func (o *Output) PrimaryPath() string {
	if len(o.Files) == 0 {
		return ""
	}
	return o.Files[0].Path
}
