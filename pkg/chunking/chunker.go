// Package chunking splits Markdown documents into overlapping chunks that fit
// a token budget, preferring section and paragraph boundaries.
//
// The bodies of the chunks of a text concatenate back to the text exactly.
// Each chunk after the first is prefixed with a verbatim copy of the end of
// the previous body, and that overlap counts against the budget.
package chunking

import (
	"fmt"
	"strings"
)

// Chunk is one piece of a split document.
type Chunk struct {
	// Index is the 0-based position of the chunk.
	Index int `json:"index"`
	Total int `json:"total"`
	// Tokens counts Overlap and Body together.
	Tokens int `json:"tokens"`
	// Overlap repeats the end of the previous chunk's body.
	Overlap string `json:"overlap,omitempty"`
	// Body is the part of the document owned by this chunk.
	Body            string `json:"body"`
	OverlapWithPrev bool   `json:"overlap_with_prev"`
}

// Number is the 1-based position used in headers and file names.
func (c Chunk) Number() int { return c.Index + 1 }

// Text returns the chunk content: overlap followed by body.
func (c Chunk) Text() string { return c.Overlap + c.Body }

// Header returns the comment lines that label a chunk.
func (c Chunk) Header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- CHUNK %d of %d -->\n", c.Number(), c.Total)
	fmt.Fprintf(&b, "<!-- Tokens: ~%d -->\n", c.Tokens)
	if c.OverlapWithPrev {
		fmt.Fprintf(&b, "<!-- Overlap: continues from chunk %d -->\n", c.Number()-1)
	}
	return b.String()
}

// Markdown returns the header, a blank line and the chunk text.
func (c Chunk) Markdown() string {
	return c.Header() + "\n" + c.Text()
}

// Join concatenates chunk bodies, reproducing the original text.
func Join(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Body)
	}
	return b.String()
}

// Chunker splits text with a fixed configuration. It is safe for concurrent use.
type Chunker struct {
	cfg     Config
	overlap int
}

// New validates cfg and returns a Chunker.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg, overlap: cfg.OverlapTokens()}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config { return c.cfg }

// NeedsSplit reports whether text exceeds the budget.
func (c *Chunker) NeedsSplit(text string) bool {
	return CountTokens(text) > c.cfg.Budget
}

// Split divides text into chunks. Text within the budget yields a single
// chunk; empty text yields none.
func (c *Chunker) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	p := &packer{text: text, budget: c.cfg.Budget, overlap: c.overlap}
	for _, s := range spans(0, len(text), sectionStarts(text)) {
		p.place(s[0], s[1], levelSection)
	}
	bodies := p.finish()

	chunks := make([]Chunk, len(bodies))
	for i, b := range bodies {
		chunk := Chunk{Index: i, Total: len(bodies), Body: text[b.start:b.end]}
		if i > 0 {
			prev := bodies[i-1]
			chunk.Overlap = tail(text[prev.start:prev.end], min(c.overlap, prev.tokens))
			chunk.OverlapWithPrev = chunk.Overlap != ""
		}
		chunk.Tokens = b.tokens + CountTokens(chunk.Overlap)
		chunks[i] = chunk
	}
	return chunks
}

// Split is a convenience wrapper: it validates the parameters and splits text.
func Split(text string, budget int, overlapRatio float64) ([]Chunk, error) {
	c, err := New(Config{Budget: budget, OverlapRatio: overlapRatio})
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

const (
	levelSection = iota
	levelParagraph
	levelWord
)

type body struct {
	start, end, tokens int
}

// packer fills chunks greedily from contiguous pieces of text.
type packer struct {
	text    string
	budget  int
	overlap int

	closed []body
	cur    body
}

// capacity is the body budget of the open chunk.
func (p *packer) capacity() int {
	if len(p.closed) == 0 {
		return p.budget
	}
	return p.budget - min(p.overlap, p.closed[len(p.closed)-1].tokens)
}

// nextCapacity is the body budget of the chunk that would follow the open one.
func (p *packer) nextCapacity() int {
	return p.budget - min(p.overlap, p.cur.tokens)
}

func (p *packer) take(end, tokens int) {
	p.cur.end = end
	p.cur.tokens += tokens
}

func (p *packer) flush() {
	p.closed = append(p.closed, p.cur)
	p.cur = body{start: p.cur.end, end: p.cur.end}
}

func (p *packer) place(start, end, level int) {
	n := CountTokens(p.text[start:end])
	if n == 0 || p.cur.tokens+n <= p.capacity() {
		p.take(end, n)
		return
	}
	if p.cur.tokens > 0 && n <= p.nextCapacity() {
		p.flush()
		p.take(end, n)
		return
	}

	switch level {
	case levelSection:
		for _, s := range spans(start, end, paragraphStarts(p.text, start, end)) {
			p.place(s[0], s[1], levelParagraph)
		}
	default:
		p.words(start, end)
	}
}

// words fills chunks to capacity, cutting at word starts.
func (p *packer) words(start, end int) {
	starts := wordStarts(p.text[start:end])
	for i := 0; i < len(starts); {
		room := p.capacity() - p.cur.tokens
		if room <= 0 {
			p.flush()
			continue
		}
		left := len(starts) - i
		if left <= room {
			p.take(end, left)
			return
		}
		p.take(start+starts[i+room], room)
		i += room
		p.flush()
	}
	p.take(end, 0)
}

// finish closes the open chunk. Trailing whitespace joins the last body.
func (p *packer) finish() []body {
	switch {
	case p.cur.tokens > 0:
		p.flush()
	case p.cur.end > p.cur.start:
		if len(p.closed) == 0 {
			p.flush()
		} else {
			p.closed[len(p.closed)-1].end = p.cur.end
		}
	}
	return p.closed
}
