package chunking

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// sectionStarts returns the offsets of the lines that open a Markdown
// heading, excluding offset 0. Heading-like lines inside code blocks are not
// headings and are not returned.
func sectionStarts(src string) []int {
	source := []byte(src)
	root := markdown.Parser().Parse(text.NewReader(source))

	var starts []int
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		pos := h.Lines().At(0).Start
		for pos > 0 && source[pos-1] != '\n' {
			pos--
		}
		if pos > 0 {
			starts = append(starts, pos)
		}
		return ast.WalkSkipChildren, nil
	})

	sort.Ints(starts)
	return dedupe(starts)
}

// paragraphStarts returns the offsets within (start, end) of non-blank lines
// that follow a blank line.
func paragraphStarts(src string, start, end int) []int {
	var starts []int
	prevBlank := false
	for pos := start; pos < end; {
		next := strings.IndexByte(src[pos:end], '\n')
		lineEnd := end
		if next >= 0 {
			lineEnd = pos + next + 1
		}
		blank := strings.TrimSpace(src[pos:lineEnd]) == ""
		if !blank && prevBlank && pos > start {
			starts = append(starts, pos)
		}
		prevBlank = blank
		pos = lineEnd
	}
	return starts
}

// spans cuts [start, end) at the given interior offsets.
func spans(start, end int, cuts []int) [][2]int {
	out := make([][2]int, 0, len(cuts)+1)
	prev := start
	for _, c := range cuts {
		if c <= prev || c >= end {
			continue
		}
		out = append(out, [2]int{prev, c})
		prev = c
	}
	return append(out, [2]int{prev, end})
}

func dedupe(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
