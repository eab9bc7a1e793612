package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

// rawWriter walks a record depth first and writes every member, so that each
// leaf scalar appears verbatim in the output.
type rawWriter struct {
	b        strings.Builder
	maxDepth int
}

func headingLevel(depth int) int {
	if depth+1 > 6 {
		return 6
	}
	return depth + 1
}

// isInline reports whether v fits on a "- **key:** value" line.
func isInline(v jsonvalue.Value) bool {
	switch v.Kind() {
	case jsonvalue.KindString:
		return !strings.ContainsAny(v.Str(), "\r\n")
	case jsonvalue.KindArray:
		for _, item := range v.Items() {
			if item.IsContainer() || !isInline(item) {
				return false
			}
		}
		return true
	case jsonvalue.KindObject:
		return v.Len() == 0
	default:
		return true
	}
}

// inlineElem reports whether an array element fits on a numbered list line.
func inlineElem(v jsonvalue.Value) bool {
	return isInline(v) && (v.Kind() != jsonvalue.KindArray || v.Len() == 0)
}

// scalarText renders an inline value's text. Strings are emitted unchanged.
func scalarText(v jsonvalue.Value) string {
	switch v.Kind() {
	case jsonvalue.KindNull:
		return "(none)"
	case jsonvalue.KindString:
		if v.Str() == "" {
			return `""`
		}
		return v.Str()
	case jsonvalue.KindArray:
		return "(empty list)"
	case jsonvalue.KindObject:
		return "(empty object)"
	default:
		return v.Text()
	}
}

// listText is scalarText for text that opens a list item. A leading block
// marker is escaped so the item cannot become a heading or code fence.
func listText(v jsonvalue.Value) string {
	s := scalarText(v)
	if s != "" && strings.ContainsRune("#>`~", rune(s[0])) {
		return `\` + s
	}
	return s
}

func label(path string) string {
	return strings.Join(strings.Fields(path), " ")
}

func (w *rawWriter) heading(depth int, path string) {
	w.b.WriteString(strings.Repeat("#", headingLevel(depth)))
	w.b.WriteByte(' ')
	w.b.WriteString(label(path))
	w.b.WriteString("\n\n")
}

func (w *rawWriter) enter(depth int, path string) error {
	if depth > w.maxDepth {
		if path == "" {
			path = "(root)"
		}
		return fmt.Errorf("%w: %s nests deeper than %d levels", ErrRenderDepthExceeded, path, w.maxDepth)
	}
	return nil
}

func (w *rawWriter) object(path string, obj *jsonvalue.Object, depth int) error {
	if err := w.enter(depth, path); err != nil {
		return err
	}

	wrote := false
	for _, m := range obj.Members() {
		if !isInline(m.Value) {
			continue
		}
		w.b.WriteString("- **")
		w.b.WriteString(label(m.Key))
		w.b.WriteString(":**")
		if m.Value.Kind() == jsonvalue.KindArray && m.Value.Len() > 0 {
			for i, item := range m.Value.Items() {
				w.b.WriteString("\n  ")
				w.b.WriteString(strconv.Itoa(i + 1))
				w.b.WriteString(". ")
				w.b.WriteString(listText(item))
			}
		} else {
			w.b.WriteByte(' ')
			w.b.WriteString(scalarText(m.Value))
		}
		w.b.WriteByte('\n')
		wrote = true
	}
	if wrote {
		w.b.WriteByte('\n')
	}

	for _, m := range obj.Members() {
		if isInline(m.Value) {
			continue
		}
		if err := w.block(jsonvalue.ChildPath(path, m.Key), m.Value, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *rawWriter) array(path string, items []jsonvalue.Value, depth int) error {
	if err := w.enter(depth, path); err != nil {
		return err
	}

	wrote := false
	for i, item := range items {
		if !inlineElem(item) {
			continue
		}
		w.b.WriteString(strconv.Itoa(i + 1))
		w.b.WriteString(". ")
		w.b.WriteString(listText(item))
		w.b.WriteByte('\n')
		wrote = true
	}
	if wrote {
		w.b.WriteByte('\n')
	}

	for i, item := range items {
		if inlineElem(item) {
			continue
		}
		if err := w.block(jsonvalue.ElemPath(path, i), item, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// block writes a titled container or multi-line string.
func (w *rawWriter) block(path string, v jsonvalue.Value, depth int) error {
	w.heading(depth, path)
	switch v.Kind() {
	case jsonvalue.KindObject:
		return w.object(path, v.Object(), depth)
	case jsonvalue.KindArray:
		return w.array(path, v.Items(), depth)
	default:
		w.fenced(v.Str())
		return nil
	}
}

// fenced writes s verbatim inside a code fence longer than any backtick run in s.
func (w *rawWriter) fenced(s string) {
	fence := strings.Repeat("`", max(3, longestRun(s, '`')+1))
	w.b.WriteString(fence)
	w.b.WriteByte('\n')
	w.b.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		w.b.WriteByte('\n')
	}
	w.b.WriteString(fence)
	w.b.WriteString("\n\n")
}

func longestRun(s string, c byte) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}
