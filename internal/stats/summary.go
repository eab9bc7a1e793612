// Package stats aggregates conversion counters and reports run summaries.
package stats

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/ctidoc/internal/output"
)

// Summary counts the outcome of a conversion run. A Summary is not safe for
// concurrent use: each worker owns one and the driver merges them.
type Summary struct {
	RunID       string         `json:"run_id,omitempty"`
	Files       int            `json:"files"`
	Records     int            `json:"records"`
	Converted   int            `json:"converted"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	Unresolved  int            `json:"unresolved"`
	Chunked     int            `json:"chunked"`
	Chunks      int            `json:"chunks"`
	OutputFiles int            `json:"output_files"`
	Collisions  int            `json:"collisions"`
	SinkErrors  int            `json:"sink_errors"`
	Errors      map[string]int `json:"errors,omitempty"`
	Categories  map[string]int `json:"categories,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// CategoryCount is one row of the per-category breakdown.
type CategoryCount struct {
	Category string
	Files    int
}

func NewSummary() *Summary {
	return &Summary{
		Errors:     make(map[string]int),
		Categories: make(map[string]int),
	}
}

// RecordFile counts a discovered input file.
func (s *Summary) RecordFile() { s.Files++ }

// RecordConverted counts a record written as files output files, chunks of
// which are chunks (0 when it was not split).
func (s *Summary) RecordConverted(category string, files, chunks int, unresolved bool) {
	s.Records++
	s.Converted++
	s.OutputFiles += files
	s.Categories[category] += files
	if chunks > 0 {
		s.Chunked++
		s.Chunks += chunks
	}
	if unresolved {
		s.Unresolved++
	}
}

// RecordSkipped counts a record whose output is already up to date.
func (s *Summary) RecordSkipped() {
	s.Records++
	s.Skipped++
}

// RecordFailure counts a record that was not written, by condition kind.
func (s *Summary) RecordFailure(condition string) {
	s.Records++
	s.Failed++
	s.Errors[condition]++
}

// RecordFileFailure counts an input that failed before any record was produced.
func (s *Summary) RecordFileFailure(condition string) {
	s.Failed++
	s.Errors[condition]++
}

func (s *Summary) RecordCollision() { s.Collisions++ }

func (s *Summary) RecordSinkError() { s.SinkErrors++ }

// Merge adds other's counters to s. Durations are not summed; the driver sets
// the wall-clock duration once.
func (s *Summary) Merge(other *Summary) {
	if other == nil {
		return
	}
	s.Files += other.Files
	s.Records += other.Records
	s.Converted += other.Converted
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Unresolved += other.Unresolved
	s.Chunked += other.Chunked
	s.Chunks += other.Chunks
	s.OutputFiles += other.OutputFiles
	s.Collisions += other.Collisions
	s.SinkErrors += other.SinkErrors
	for k, v := range other.Errors {
		s.Errors[k] += v
	}
	for k, v := range other.Categories {
		s.Categories[k] += v
	}
}

// Reduce merges summaries into a fresh one.
func Reduce(parts ...*Summary) *Summary {
	total := NewSummary()
	for _, p := range parts {
		total.Merge(p)
	}
	return total
}

// ByCategory returns per-category output file counts, largest first, ties by name.
func (s *Summary) ByCategory() []CategoryCount {
	out := make([]CategoryCount, 0, len(s.Categories))
	for c, n := range s.Categories {
		out = append(out, CategoryCount{Category: c, Files: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Files != out[j].Files {
			return out[i].Files > out[j].Files
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Print writes the human-readable report.
func (s *Summary) Print(w io.Writer) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nCONVERSION STATISTICS\n%s\n\n", rule, rule)

	counts := output.NewTable([]string{"Metric", "Count"})
	for _, row := range []struct {
		name string
		n    int
	}{
		{"Input files", s.Files},
		{"Records", s.Records},
		{"Converted", s.Converted},
		{"Skipped (unchanged)", s.Skipped},
		{"Failed", s.Failed},
		{"Unresolved (generic)", s.Unresolved},
		{"Chunked records", s.Chunked},
		{"Chunks", s.Chunks},
		{"Markdown files", s.OutputFiles},
		{"Path collisions", s.Collisions},
		{"Sink errors", s.SinkErrors},
	} {
		counts.AddRow([]string{row.name, strconv.Itoa(row.n)})
	}
	counts.RenderTo(w)

	cats := s.ByCategory()
	if len(cats) > 0 {
		fmt.Fprintln(w)
		table := output.NewTable([]string{"Category", "Files", "Share"})
		for _, c := range cats {
			table.AddRow([]string{c.Category, strconv.Itoa(c.Files), percent(c.Files, s.OutputFiles)})
		}
		table.RenderTo(w)
	}

	if len(cats) > 3 {
		fmt.Fprintln(w, "\nTop categories by file count:")
		for _, c := range cats[:3] {
			fmt.Fprintf(w, "  %s: %d files (%s)\n", c.Category, c.Files, percent(c.Files, s.OutputFiles))
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(w)
		conds := make([]string, 0, len(s.Errors))
		for c := range s.Errors {
			conds = append(conds, c)
		}
		sort.Strings(conds)
		table := output.NewTable([]string{"Condition", "Count"})
		for _, c := range conds {
			table.AddRow([]string{c, strconv.Itoa(s.Errors[c])})
		}
		table.RenderTo(w)
	}

	fmt.Fprintf(w, "\nTotal time: %s\n%s\n", s.Duration.Round(time.Millisecond), rule)
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
