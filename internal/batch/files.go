package batch

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/ctidoc/internal/sink"
	"github.com/telhawk-systems/ctidoc/pkg/chunking"
	"github.com/telhawk-systems/ctidoc/pkg/pipeline"
)

// FrontMatter is the YAML header written at the top of every output file.
type FrontMatter struct {
	Title        string `yaml:"title" json:"title"`
	Category     string `yaml:"category" json:"category"`
	Source       string `yaml:"source" json:"source"`
	SourceSHA256 string `yaml:"source_sha256" json:"source_sha256"`
	Chunk        int    `yaml:"chunk,omitempty" json:"chunk,omitempty"`
	Chunks       int    `yaml:"chunks,omitempty" json:"chunks,omitempty"`
	Tokens       int    `yaml:"tokens" json:"tokens"`
	Overlap      bool   `yaml:"overlap,omitempty" json:"overlap,omitempty"`
}

// ReadFrontMatter parses the header of a generated file and returns it with the body.
func ReadFrontMatter(path string) (FrontMatter, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FrontMatter{}, nil, err
	}
	var fm FrontMatter
	body, err := frontmatter.Parse(bytes.NewReader(data), &fm)
	if err != nil {
		return FrontMatter{}, nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return fm, body, nil
}

// upToDate reports whether path exists and was generated from a record with
// digest into the same number of chunks (0 for a whole document).
func upToDate(path, digest string, chunks int) bool {
	fm, _, err := ReadFrontMatter(path)
	return err == nil && fm.SourceSHA256 == digest && fm.Chunks == chunks
}

// stalePaths lists the files under outDir that an earlier run may have written
// for the document whose whole path is whole, but that a layout of total
// chunks does not produce: the whole document when total > 0, and chunk files
// numbered above total. Paths are slash-separated and relative to outDir.
func stalePaths(outDir, whole string, total int) ([]string, error) {
	dir, name := path.Split(whole)
	prefix := strings.TrimSuffix(name, ".md") + "_chunk_"

	var stale []string
	if total > 0 {
		if _, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(whole))); err == nil {
			stale = append(stale, whole)
		}
	}

	entries, err := os.ReadDir(filepath.Join(outDir, filepath.FromSlash(dir)))
	if errors.Is(err, fs.ErrNotExist) {
		return stale, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, ".md") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(n, prefix), ".md")
		if num == "" || strings.Trim(num, "0123456789") != "" {
			continue
		}
		idx, err := strconv.Atoi(num)
		if err != nil || idx <= total {
			continue
		}
		// a whole document whose own slug ends in _chunk_<n>
		if fm, _, err := ReadFrontMatter(filepath.Join(outDir, filepath.FromSlash(dir), n)); err == nil && fm.Source != "" && fm.Chunk == 0 {
			continue
		}
		stale = append(stale, dir+n)
	}
	return stale, nil
}

// outFile is a file ready to be written.
type outFile struct {
	rel  string // slash-separated, relative to the output dir
	data []byte
	sink.File
}

// layout turns a converted record into its output files.
func layout(res *pipeline.Result, source, digest string, chunks []chunking.Chunk, withFrontmatter bool) ([]outFile, error) {
	doc := res.Document
	fm := FrontMatter{
		Title:        doc.Title,
		Category:     res.Category.String(),
		Source:       source,
		SourceSHA256: digest,
	}

	if len(chunks) == 0 {
		md := doc.Markdown()
		rel := pipeline.SuggestOutputPath(res.Record, res.Resolved, res.Category, pipeline.NoChunk)
		fm.Tokens = chunking.CountTokens(md)
		data, err := compose(fm, md, withFrontmatter)
		if err != nil {
			return nil, err
		}
		return []outFile{{
			rel:  rel,
			data: data,
			File: sink.File{Path: rel, DocID: pipeline.DocumentID(rel), Tokens: fm.Tokens, Text: md},
		}}, nil
	}

	files := make([]outFile, 0, len(chunks))
	for _, c := range chunks {
		rel := pipeline.SuggestOutputPath(res.Record, res.Resolved, res.Category, c.Number())
		fm.Chunk, fm.Chunks, fm.Tokens, fm.Overlap = c.Number(), c.Total, c.Tokens, c.OverlapWithPrev
		data, err := compose(fm, c.Markdown(), withFrontmatter)
		if err != nil {
			return nil, err
		}
		files = append(files, outFile{
			rel:  rel,
			data: data,
			File: sink.File{
				Path:    rel,
				DocID:   pipeline.DocumentID(rel),
				Index:   c.Number(),
				Total:   c.Total,
				Tokens:  c.Tokens,
				Overlap: c.OverlapWithPrev,
				Text:    c.Text(),
			},
		})
	}
	return files, nil
}

func compose(fm FrontMatter, content string, withFrontmatter bool) ([]byte, error) {
	if !withFrontmatter {
		return []byte(content), nil
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}
	var b bytes.Buffer
	b.Grow(len(header) + len(content) + 9)
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	b.WriteString(content)
	return b.Bytes(), nil
}

// writeAtomic writes data to path through a temporary file in the same
// directory, so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmp, err := os.CreateTemp(dir, ".ctidoc-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	return nil
}
