package batch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

// Input is one record read from a source file, or the failure to read one.
type Input struct {
	// ID names the record: the file path relative to the source root, with
	// "#i" (array element, 0-based) or "#n" (JSON Lines line, 1-based) appended.
	ID    string
	Raw   []byte
	Value jsonvalue.Value
	Err   error
}

// IsSourceFile reports whether name has an extension the driver reads.
func IsSourceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonl", ".ndjson":
		return true
	}
	return false
}

func isLines(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jsonl" || ext == ".ndjson"
}

// Discover lists the source files under source, sorted. A file source is
// returned as is. Hidden directories are skipped.
func Discover(source string) (root string, files []string, err error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", nil, fmt.Errorf("source: %w", err)
	}
	if !info.IsDir() {
		return filepath.Dir(source), []string{source}, nil
	}

	err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != source && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsSourceFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("walk %s: %w", source, err)
	}
	sort.Strings(files)
	return source, files, nil
}

// relID is path relative to root with forward slashes.
func relID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// ReadRecords reads the records of one file and passes each to fn. Decode
// failures are passed as an Input with Err set. An error from fn stops reading
// and is returned.
func ReadRecords(path, id string, splitArrays bool, fn func(Input) error) error {
	if isLines(path) {
		return readLines(path, id, fn)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fn(Input{ID: id, Err: fmt.Errorf("%w: %w", ErrDecode, err)})
	}
	v, err := jsonvalue.Parse(data)
	if err != nil {
		return fn(Input{ID: id, Raw: data, Err: fmt.Errorf("%w: %w", ErrDecode, err)})
	}

	if splitArrays && splittable(v) {
		for i, item := range v.Items() {
			in := Input{ID: id + "#" + strconv.Itoa(i), Raw: item.AppendJSON(nil), Value: item}
			if err := fn(in); err != nil {
				return err
			}
		}
		return nil
	}
	return fn(Input{ID: id, Raw: data, Value: v})
}

// splittable reports whether v is a non-empty array of objects.
func splittable(v jsonvalue.Value) bool {
	if v.Kind() != jsonvalue.KindArray || v.Len() == 0 {
		return false
	}
	for _, item := range v.Items() {
		if item.Kind() != jsonvalue.KindObject {
			return false
		}
	}
	return true
}

func readLines(path, id string, fn func(Input) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fn(Input{ID: id, Err: fmt.Errorf("%w: %w", ErrDecode, err)})
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for n := 1; ; n++ {
		line, err := r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fn(Input{ID: id + "#" + strconv.Itoa(n), Err: fmt.Errorf("%w: %w", ErrDecode, err)})
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			in := Input{ID: id + "#" + strconv.Itoa(n), Raw: trimmed}
			if v, perr := jsonvalue.Parse(trimmed); perr != nil {
				in.Err = fmt.Errorf("%w: %w", ErrDecode, perr)
			} else {
				in.Value = v
			}
			if ferr := fn(in); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}
