package seeder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CorpusOptions controls WriteCorpus.
type CorpusOptions struct {
	Count int
	Kinds []string
	// ArrayFiles groups the records of each kind into one JSON array file.
	ArrayFiles bool
}

// WriteCorpus writes Count records per kind into dir and returns the file paths.
func (g *Generator) WriteCorpus(dir string, opts CorpusOptions) ([]string, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = Kinds()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}

	var paths []string
	for _, kind := range kinds {
		records := make([]any, 0, opts.Count)
		for i := 0; i < opts.Count; i++ {
			rec, err := g.Record(kind)
			if err != nil {
				return paths, err
			}
			records = append(records, rec)
		}

		if opts.ArrayFiles {
			path := filepath.Join(dir, kind+".json")
			if err := writeJSON(path, records); err != nil {
				return paths, err
			}
			paths = append(paths, path)
			continue
		}
		for i, rec := range records {
			path := filepath.Join(dir, fmt.Sprintf("%s-%04d.json", kind, i))
			if err := writeJSON(path, rec); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
