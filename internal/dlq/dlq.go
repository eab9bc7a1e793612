// Package dlq is a file-backed dead-letter queue for records that could not
// be converted.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/ctidoc/internal/logging"
)

// ErrDisabled is returned by read operations on a nil queue.
var ErrDisabled = errors.New("dlq not enabled")

// FailedRecord captures a conversion failure for later analysis or replay.
type FailedRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Condition string          `json:"condition"`
	Error     string          `json:"error"`
	Record    json.RawMessage `json:"record,omitempty"`

	// File is the entry's file name, filled in by List.
	File string `json:"-"`
}

// Stats describes the queue.
type Stats struct {
	Enabled      bool   `json:"enabled"`
	Written      uint64 `json:"written"`
	PendingFiles int    `json:"pending_files"`
	BasePath     string `json:"base_path,omitempty"`
}

// Queue writes failed records to disk. A nil *Queue accepts writes and drops them.
type Queue struct {
	basePath string
	logger   *logging.Logger
	mu       sync.Mutex
	written  uint64
}

// NewQueue creates a DLQ that writes to the specified directory.
func NewQueue(basePath string, logger *logging.Logger) (*Queue, error) {
	if basePath == "" {
		return nil, errors.New("dlq path is empty")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}

	return &Queue{
		basePath: basePath,
		logger:   logger,
	}, nil
}

// Path returns the queue directory.
func (q *Queue) Path() string {
	if q == nil {
		return ""
	}
	return q.basePath
}

// Write records a failed record. Record may be nil when the input could not be decoded;
// raw bytes that are not valid JSON are stored as a JSON string.
func (q *Queue) Write(ctx context.Context, failed FailedRecord) error {
	if q == nil {
		return nil
	}
	if failed.Timestamp.IsZero() {
		failed.Timestamp = time.Now().UTC()
	}
	if len(failed.Record) > 0 && !json.Valid(failed.Record) {
		quoted, err := json.Marshal(string(failed.Record))
		if err != nil {
			return fmt.Errorf("marshal dlq record: %w", err)
		}
		failed.Record = quoted
	}

	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		name := fmt.Sprintf("failed_%d_%d.json", failed.Timestamp.Unix(), q.written)
		q.written++

		f, err := os.OpenFile(filepath.Join(q.basePath, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("write dlq entry: %w", err)
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr = errors.Join(werr, cerr); werr != nil {
			return fmt.Errorf("write dlq entry: %w", werr)
		}

		q.logger.DebugContext(ctx, "dlq entry written",
			logging.Path(name),
			logging.Source(failed.Source),
			logging.Condition(failed.Condition))
		return nil
	}
}

// Stats returns DLQ counters.
func (q *Queue) Stats() Stats {
	if q == nil {
		return Stats{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	st := Stats{Enabled: true, Written: q.written, BasePath: q.basePath}
	names, err := q.entries()
	if err != nil {
		q.logger.Error("failed to read dlq directory", logging.Error(err))
		return st
	}
	st.PendingFiles = len(names)
	return st
}

// List returns up to limit entries, oldest first. limit <= 0 means all.
func (q *Queue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	if q == nil {
		return nil, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.entries()
	if err != nil {
		return nil, err
	}

	var records []FailedRecord
	for _, name := range names {
		if limit > 0 && len(records) >= limit {
			break
		}

		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			q.logger.WarnContext(ctx, "failed to read dlq file", logging.Path(name), logging.Error(err))
			continue
		}

		var failed FailedRecord
		if err := json.Unmarshal(data, &failed); err != nil {
			q.logger.WarnContext(ctx, "failed to parse dlq file", logging.Path(name), logging.Error(err))
			continue
		}
		failed.File = name
		records = append(records, failed)
	}

	return records, nil
}

// Delete removes one entry by file name.
func (q *Queue) Delete(ctx context.Context, name string) error {
	if q == nil {
		return ErrDisabled
	}
	if name != filepath.Base(name) || !isEntry(name) {
		return fmt.Errorf("not a dlq entry: %q", name)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
		return fmt.Errorf("delete dlq file: %w", err)
	}
	q.logger.DebugContext(ctx, "dlq entry deleted", logging.Path(name))
	return nil
}

// Purge removes all entries and returns how many were deleted.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.entries()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
			q.logger.WarnContext(ctx, "failed to delete dlq file", logging.Path(name), logging.Error(err))
			continue
		}
		deleted++
	}

	q.logger.InfoContext(ctx, "dlq purged", "deleted", deleted)
	return deleted, nil
}

// entries lists entry file names sorted by timestamp then sequence. Callers hold mu.
func (q *Queue) entries() ([]string, error) {
	files, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}
	var names []string
	for _, f := range files {
		if f.IsDir() || !isEntry(f.Name()) {
			continue
		}
		names = append(names, f.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		ti, si := entryKey(names[i])
		tj, sj := entryKey(names[j])
		if ti != tj {
			return ti < tj
		}
		return si < sj
	})
	return names, nil
}

func isEntry(name string) bool {
	return strings.HasPrefix(name, "failed_") && strings.HasSuffix(name, ".json")
}

func entryKey(name string) (ts, seq int64) {
	_, _ = fmt.Sscanf(name, "failed_%d_%d.json", &ts, &seq)
	return ts, seq
}
