package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across commands.
const (
	FieldRunID     = "run_id"
	FieldSource    = "source"
	FieldCategory  = "category"
	FieldCondition = "condition"
	FieldPath      = "path"
	FieldChunks    = "chunks"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

// RunID returns a slog attribute for the run ID.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// Source returns a slog attribute for a record's source identifier.
func Source(id string) slog.Attr {
	return slog.String(FieldSource, id)
}

// Category returns a slog attribute for a document category.
func Category(c string) slog.Attr {
	return slog.String(FieldCategory, c)
}

// Condition returns a slog attribute for a failure condition kind.
func Condition(kind string) slog.Attr {
	return slog.String(FieldCondition, kind)
}

// Path returns a slog attribute for an output path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Chunks returns a slog attribute for a chunk count.
func Chunks(n int) slog.Attr {
	return slog.Int(FieldChunks, n)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
