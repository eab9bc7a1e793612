package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/telhawk-systems/ctidoc/internal/storage"
)

// Indexer is the part of storage.Client the sink needs.
type Indexer interface {
	IndexChunks(ctx context.Context, docs []storage.ChunkDoc) (*storage.IndexResponse, error)
}

// OpenSearch buffers one search document per output file and bulk indexes
// them in batches of bulkSize.
type OpenSearch struct {
	idx      Indexer
	bulkSize int

	mu      sync.Mutex
	pending []storage.ChunkDoc
}

func NewOpenSearch(idx Indexer, bulkSize int) *OpenSearch {
	if bulkSize <= 0 {
		bulkSize = 1
	}
	return &OpenSearch{idx: idx, bulkSize: bulkSize}
}

func (o *OpenSearch) Name() string { return "opensearch" }

func (o *OpenSearch) Publish(ctx context.Context, out *Output) error {
	o.mu.Lock()
	for _, f := range out.Files {
		doc := storage.ChunkDoc{
			DocID:      f.DocID,
			Source:     out.Source,
			Path:       f.Path,
			Category:   out.Category.String(),
			Title:      out.Title,
			ChunkIndex: f.Index,
			ChunkTotal: f.Total,
			Tokens:     f.Tokens,
			Overlap:    f.Overlap,
			Text:       f.Text,
		}
		if doc.ChunkTotal == 0 {
			doc.ChunkIndex, doc.ChunkTotal = 1, 1
		}
		o.pending = append(o.pending, doc)
	}
	var batch []storage.ChunkDoc
	if len(o.pending) >= o.bulkSize {
		batch, o.pending = o.pending, nil
	}
	o.mu.Unlock()

	return o.index(ctx, batch)
}

func (o *OpenSearch) index(ctx context.Context, batch []storage.ChunkDoc) error {
	if len(batch) == 0 {
		return nil
	}
	resp, err := o.idx.IndexChunks(ctx, batch)
	if err != nil {
		return fmt.Errorf("index %d documents: %w", len(batch), err)
	}
	if resp.Failed > 0 {
		return fmt.Errorf("index: %d of %d documents failed: %s",
			resp.Failed, len(batch), strings.Join(resp.Errors, "; "))
	}
	return nil
}

// Flush indexes whatever is buffered.
func (o *OpenSearch) Flush(ctx context.Context) error {
	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	o.mu.Unlock()
	return o.index(ctx, batch)
}

func (o *OpenSearch) Close() error {
	return o.Flush(context.Background())
}
