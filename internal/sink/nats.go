package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/telhawk-systems/ctidoc/internal/messaging"
)

// NATS publishes each document to {prefix}.documents.{category} and, for
// split documents, each chunk to {prefix}.chunks.{category}.
type NATS struct {
	pub    messaging.Publisher
	prefix string
}

// NewNATS wraps pub. The sink owns pub and closes it.
func NewNATS(pub messaging.Publisher, prefix string) *NATS {
	if prefix == "" {
		prefix = "ctidoc"
	}
	return &NATS{pub: pub, prefix: prefix}
}

func (n *NATS) Name() string { return "nats" }

type documentMessage struct {
	Source   string   `json:"source"`
	Category string   `json:"category"`
	Title    string   `json:"title"`
	Digest   string   `json:"source_sha256"`
	Paths    []string `json:"paths"`
	Chunks   int      `json:"chunks"`
	Markdown string   `json:"markdown"`
}

type chunkMessage struct {
	DocID    string `json:"doc_id"`
	Source   string `json:"source"`
	Path     string `json:"path"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Index    int    `json:"chunk_index"`
	Total    int    `json:"chunk_total"`
	Tokens   int    `json:"tokens"`
	Overlap  bool   `json:"overlap"`
	Text     string `json:"text"`
}

func (n *NATS) Publish(ctx context.Context, out *Output) error {
	doc := documentMessage{
		Source:   out.Source,
		Category: out.Category.String(),
		Title:    out.Title,
		Digest:   out.Digest,
		Markdown: out.Markdown,
	}
	for _, f := range out.Files {
		doc.Paths = append(doc.Paths, f.Path)
	}
	if out.Chunked() {
		doc.Chunks = len(out.Files)
	}

	if err := n.send(ctx, messaging.DocumentSubject(n.prefix, doc.Category), out.Source, out.PrimaryPath(), doc); err != nil {
		return err
	}
	if !out.Chunked() {
		return nil
	}

	var errs []error
	for _, f := range out.Files {
		msg := chunkMessage{
			DocID:    f.DocID,
			Source:   out.Source,
			Path:     f.Path,
			Category: doc.Category,
			Title:    out.Title,
			Index:    f.Index,
			Total:    f.Total,
			Tokens:   f.Tokens,
			Overlap:  f.Overlap,
			Text:     f.Text,
		}
		if err := n.send(ctx, messaging.ChunkSubject(n.prefix, doc.Category), out.Source, f.Path, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *NATS) send(ctx context.Context, subject, source, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	err = n.pub.PublishMsg(ctx, &messaging.Message{
		Subject:  subject,
		Data:     data,
		Metadata: map[string]string{"source": source, "path": path},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the publisher.
func (n *NATS) Close() error {
	ctx := context.Background()
	return errors.Join(n.pub.Flush(ctx), n.pub.Close())
}
