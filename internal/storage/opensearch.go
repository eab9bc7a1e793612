// Package storage indexes converted documents into OpenSearch so chunks can
// be retrieved by search and RAG consumers.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/telhawk-systems/ctidoc/internal/logging"
)

// Config holds OpenSearch connection and index configuration
type Config struct {
	URL             string
	Username        string
	Password        string
	TLSSkipVerify   bool
	Index           string
	ShardCount      int
	ReplicaCount    int
	RefreshInterval string
	BulkSize        int
}

// DefaultConfig returns sensible defaults for OpenSearch configuration
func DefaultConfig() Config {
	return Config{
		URL:             "https://localhost:9200",
		Username:        "admin",
		Password:        "admin",
		TLSSkipVerify:   true,
		Index:           "ctidoc-chunks",
		ShardCount:      1,
		ReplicaCount:    0,
		RefreshInterval: "5s",
		BulkSize:        500,
	}
}

// ChunkDoc is one searchable unit: a chunk of a split document, or a whole
// document that needed no split.
type ChunkDoc struct {
	DocID      string    `json:"doc_id"`
	Source     string    `json:"source"`
	Path       string    `json:"path"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkTotal int       `json:"chunk_total"`
	Tokens     int       `json:"tokens"`
	Overlap    bool      `json:"overlap"`
	Text       string    `json:"text"`
	IndexedAt  time.Time `json:"@timestamp"`
}

// IndexResponse reports the outcome of a bulk request.
type IndexResponse struct {
	Indexed int
	Failed  int
	Errors  []string
}

// Client writes chunk documents to OpenSearch.
type Client struct {
	osClient *opensearch.Client
	config   Config
	logger   *logging.Logger

	mu          sync.Mutex
	initialized bool
}

// NewClient creates a new OpenSearch client. It does not contact the cluster;
// call Initialize for that.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = DefaultConfig().BulkSize
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // self-signed dev clusters
			},
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Client{
		osClient: client,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Index returns the target index name.
func (c *Client) Index() string {
	return c.config.Index
}

// Initialize verifies the connection and installs the index template.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	// Verify connection
	info, err := c.osClient.Info(c.osClient.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	if err := c.createIndexTemplate(ctx); err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}

	c.initialized = true
	c.logger.InfoContext(ctx, "opensearch initialized", "index", c.config.Index)
	return nil
}

// IndexChunks bulk indexes docs. DocID is used as the document _id so a rerun
// replaces the previous version. Per-item failures are reported in the response,
// not as an error.
func (c *Client) IndexChunks(ctx context.Context, docs []ChunkDoc) (*IndexResponse, error) {
	resp := &IndexResponse{}
	if len(docs) == 0 {
		return resp, nil
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:     c.osClient,
		Index:      c.config.Index,
		NumWorkers: 1,
		FlushBytes: 5 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	// callbacks run on the indexer's worker goroutine
	var mu sync.Mutex
	fail := func(msg string) {
		mu.Lock()
		resp.Failed++
		resp.Errors = append(resp.Errors, msg)
		mu.Unlock()
	}

	for _, doc := range docs {
		if doc.IndexedAt.IsZero() {
			doc.IndexedAt = time.Now().UTC()
		}
		data, err := json.Marshal(doc)
		if err != nil {
			fail(fmt.Sprintf("marshal %s: %v", doc.DocID, err))
			continue
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.DocID,
			Body:       bytes.NewReader(data),
			OnSuccess: func(context.Context, opensearchutil.BulkIndexerItem, opensearchutil.BulkIndexerResponseItem) {
				mu.Lock()
				resp.Indexed++
				mu.Unlock()
			},
			OnFailure: func(_ context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					fail(fmt.Sprintf("%s: %v", item.DocumentID, err))
					return
				}
				fail(fmt.Sprintf("%s: %s: %s", item.DocumentID, res.Error.Type, res.Error.Reason))
			},
		})
		if err != nil {
			fail(fmt.Sprintf("add %s: %v", doc.DocID, err))
		}
	}

	if err := bi.Close(ctx); err != nil {
		return resp, fmt.Errorf("bulk indexer close: %w", err)
	}

	st := bi.Stats()
	c.logger.DebugContext(ctx, "bulk indexed",
		"indexed", st.NumIndexed,
		"failed", st.NumFailed,
		"requests", st.NumRequests)
	return resp, nil
}

// BulkSize is the number of documents a caller should buffer per IndexChunks call.
func (c *Client) BulkSize() int {
	return c.config.BulkSize
}

func (c *Client) templateName() string {
	return c.config.Index + "-template"
}

func (c *Client) createIndexTemplate(ctx context.Context) error {
	template := map[string]interface{}{
		"index_patterns": []string{c.config.Index + "*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   c.config.ShardCount,
				"number_of_replicas": c.config.ReplicaCount,
				"refresh_interval":   c.config.RefreshInterval,
			},
			"mappings": chunkMappings(),
		},
		"priority": 100,
	}

	body, err := json.Marshal(template)
	if err != nil {
		return err
	}

	res, err := c.osClient.Indices.PutIndexTemplate(
		c.templateName(),
		bytes.NewReader(body),
		c.osClient.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s - %s", res.Status(), string(bodyBytes))
	}

	c.logger.DebugContext(ctx, "index template created/updated", "template", c.templateName())
	return nil
}

func chunkMappings() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	integer := map[string]interface{}{"type": "integer"}
	return map[string]interface{}{
		"dynamic": "strict",
		"properties": map[string]interface{}{
			"doc_id":      keyword,
			"source":      keyword,
			"path":        keyword,
			"category":    keyword,
			"chunk_index": integer,
			"chunk_total": integer,
			"tokens":      integer,
			"overlap":     map[string]interface{}{"type": "boolean"},
			"@timestamp":  map[string]interface{}{"type": "date"},
			"title": map[string]interface{}{
				"type": "text",
				"fields": map[string]interface{}{
					"keyword": map[string]interface{}{
						"type":         "keyword",
						"ignore_above": 256,
					},
				},
			},
			"text": map[string]interface{}{
				"type": "text",
			},
		},
	}
}
