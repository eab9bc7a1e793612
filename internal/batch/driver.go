// Package batch converts directories of CTI JSON into a Markdown tree.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/ctidoc/internal/dlq"
	"github.com/telhawk-systems/ctidoc/internal/logging"
	"github.com/telhawk-systems/ctidoc/internal/metrics"
	"github.com/telhawk-systems/ctidoc/internal/sink"
	"github.com/telhawk-systems/ctidoc/internal/stats"
	"github.com/telhawk-systems/ctidoc/pkg/chunking"
	"github.com/telhawk-systems/ctidoc/pkg/pipeline"
)

// Options control a batch run.
type Options struct {
	OutputDir     string
	Workers       int
	SplitArrays   bool
	SkipUnchanged bool
	Frontmatter   bool
	// Chunking enables splitting of documents over the chunk budget.
	Chunking bool
	Chunk    chunking.Config
	// Timeout bounds the whole run; zero means none.
	Timeout time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions(outputDir string) Options {
	return Options{
		OutputDir:   outputDir,
		Workers:     runtime.NumCPU(),
		SplitArrays: true,
		Frontmatter: true,
		Chunking:    true,
		Chunk:       chunking.DefaultConfig(),
	}
}

// Driver runs conversions. A Driver may run several times but not concurrently
// with itself.
type Driver struct {
	conv    *pipeline.Converter
	chunker *chunking.Chunker
	opts    Options
	queue   *dlq.Queue
	sinks   []sink.Sink
	logger  *logging.Logger

	// claimed maps output paths of the current run to the record that wrote them.
	mu      sync.Mutex
	claimed map[string]string
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithDLQ records failed records in q.
func WithDLQ(q *dlq.Queue) DriverOption {
	return func(d *Driver) { d.queue = q }
}

// WithSinks forwards converted records to sinks.
func WithSinks(sinks ...sink.Sink) DriverOption {
	return func(d *Driver) { d.sinks = append(d.sinks, sinks...) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

// New validates opts and creates a Driver.
func New(conv *pipeline.Converter, opts Options, dopts ...DriverOption) (*Driver, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	chunker, err := chunking.New(opts.Chunk)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		conv:    conv,
		chunker: chunker,
		opts:    opts,
		logger:  logging.Discard(),
	}
	for _, o := range dopts {
		o(d)
	}
	return d, nil
}

// Close closes the sinks.
func (d *Driver) Close() error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Run converts every source file under source. Per-record failures are
// counted in the summary and never stop the run. The returned error is
// non-nil only when the source cannot be read or the run timed out; the
// summary is returned in both cases.
func (d *Driver) Run(ctx context.Context, source string) (*stats.Summary, error) {
	root, files, err := Discover(source)
	if err != nil {
		return stats.NewSummary(), err
	}
	return d.RunFiles(ctx, root, files)
}

// RunFiles converts files; record IDs are relative to root.
func (d *Driver) RunFiles(ctx context.Context, root string, files []string) (*stats.Summary, error) {
	start := time.Now()
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	d.mu.Lock()
	d.claimed = make(map[string]string)
	d.mu.Unlock()

	if err := os.MkdirAll(d.opts.OutputDir, 0o755); err != nil {
		return stats.NewSummary(), fmt.Errorf("create output directory: %w", err)
	}

	jobs := make(chan Input)
	g, gctx := errgroup.WithContext(ctx)

	producer := stats.NewSummary()
	g.Go(func() error {
		defer close(jobs)
		for _, path := range files {
			producer.RecordFile()
			id := relID(root, path)
			err := ReadRecords(path, id, d.opts.SplitArrays, func(in Input) error {
				select {
				case jobs <- in:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	parts := make([]*stats.Summary, d.opts.Workers)
	for i := range parts {
		sum := stats.NewSummary()
		parts[i] = sum
		g.Go(func() error {
			for in := range jobs {
				d.process(gctx, in, sum)
			}
			return nil
		})
	}

	runErr := g.Wait()

	total := stats.Reduce(append(parts, producer)...)
	total.RunID = logging.RunIDFrom(ctx)
	total.Duration = time.Since(start)

	if runErr == nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		d.logger.WarnContext(ctx, "run stopped early", logging.Error(runErr))
		return total, fmt.Errorf("run stopped: %w", runErr)
	}

	d.logger.InfoContext(ctx, "run complete",
		"records", total.Records,
		"converted", total.Converted,
		"failed", total.Failed,
		logging.Duration(total.Duration))
	return total, nil
}

// process converts one record and writes its files. It never returns an
// error: failures are logged, queued and counted.
func (d *Driver) process(ctx context.Context, in Input, sum *stats.Summary) {
	log := d.logger.With(logging.Source(in.ID))

	if in.Err != nil {
		d.fail(ctx, log, in, in.Err, sum)
		return
	}
	if err := ctx.Err(); err != nil {
		d.fail(ctx, log, in, err, sum)
		return
	}

	started := time.Now()
	res, err := d.conv.Convert(in.Value)
	metrics.RenderDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		d.fail(ctx, log, in, err, sum)
		return
	}
	for _, w := range res.Warnings {
		log.WarnContext(ctx, "record converted with warning",
			logging.Condition(Condition(w)), logging.Error(w))
	}

	md := res.Document.Markdown()
	var chunks []chunking.Chunk
	if d.opts.Chunking && d.chunker.NeedsSplit(md) {
		chunks = d.chunker.Split(md)
		if len(chunks) < 2 {
			chunks = nil
		}
	}

	digest := pipeline.RecordDigest(in.Value)
	files, err := layout(res, in.ID, digest, chunks, d.opts.Frontmatter)
	if err != nil {
		d.fail(ctx, log, in, err, sum)
		return
	}

	category := res.Category.String()
	if d.opts.SkipUnchanged && upToDate(d.abs(files[0].rel), digest, len(chunks)) {
		sum.RecordSkipped()
		metrics.RecordsTotal.WithLabelValues(category, metrics.StatusSkipped).Inc()
		log.DebugContext(ctx, "unchanged, skipped", logging.Path(files[0].rel))
		return
	}

	// a record whose conversion outlived the run is not written
	if err := ctx.Err(); err != nil {
		d.fail(ctx, log, in, err, sum)
		return
	}

	// paths are claimed before writing so a concurrent prune leaves them alone
	for _, f := range files {
		if prev, dup := d.claim(f.rel, in.ID); dup {
			sum.RecordCollision()
			log.WarnContext(ctx, "output path collision, file overwritten",
				logging.Path(f.rel), "previous_source", prev)
		}
	}
	if err := d.write(files); err != nil {
		d.fail(ctx, log, in, err, sum)
		return
	}
	whole := pipeline.SuggestOutputPath(res.Record, res.Resolved, res.Category, pipeline.NoChunk)
	if err := d.prune(ctx, log, whole, len(chunks)); err != nil {
		log.WarnContext(ctx, "stale outputs not removed", logging.Error(err))
	}

	sum.RecordConverted(category, len(files), len(chunks), res.Unresolved())
	metrics.RecordsTotal.WithLabelValues(category, metrics.StatusConverted).Inc()
	metrics.FilesWrittenTotal.Add(float64(len(files)))
	metrics.ChunksTotal.Add(float64(len(chunks)))
	log.DebugContext(ctx, "record converted",
		logging.Category(category),
		logging.Path(files[0].rel),
		logging.Chunks(len(chunks)))

	if len(d.sinks) == 0 {
		return
	}
	out := &sink.Output{
		Source:   in.ID,
		Category: res.Category,
		Title:    res.Document.Title,
		Digest:   digest,
		Markdown: md,
		Files:    make([]sink.File, len(files)),
	}
	for i, f := range files {
		out.Files[i] = f.File
	}
	for _, s := range d.sinks {
		if err := s.Publish(ctx, out); err != nil {
			sum.RecordSinkError()
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			log.ErrorContext(ctx, "sink publish failed",
				"sink", s.Name(), logging.Condition(ConditionSink), logging.Error(err))
		}
	}
}

func (d *Driver) abs(rel string) string {
	return filepath.Join(d.opts.OutputDir, filepath.FromSlash(rel))
}

// write writes all files of a record, removing the ones already written if a later one fails.
func (d *Driver) write(files []outFile) error {
	for i, f := range files {
		if err := writeAtomic(d.abs(f.rel), f.data); err != nil {
			for _, done := range files[:i] {
				_ = os.Remove(d.abs(done.rel))
			}
			return err
		}
	}
	return nil
}

// prune removes what an earlier run wrote for the document at whole that the
// current layout of total chunks replaced. Paths claimed in this run are kept.
func (d *Driver) prune(ctx context.Context, log *logging.Logger, whole string, total int) error {
	stale, err := stalePaths(d.opts.OutputDir, whole, total)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for _, rel := range stale {
		if _, claimed := d.claimed[rel]; claimed {
			continue
		}
		if err := os.Remove(d.abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		log.DebugContext(ctx, "removed stale output", logging.Path(rel))
	}
	return errors.Join(errs...)
}

func (d *Driver) claim(rel, source string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, dup := d.claimed[rel]
	d.claimed[rel] = source
	return prev, dup
}

func (d *Driver) fail(ctx context.Context, log *logging.Logger, in Input, err error, sum *stats.Summary) {
	cond := Condition(err)
	sum.RecordFailure(cond)
	metrics.RecordErrors.WithLabelValues(cond).Inc()
	metrics.RecordsTotal.WithLabelValues("unknown", metrics.StatusFailed).Inc()

	if cond == ConditionCanceled {
		log.DebugContext(ctx, "record not written, run stopped")
		return
	}
	log.ErrorContext(ctx, "record skipped", logging.Condition(cond), logging.Error(err))

	// the run context may already be done; the entry must still be written
	qerr := d.queue.Write(context.WithoutCancel(ctx), dlq.FailedRecord{
		Source:    in.ID,
		Condition: cond,
		Error:     err.Error(),
		Record:    in.Raw,
	})
	if qerr != nil {
		log.ErrorContext(ctx, "dlq write failed", logging.Error(qerr))
	}
}
