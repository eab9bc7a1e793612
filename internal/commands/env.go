package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/ctidoc/internal/batch"
	"github.com/telhawk-systems/ctidoc/internal/config"
	"github.com/telhawk-systems/ctidoc/internal/dlq"
	"github.com/telhawk-systems/ctidoc/internal/logging"
	natsclient "github.com/telhawk-systems/ctidoc/internal/messaging/nats"
	"github.com/telhawk-systems/ctidoc/internal/metrics"
	"github.com/telhawk-systems/ctidoc/internal/sink"
	"github.com/telhawk-systems/ctidoc/internal/stats"
	"github.com/telhawk-systems/ctidoc/internal/storage"
	"github.com/telhawk-systems/ctidoc/pkg/pipeline"
)

// runEnv holds what a conversion command needs: the driver and the optional
// DLQ, sinks and run reporter.
type runEnv struct {
	driver   *batch.Driver
	queue    *dlq.Queue
	reporter *stats.RedisReporter
}

func newConverter(c *config.Config) (*pipeline.Converter, error) {
	table, err := c.AliasTable()
	if err != nil {
		return nil, err
	}
	return pipeline.NewConverter(
		pipeline.WithTable(table),
		pipeline.WithRenderOptions(c.Render.Options()),
	), nil
}

func driverOptions(c *config.Config) batch.Options {
	return batch.Options{
		OutputDir:     c.Output.Dir,
		Workers:       c.Batch.Workers,
		SplitArrays:   c.Batch.SplitArrays,
		SkipUnchanged: c.Batch.SkipUnchanged,
		Frontmatter:   c.Output.Frontmatter,
		Chunking:      c.Chunking.Enabled,
		Chunk:         c.Chunking.ChunkConfig(),
		Timeout:       c.Batch.Timeout,
	}
}

func openEnv(ctx context.Context, c *config.Config, log *logging.Logger) (*runEnv, error) {
	conv, err := newConverter(c)
	if err != nil {
		return nil, err
	}

	env := &runEnv{}
	if c.DLQ.Enabled {
		env.queue, err = dlq.NewQueue(c.DLQ.Path, log)
		if err != nil {
			return nil, err
		}
	}

	sinks, err := openSinks(ctx, c, log)
	if err != nil {
		return nil, err
	}

	env.driver, err = batch.New(conv, driverOptions(c),
		batch.WithDLQ(env.queue),
		batch.WithSinks(sinks...),
		batch.WithLogger(log))
	if err != nil {
		closeSinks(sinks)
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	if c.Redis.Enabled {
		env.reporter, err = openReporter(ctx, c.Redis)
		if err != nil {
			// run reports are best effort
			log.Warn("redis unavailable, run reports disabled", logging.Error(err))
		}
	}
	return env, nil
}

func (e *runEnv) Close() error {
	var errs []error
	if err := e.driver.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.reporter != nil {
		if err := e.reporter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// report publishes a finished run to Redis and the push gateway when configured.
func (e *runEnv) report(ctx context.Context, c *config.Config, log *logging.Logger, sum *stats.Summary) {
	ctx = context.WithoutCancel(ctx)
	if e.reporter != nil {
		if err := e.reporter.Report(ctx, sum); err != nil {
			log.Warn("run report failed", logging.Error(err))
		}
	}
	if c.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(ctx, c.Metrics.PushgatewayURL, c.Metrics.Job, sum.RunID); err != nil {
			log.Warn("metrics push failed", logging.Error(err))
		}
	}
}

func openSinks(ctx context.Context, c *config.Config, log *logging.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if c.NATS.Enabled {
		nc := natsclient.DefaultConfig()
		nc.URL = c.NATS.URL
		nc.MaxReconnects = c.NATS.MaxReconnects
		nc.ReconnectWait = c.NATS.ReconnectWait
		client, err := natsclient.NewClient(nc, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink.NewNATS(client, c.NATS.SubjectPrefix))
		log.Info("publishing to NATS", "url", c.NATS.URL, "subject_prefix", c.NATS.SubjectPrefix)
	}

	if c.OpenSearch.Enabled {
		client, err := storage.NewClient(storage.Config{
			URL:             c.OpenSearch.URL,
			Username:        c.OpenSearch.Username,
			Password:        c.OpenSearch.Password,
			TLSSkipVerify:   c.OpenSearch.TLSSkipVerify,
			Index:           c.OpenSearch.Index,
			ShardCount:      c.OpenSearch.ShardCount,
			ReplicaCount:    c.OpenSearch.ReplicaCount,
			RefreshInterval: c.OpenSearch.RefreshInterval,
			BulkSize:        c.OpenSearch.BulkSize,
		}, log)
		if err == nil {
			err = client.Initialize(ctx)
		}
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, sink.NewOpenSearch(client, client.BulkSize()))
		log.Info("indexing chunks in OpenSearch", "index", client.Index())
	}
	return sinks, nil
}

func closeSinks(sinks []sink.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}

func openReporter(ctx context.Context, rc config.RedisConfig) (*stats.RedisReporter, error) {
	return stats.NewRedisReporter(ctx, rc.URL, rc.KeyPrefix, func(o *redis.Options) {
		if rc.MaxRetries != 0 {
			o.MaxRetries = rc.MaxRetries
		}
		if rc.PoolSize > 0 {
			o.PoolSize = rc.PoolSize
		}
	})
}
