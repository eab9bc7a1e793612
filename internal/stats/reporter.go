package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunTTL is how long a per-run hash is kept.
const RunTTL = 48 * time.Hour

// RedisReporter publishes run summaries to Redis so dashboards and other
// hosts can read them.
//
// Redis Key Structure:
//
//	{prefix}:run:{run_id}  - Hash with the run's counters (expires 48h)
//	{prefix}:totals        - Hash of counters accumulated over all runs
//	{prefix}:categories    - Hash of category -> output files over all runs
type RedisReporter struct {
	redis  *redis.Client
	prefix string
}

// NewRedisReporter connects to redisURL and verifies the connection. tune
// adjusts the client options parsed from the URL.
func NewRedisReporter(ctx context.Context, redisURL, prefix string, tune ...func(*redis.Options)) (*RedisReporter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	for _, fn := range tune {
		fn(opt)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisReporterFromClient(client, prefix), nil
}

// NewRedisReporterFromClient creates a reporter from an existing Redis connection.
func NewRedisReporterFromClient(client *redis.Client, prefix string) *RedisReporter {
	if prefix == "" {
		prefix = "ctidoc"
	}
	return &RedisReporter{redis: client, prefix: prefix}
}

func (r *RedisReporter) runKey(runID string) string {
	return fmt.Sprintf("%s:run:%s", r.prefix, runID)
}

// Report writes s under its run ID and adds it to the running totals.
func (r *RedisReporter) Report(ctx context.Context, s *Summary) error {
	if s.RunID == "" {
		return fmt.Errorf("summary has no run id")
	}
	counters := map[string]int{
		"files":        s.Files,
		"records":      s.Records,
		"converted":    s.Converted,
		"skipped":      s.Skipped,
		"failed":       s.Failed,
		"unresolved":   s.Unresolved,
		"chunked":      s.Chunked,
		"chunks":       s.Chunks,
		"output_files": s.OutputFiles,
		"collisions":   s.Collisions,
		"sink_errors":  s.SinkErrors,
	}

	run := make(map[string]interface{}, len(counters)+len(s.Errors)+2)
	for k, v := range counters {
		run[k] = v
	}
	for cond, n := range s.Errors {
		run["error:"+cond] = n
	}
	run["duration_ms"] = s.Duration.Milliseconds()
	run["finished_at"] = strconv.FormatInt(time.Now().Unix(), 10)

	pipe := r.redis.Pipeline()

	runKey := r.runKey(s.RunID)
	pipe.HSet(ctx, runKey, run)
	pipe.Expire(ctx, runKey, RunTTL)

	totalsKey := r.prefix + ":totals"
	pipe.HIncrBy(ctx, totalsKey, "runs", 1)
	for k, v := range counters {
		if v != 0 {
			pipe.HIncrBy(ctx, totalsKey, k, int64(v))
		}
	}

	categoriesKey := r.prefix + ":categories"
	for cat, n := range s.Categories {
		pipe.HIncrBy(ctx, categoriesKey, cat, int64(n))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to report run: %w", err)
	}
	return nil
}

// Run reads back a run hash. A missing or expired run yields an empty map.
func (r *RedisReporter) Run(ctx context.Context, runID string) (map[string]string, error) {
	res, err := r.redis.HGetAll(ctx, r.runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	return res, nil
}

// Totals reads the accumulated counters.
func (r *RedisReporter) Totals(ctx context.Context) (map[string]int64, error) {
	raw, err := r.redis.HGetAll(ctx, r.prefix+":totals").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read totals: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("totals field %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// Close closes the Redis connection.
func (r *RedisReporter) Close() error {
	return r.redis.Close()
}
