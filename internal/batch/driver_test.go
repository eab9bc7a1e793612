package batch

import (
	"context"
	"runtime/debug"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/telhawk-systems/ctidoc/internal/dlq"
	"github.com/telhawk-systems/ctidoc/internal/logging"
	"github.com/telhawk-systems/ctidoc/internal/seeder"
	"github.com/telhawk-systems/ctidoc/internal/sink"
	"github.com/telhawk-systems/ctidoc/pkg/chunking"
	"github.com/telhawk-systems/ctidoc/pkg/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	name string
	err  error

	mu      sync.Mutex
	outputs []*sink.Output
	closed  bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, out *sink.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, out)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newDriver(t *testing.T, opts Options, dopts ...DriverOption) *Driver {
	t.Helper()
	d, err := New(pipeline.NewConverter(), opts, dopts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func testOptions(t *testing.T) Options {
	opts := DefaultOptions(filepath.Join(t.TempDir(), "out"))
	opts.Workers = 2
	return opts
}

// markdownFiles lists the generated files under dir relative to it.
func markdownFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".md") {
			out = append(out, relID(dir, path))
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func newQueue(t *testing.T) *dlq.Queue {
	t.Helper()
	q, err := dlq.NewQueue(filepath.Join(t.TempDir(), "dlq"), logging.Discard())
	require.NoError(t, err)
	return q
}

func TestNew_Validation(t *testing.T) {
	_, err := New(pipeline.NewConverter(), Options{})
	require.Error(t, err)

	opts := DefaultOptions(t.TempDir())
	opts.Chunk.Budget = 0
	_, err = New(pipeline.NewConverter(), opts)
	assert.ErrorIs(t, err, chunking.ErrInvalidChunkConfig)
}

func TestRun_WritesDocuments(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "bulletins", "ts.json"),
		`{"title":"TS-2022-001","summary":"An issue was found.","url":"https://x"}`)
	writeFile(t, filepath.Join(src, "actors.json"),
		`[{"threat_actor_name":"Earth Lamia","description":"Advanced group."},
		  {"threat_actor_name":"Storm Owl","description":"Another group."}]`)

	opts := testOptions(t)
	d := newDriver(t, opts)

	ctx := logging.WithRunID(context.Background(), "run-1")
	sum, err := d.Run(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 3, sum.Converted)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 3, sum.OutputFiles)
	assert.Equal(t, map[string]int{"threat-actor": 2, "security-bulletin": 1}, sum.Categories)

	files := markdownFiles(t, opts.OutputDir)
	assert.Equal(t, []string{
		"security-bulletin/ts-2022-001.md",
		"threat-actor/earth-lamia.md",
		"threat-actor/storm-owl.md",
	}, files)

	fm, body, err := ReadFrontMatter(filepath.Join(opts.OutputDir, "threat-actor", "storm-owl.md"))
	require.NoError(t, err)
	assert.Equal(t, "Storm Owl", fm.Title)
	assert.Equal(t, "threat-actor", fm.Category)
	assert.Equal(t, "actors.json#1", fm.Source)
	assert.Len(t, fm.SourceSHA256, 64)
	assert.Zero(t, fm.Chunks)
	assert.Positive(t, fm.Tokens)
	assert.Contains(t, string(body), "Another group.")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(body)), "# Storm Owl"))
}

func TestRun_NoFrontmatter(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.json")
	writeFile(t, src, `{"threat_actor_name":"Earth Lamia","description":"Advanced group."}`)

	opts := testOptions(t)
	opts.Frontmatter = false
	_, err := newDriver(t, opts).Run(context.Background(), src)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(opts.OutputDir, "threat-actor", "earth-lamia.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Earth Lamia"))
}

func TestRun_FailuresGoToDLQ(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "broken.json"), `{"name":`)
	writeFile(t, filepath.Join(src, "deep.json"),
		`{"name":"deep","a":`+strings.Repeat("[", 100)+"1"+strings.Repeat("]", 100)+`}`)
	writeFile(t, filepath.Join(src, "ok.json"), `{"threat_actor_name":"Earth Lamia"}`)

	q := newQueue(t)
	opts := testOptions(t)
	sum, err := newDriver(t, opts, WithDLQ(q)).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 1, sum.Converted)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, map[string]int{ConditionDecode: 1, ConditionRenderDepth: 1}, sum.Errors)

	entries, err := q.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	bySource := map[string]dlq.FailedRecord{}
	for _, e := range entries {
		bySource[e.Source] = e
	}
	assert.Equal(t, ConditionDecode, bySource["broken.json"].Condition)
	assert.Equal(t, ConditionRenderDepth, bySource["deep.json"].Condition)
	assert.Contains(t, string(bySource["deep.json"].Record), `"name"`)

	assert.Equal(t, []string{"threat-actor/earth-lamia.md"}, markdownFiles(t, opts.OutputDir))
}

func TestRun_DeeplyNestedArrayElement(t *testing.T) {
	depth := 200_000
	src := filepath.Join(t.TempDir(), "feed.json")
	writeFile(t, src, `[{"threat_actor_name":"Earth Lamia"},`+
		`{"title":"deep","a":`+strings.Repeat("[", depth)+"1"+strings.Repeat("]", depth)+`},`+
		`{"threat_actor_name":"Storm Owl"}]`)

	// the element must be rejected by the render budget, not by running out of stack
	defer debug.SetMaxStack(debug.SetMaxStack(8 << 20))

	q := newQueue(t)
	opts := testOptions(t)
	sum, err := newDriver(t, opts, WithDLQ(q)).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 2, sum.Converted)
	assert.Equal(t, map[string]int{ConditionRenderDepth: 1}, sum.Errors)

	entries, err := q.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "feed.json#1", entries[0].Source)
	assert.Equal(t, ConditionRenderDepth, entries[0].Condition)
	assert.Contains(t, string(entries[0].Record), "deep")

	assert.Equal(t, []string{"threat-actor/earth-lamia.md", "threat-actor/storm-owl.md"},
		markdownFiles(t, opts.OutputDir))
}

func TestRun_WriteError(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.json")
	writeFile(t, src, `{"threat_actor_name":"Earth Lamia"}`)

	opts := testOptions(t)
	// a file where the category directory should be
	writeFile(t, filepath.Join(opts.OutputDir, "threat-actor"), "not a directory")

	q := newQueue(t)
	sum, err := newDriver(t, opts, WithDLQ(q)).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Errors[ConditionWrite])
	assert.Equal(t, 1, q.Stats().PendingFiles)
}

func longRecord(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		if i > 0 {
			b.WriteString(`\n\n`)
		}
		b.WriteString(strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", 4)))
		b.WriteString(".")
	}
	return `{"threat_actor_name":"Long Report","description":"` + b.String() + `"}`
}

func TestRun_Chunking(t *testing.T) {
	src := filepath.Join(t.TempDir(), "long.json")
	writeFile(t, src, longRecord(30))

	opts := testOptions(t)
	opts.Chunk = chunking.Config{Budget: 80, OverlapRatio: 0.2}
	rec := &recordingSink{name: "rec"}
	sum, err := newDriver(t, opts, WithSinks(rec)).Run(context.Background(), src)
	require.NoError(t, err)

	require.Equal(t, 1, sum.Chunked)
	require.Greater(t, sum.Chunks, 1)
	assert.Equal(t, sum.Chunks, sum.OutputFiles)

	files := markdownFiles(t, opts.OutputDir)
	require.Len(t, files, sum.Chunks)
	for i := 1; i <= sum.Chunks; i++ {
		name := "threat-actor/long-report_chunk_" + strconv.Itoa(i) + ".md"
		require.Contains(t, files, name)

		fm, _, err := ReadFrontMatter(filepath.Join(opts.OutputDir, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, i, fm.Chunk)
		assert.Equal(t, sum.Chunks, fm.Chunks)
		assert.LessOrEqual(t, fm.Tokens, 80)
		assert.Equal(t, i > 1, fm.Overlap)
	}
	assert.NoFileExists(t, filepath.Join(opts.OutputDir, "threat-actor", "long-report.md"))

	require.Len(t, rec.outputs, 1)
	out := rec.outputs[0]
	assert.True(t, out.Chunked())
	assert.Len(t, out.Files, sum.Chunks)
	assert.Equal(t, "long.json", out.Source)
	assert.Equal(t, "Long Report", out.Title)
}

func TestRun_ChunkingDisabled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "long.json")
	writeFile(t, src, longRecord(30))

	opts := testOptions(t)
	opts.Chunking = false
	opts.Chunk = chunking.Config{Budget: 80, OverlapRatio: 0.2}
	sum, err := newDriver(t, opts).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Zero(t, sum.Chunked)
	assert.Equal(t, []string{"threat-actor/long-report.md"}, markdownFiles(t, opts.OutputDir))
}

func TestRun_SkipUnchanged(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.json"), `{"threat_actor_name":"Earth Lamia","description":"v1"}`)
	writeFile(t, filepath.Join(src, "b.json"), `{"threat_actor_name":"Storm Owl"}`)

	opts := testOptions(t)
	opts.SkipUnchanged = true
	d := newDriver(t, opts)

	sum, err := d.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Converted)

	sum, err = d.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Converted)
	assert.Equal(t, 2, sum.Skipped)

	writeFile(t, filepath.Join(src, "a.json"), `{"threat_actor_name":"Earth Lamia","description":"v2"}`)
	sum, err = d.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Converted)
	assert.Equal(t, 1, sum.Skipped)

	_, body, err := ReadFrontMatter(filepath.Join(opts.OutputDir, "threat-actor", "earth-lamia.md"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "v2")
}

func TestRun_RerunRemovesStaleChunks(t *testing.T) {
	src := filepath.Join(t.TempDir(), "long.json")
	opts := testOptions(t)
	opts.Chunk = chunking.Config{Budget: 80, OverlapRatio: 0.2}
	d := newDriver(t, opts)

	chunkFiles := func(n int) []string {
		var names []string
		for i := 1; i <= n; i++ {
			names = append(names, "threat-actor/long-report_chunk_"+strconv.Itoa(i)+".md")
		}
		sort.Strings(names)
		return names
	}

	writeFile(t, src, longRecord(30))
	first, err := d.Run(context.Background(), src)
	require.NoError(t, err)
	require.Greater(t, first.Chunks, 3)
	assert.Equal(t, chunkFiles(first.Chunks), markdownFiles(t, opts.OutputDir))

	writeFile(t, src, longRecord(6))
	second, err := d.Run(context.Background(), src)
	require.NoError(t, err)
	require.Greater(t, second.Chunks, 1)
	require.Less(t, second.Chunks, first.Chunks)
	assert.Equal(t, chunkFiles(second.Chunks), markdownFiles(t, opts.OutputDir))
	fm, _, err := ReadFrontMatter(filepath.Join(opts.OutputDir, "threat-actor", "long-report_chunk_1.md"))
	require.NoError(t, err)
	assert.Equal(t, second.Chunks, fm.Chunks)

	writeFile(t, src, `{"threat_actor_name":"Long Report","description":"short"}`)
	third, err := d.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Chunks)
	assert.Equal(t, []string{"threat-actor/long-report.md"}, markdownFiles(t, opts.OutputDir))

	writeFile(t, src, longRecord(30))
	_, err = d.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, chunkFiles(first.Chunks), markdownFiles(t, opts.OutputDir))
}

func TestRun_RerunWithSkipUnchangedNoticesNewChunkCount(t *testing.T) {
	src := filepath.Join(t.TempDir(), "long.json")
	writeFile(t, src, longRecord(30))

	opts := testOptions(t)
	opts.SkipUnchanged = true
	opts.Chunk = chunking.Config{Budget: 80, OverlapRatio: 0.2}
	first, err := newDriver(t, opts).Run(context.Background(), src)
	require.NoError(t, err)

	opts.Chunk = chunking.Config{Budget: 160, OverlapRatio: 0.2}
	second, err := newDriver(t, opts).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Skipped)
	require.Less(t, second.Chunks, first.Chunks)
	assert.Len(t, markdownFiles(t, opts.OutputDir), second.Chunks)
}

func TestRun_PruneKeepsOutputsOfTheSameRun(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.json"), longRecord(30))
	writeFile(t, filepath.Join(src, "b.json"), `{"threat_actor_name":"Long Report"}`)

	opts := testOptions(t)
	opts.Workers = 1
	opts.Chunk = chunking.Config{Budget: 80, OverlapRatio: 0.2}
	sum, err := newDriver(t, opts).Run(context.Background(), src)
	require.NoError(t, err)

	files := markdownFiles(t, opts.OutputDir)
	assert.Len(t, files, sum.Chunks+1)
	assert.Contains(t, files, "threat-actor/long-report.md")
	assert.Contains(t, files, "threat-actor/long-report_chunk_1.md")
}

func TestStalePaths(t *testing.T) {
	out := t.TempDir()
	for _, name := range []string{"a.md", "a_chunk_1.md", "a_chunk_3.md", "a_chunk_10.md", "a_chunk_x.md", "a_chunk_.md", "ab_chunk_5.md", "b_chunk_9.md"} {
		writeFile(t, filepath.Join(out, "cat", name), "text")
	}
	// a whole document whose slug looks like a chunk name
	writeFile(t, filepath.Join(out, "cat", "a_chunk_4.md"), "---\ntitle: a chunk 4\nsource: other.json\n---\n\nbody")

	tests := []struct {
		name  string
		total int
		want  []string
	}{
		{"whole document", 0, []string{"cat/a_chunk_1.md", "cat/a_chunk_10.md", "cat/a_chunk_3.md"}},
		{"fewer chunks", 2, []string{"cat/a.md", "cat/a_chunk_10.md", "cat/a_chunk_3.md"}},
		{"more chunks", 10, []string{"cat/a.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stalePaths(out, "cat/a.md", tt.total)
			require.NoError(t, err)
			sort.Strings(got)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := stalePaths(out, "missing/a.md", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRun_Collision(t *testing.T) {
	src := filepath.Join(t.TempDir(), "dup.json")
	writeFile(t, src, `[{"threat_actor_name":"Dup","description":"first"},
		{"threat_actor_name":"Dup","description":"second"}]`)

	opts := testOptions(t)
	opts.Workers = 1
	sum, err := newDriver(t, opts).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Converted)
	assert.Equal(t, 1, sum.Collisions)
	assert.Equal(t, []string{"threat-actor/dup.md"}, markdownFiles(t, opts.OutputDir))
}

func TestRun_SinkErrorsAreCounted(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.json")
	writeFile(t, src, `{"threat_actor_name":"Earth Lamia"}`)

	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("unavailable")}

	opts := testOptions(t)
	d, err := New(pipeline.NewConverter(), opts, WithSinks(good, bad))
	require.NoError(t, err)

	sum, err := d.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Converted)
	assert.Equal(t, 1, sum.SinkErrors)
	require.Len(t, good.outputs, 1)
	assert.Equal(t, "threat-actor/earth-lamia.md", good.outputs[0].PrimaryPath())
	assert.False(t, good.outputs[0].Chunked())

	require.NoError(t, d.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestRun_Canceled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.json"), `[{"threat_actor_name":"A"},{"threat_actor_name":"B"}]`)

	q := newQueue(t)
	opts := testOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := newDriver(t, opts, WithDLQ(q)).Run(ctx, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Converted)
	assert.Empty(t, markdownFiles(t, opts.OutputDir))
	assert.Zero(t, q.Stats().PendingFiles)
}

func TestRun_MissingSource(t *testing.T) {
	_, err := newDriver(t, testOptions(t)).Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestRun_SeededCorpus(t *testing.T) {
	src := t.TempDir()
	g := seeder.New(7)
	_, err := g.WriteCorpus(filepath.Join(src, "arrays"), seeder.CorpusOptions{Count: 3, ArrayFiles: true})
	require.NoError(t, err)
	_, err = g.WriteCorpus(filepath.Join(src, "single"), seeder.CorpusOptions{Count: 2})
	require.NoError(t, err)

	kinds := len(seeder.Kinds())
	opts := testOptions(t)
	opts.Workers = 4
	q := newQueue(t)
	sum, err := newDriver(t, opts, WithDLQ(q)).Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, kinds+2*kinds, sum.Files)
	assert.Equal(t, 5*kinds, sum.Records)
	assert.Equal(t, 5*kinds, sum.Converted)
	assert.Zero(t, sum.Failed)
	assert.Zero(t, q.Stats().PendingFiles)

	files := markdownFiles(t, opts.OutputDir)
	assert.Len(t, files, sum.OutputFiles-sum.Collisions)
	for _, f := range files {
		fm, _, err := ReadFrontMatter(filepath.Join(opts.OutputDir, filepath.FromSlash(f)))
		require.NoError(t, err, f)
		assert.Equal(t, fm.Category, strings.SplitN(f, "/", 2)[0], f)
		assert.NotEmpty(t, fm.Source, f)
	}
}
