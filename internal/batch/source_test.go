package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/ctidoc/pkg/pipeline"
	"github.com/telhawk-systems/ctidoc/pkg/render"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, path string, split bool) []Input {
	t.Helper()
	var got []Input
	err := ReadRecords(path, filepath.Base(path), split, func(in Input) error {
		got = append(got, in)
		return nil
	})
	require.NoError(t, err)
	return got
}

func ids(inputs []Input) []string {
	out := make([]string, len(inputs))
	for i, in := range inputs {
		out[i] = in.ID
	}
	return out
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.json"), `{}`)
	writeFile(t, filepath.Join(root, "a", "feed.jsonl"), `{}`)
	writeFile(t, filepath.Join(root, "a", "events.NDJSON"), `{}`)
	writeFile(t, filepath.Join(root, "notes.txt"), `ignored`)
	writeFile(t, filepath.Join(root, ".dlq", "failed_1_0.json"), `{}`)

	gotRoot, files, err := Discover(root)
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot)

	rel := make([]string, len(files))
	for i, f := range files {
		rel[i] = relID(root, f)
	}
	assert.Equal(t, []string{"a/events.NDJSON", "a/feed.jsonl", "b.json"}, rel)
}

func TestDiscover_SingleFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "one.json")
	writeFile(t, path, `{}`)

	gotRoot, files, err := Discover(path)
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot)
	assert.Equal(t, []string{path}, files)
	assert.Equal(t, "one.json", relID(gotRoot, files[0]))
}

func TestDiscover_Missing(t *testing.T) {
	_, _, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadRecords_Array(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actors.json")
	writeFile(t, path, `[{"name":"a"},{"name":"b"}]`)

	got := collect(t, path, true)
	assert.Equal(t, []string{"actors.json#0", "actors.json#1"}, ids(got))
	assert.JSONEq(t, `{"name":"b"}`, string(got[1].Raw))
	name, ok := got[1].Value.Object().Get("name")
	require.True(t, ok)
	assert.Equal(t, "b", name.Str())

	got = collect(t, path, false)
	assert.Equal(t, []string{"actors.json"}, ids(got))
}

func TestReadRecords_MixedArrayNotSplit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.json")
	writeFile(t, path, `[{"name":"a"}, 1]`)

	got := collect(t, path, true)
	assert.Equal(t, []string{"mixed.json"}, ids(got))
	assert.NoError(t, got[0].Err)
}

func TestReadRecords_Lines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	writeFile(t, path, "{\"name\":\"a\"}\n\n{broken\n{\"name\":\"c\"}")

	got := collect(t, path, true)
	assert.Equal(t, []string{"feed.jsonl#1", "feed.jsonl#3", "feed.jsonl#4"}, ids(got))
	assert.NoError(t, got[0].Err)
	assert.ErrorIs(t, got[1].Err, ErrDecode)
	assert.Equal(t, "{broken", string(got[1].Raw))
	assert.NoError(t, got[2].Err)
}

func TestReadRecords_DecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, path, `{"name":`)

	got := collect(t, path, true)
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].Err, ErrDecode)
	assert.Equal(t, `{"name":`, string(got[0].Raw))
}

func TestReadRecords_StopsOnCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "many.json")
	writeFile(t, path, `[{"a":1},{"a":2},{"a":3}]`)

	stop := errors.New("stop")
	n := 0
	err := ReadRecords(path, "many.json", true, func(Input) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestCondition(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", render.ErrRenderDepthExceeded), ConditionRenderDepth},
		{fmt.Errorf("%w: eof", ErrDecode), ConditionDecode},
		{fmt.Errorf("%w: disk full", ErrWrite), ConditionWrite},
		{pipeline.ErrUnresolvableRecord, ConditionUnresolvable},
		{context.Canceled, ConditionCanceled},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), ConditionCanceled},
		{errors.New("boom"), ConditionInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Condition(tt.err), "%v", tt.err)
	}
}
