package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func capture(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	prev := color.NoColor
	color.NoColor = true
	SetWriters(stdout, stderr)
	t.Cleanup(func() {
		color.NoColor = prev
		SetWriters(color.Output, color.Error)
	})
	return stdout, stderr
}

func TestMessages(t *testing.T) {
	stdout, stderr := capture(t)

	Success("Created %d files in %s", 5, "out")
	Info("Run %s", "abc")
	Error("Failed to read %s", "x.json")
	Warn("skipped %d", 2)

	assert.Equal(t, "✓ Created 5 files in out\nRun abc\n", stdout.String())
	assert.Equal(t, "✗ Failed to read x.json\n⚠ skipped 2\n", stderr.String())
}

func TestPlain(t *testing.T) {
	stdout, _ := capture(t)
	Plain("%s", "# Title\n")
	assert.Equal(t, "# Title\n", stdout.String())
}

func TestJSON(t *testing.T) {
	stdout, _ := capture(t)
	require.NoError(t, JSON(map[string]any{"category": "generic", "chunks": 2}))
	assert.Equal(t, "{\n  \"category\": \"generic\",\n  \"chunks\": 2\n}\n", stdout.String())
}

func TestYAML(t *testing.T) {
	stdout, _ := capture(t)
	require.NoError(t, YAML(map[string]any{"title": "T1059", "tags": []string{"a"}}))

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &back))
	assert.Equal(t, "T1059", back["title"])
	assert.Contains(t, stdout.String(), "tags:\n  - a\n")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON", FormatTable, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml", FormatTable, FormatJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table, json")
}

func TestTable_Render(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		rows    [][]string
		want    string
	}{
		{
			name:    "empty",
			headers: []string{"A", "BB"},
			want:    "A  BB  \n-  --  \n",
		},
		{
			name:    "aligned columns",
			headers: []string{"Category", "Files"},
			rows:    [][]string{{"generic", "3"}, {"mitre-technique", "12"}},
			want: "Category         Files  \n" +
				"---------------  -----  \n" +
				"generic          3      \n" +
				"mitre-technique  12     \n",
		},
		{
			name:    "multibyte cells",
			headers: []string{"K"},
			rows:    [][]string{{"é"}},
			want:    "K  \n-  \né  \n",
		},
		{
			name:    "extra cells dropped",
			headers: []string{"K"},
			rows:    [][]string{{"a", "b"}},
			want:    "K  \n-  \na  \n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _ := capture(t)
			table := NewTable(tt.headers)
			for _, r := range tt.rows {
				table.AddRow(r)
			}
			table.Render()
			assert.Equal(t, tt.want, stdout.String())
			assert.False(t, strings.Contains(stdout.String(), "\x1b["))
		})
	}
}
