package chunking_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/ctidoc/internal/seeder"
	"github.com/telhawk-systems/ctidoc/pkg/chunking"
)

func words(prefix string, n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

// sectioned builds n sections of exactly size tokens each.
func sectioned(n, size int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "## S%d\n\n%s\n\n", i, words(fmt.Sprintf("w%d_", i), size-2))
	}
	return b.String()
}

func TestCountTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   \n\t ", 0},
		{"one", 1},
		{"  one two\nthree  ", 3},
		{"## Heading\n\n- **key:** value", 5},
		{"naïve café", 2},
		{"a b", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chunking.CountTokens(tt.in), "%q", tt.in)
		assert.Equal(t, len(strings.Fields(tt.in)), chunking.CountTokens(tt.in), "%q", tt.in)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     chunking.Config
		wantErr bool
	}{
		{"defaults", chunking.DefaultConfig(), false},
		{"no overlap", chunking.Config{Budget: 10, OverlapRatio: 0}, false},
		{"almost all overlap", chunking.Config{Budget: 10, OverlapRatio: 0.99}, false},
		{"zero budget", chunking.Config{Budget: 0, OverlapRatio: 0.2}, true},
		{"negative budget", chunking.Config{Budget: -5, OverlapRatio: 0.2}, true},
		{"negative ratio", chunking.Config{Budget: 10, OverlapRatio: -0.1}, true},
		{"ratio one", chunking.Config{Budget: 10, OverlapRatio: 1}, true},
		{"ratio above one", chunking.Config{Budget: 10, OverlapRatio: 1.5}, true},
		{"nan ratio", chunking.Config{Budget: 10, OverlapRatio: math.NaN()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, chunking.ErrInvalidChunkConfig)
				_, newErr := chunking.New(tt.cfg)
				assert.ErrorIs(t, newErr, chunking.ErrInvalidChunkConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_OverlapTokens(t *testing.T) {
	assert.Equal(t, 176, chunking.DefaultConfig().OverlapTokens())
	assert.Equal(t, 0, chunking.Config{Budget: 3, OverlapRatio: 0.3}.OverlapTokens())
}

func TestSplit_WithinBudget(t *testing.T) {
	c, err := chunking.New(chunking.DefaultConfig())
	require.NoError(t, err)

	text := "# Title\n\nshort body\n"
	assert.False(t, c.NeedsSplit(text))

	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Body)
	assert.Empty(t, chunks[0].Overlap)
	assert.False(t, chunks[0].OverlapWithPrev)
	assert.Equal(t, 4, chunks[0].Tokens)
	assert.Equal(t, "<!-- CHUNK 1 of 1 -->\n<!-- Tokens: ~4 -->\n", chunks[0].Header())

	assert.Nil(t, c.Split(""))
	ws := c.Split("   \n\n  ")
	require.Len(t, ws, 1)
	assert.Equal(t, "   \n\n  ", ws[0].Body)
}

func TestSplit_FourChunks(t *testing.T) {
	text := sectioned(24, 100)
	require.Equal(t, 2400, chunking.CountTokens(text))

	chunks, err := chunking.Split(text, 800, 0.22)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, text, chunking.Join(chunks))

	assert.Equal(t, 800, chunks[0].Tokens)
	assert.False(t, chunks[0].OverlapWithPrev)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, i+1, c.Number())
		assert.Equal(t, 4, c.Total)
		assert.LessOrEqual(t, c.Tokens, 800)
	}

	second := chunks[1]
	assert.True(t, second.OverlapWithPrev)
	assert.Equal(t, 176, chunking.CountTokens(second.Overlap))
	assert.True(t, strings.HasSuffix(chunks[0].Body, second.Overlap))
	assert.True(t, strings.HasPrefix(second.Body, "## S8\n"))
	assert.Equal(t, 776, second.Tokens)

	assert.True(t, strings.HasPrefix(second.Markdown(), "<!-- CHUNK 2 of 4 -->\n<!-- Tokens: ~776 -->\n<!-- Overlap: continues from chunk 1 -->\n\n"))
}

func TestSplit_OversizedParagraph(t *testing.T) {
	text := words("w", 2000) + "\n"

	chunks, err := chunking.Split(text, 800, 0.22)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, text, chunking.Join(chunks))

	assert.Equal(t, 800, chunks[0].Tokens)
	assert.Equal(t, 800, chunks[1].Tokens)
	assert.Equal(t, 176+576, chunks[2].Tokens)
	assert.True(t, strings.HasPrefix(chunks[1].Overlap, "w624 "))
	assert.True(t, strings.HasPrefix(chunks[1].Body, "w800 "))
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	text := "## Big\n\n" + words("a", 50) + "\n\n" + words("b", 50) + "\n\n" + words("c", 50) + "\n"

	chunks, err := chunking.Split(text, 110, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, text, chunking.Join(chunks))

	assert.True(t, strings.HasSuffix(chunks[0].Body, "b49\n\n"))
	assert.True(t, strings.HasPrefix(chunks[1].Body, "c0 "))
	assert.Empty(t, chunks[1].Overlap)
	assert.False(t, chunks[1].OverlapWithPrev)
}

func TestSplit_HeadingsInCodeAreNotSections(t *testing.T) {
	code := "```\n# not a heading\n" + words("x", 30) + "\n```\n"
	text := "## One\n\n" + words("a", 10) + "\n\n" + code + "\n## Two\n\n" + words("b", 10) + "\n"

	chunks, err := chunking.Split(text, 50, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[1].Body, "## Two\n"))
}

// Bodies always concatenate back to the input, every chunk fits the budget,
// and overlaps repeat the end of the previous body.
func TestSplit_Properties(t *testing.T) {
	g := seeder.New(11)
	configs := []chunking.Config{
		{Budget: 15, OverlapRatio: 0.22},
		{Budget: 40, OverlapRatio: 0.5},
		{Budget: 120, OverlapRatio: 0},
		{Budget: 300, OverlapRatio: 0.9},
	}

	for i := 0; i < 30; i++ {
		text := g.Document(1+i%5, 1+i%4, 5+i)
		for _, cfg := range configs {
			c, err := chunking.New(cfg)
			require.NoError(t, err)

			chunks := c.Split(text)
			require.Equal(t, text, chunking.Join(chunks))

			for j, ch := range chunks {
				assert.LessOrEqual(t, ch.Tokens, cfg.Budget)
				assert.Equal(t, chunking.CountTokens(ch.Text()), ch.Tokens)
				assert.Greater(t, chunking.CountTokens(ch.Body), 0)
				if j == 0 {
					assert.Empty(t, ch.Overlap)
					continue
				}
				prev := chunks[j-1].Body
				assert.True(t, strings.HasSuffix(prev, ch.Overlap))
				want := min(cfg.OverlapTokens(), chunking.CountTokens(prev))
				assert.Equal(t, want, chunking.CountTokens(ch.Overlap))
			}
		}
	}
}
