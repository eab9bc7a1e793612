package jsonvalue_test

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
)

func TestParse_PreservesOrderAndLiterals(t *testing.T) {
	v, err := jsonvalue.Parse([]byte(`{"z": 1.50, "a": [true, null, "x"], "m": {"k": -0}}`))
	require.NoError(t, err)

	require.Equal(t, jsonvalue.KindObject, v.Kind())
	assert.Equal(t, []string{"z", "a", "m"}, v.Object().Keys())

	z, ok := v.Object().Get("z")
	require.True(t, ok)
	assert.Equal(t, "1.50", z.Text())

	a, _ := v.Object().Get("a")
	require.Len(t, a.Items(), 3)
	assert.True(t, a.Items()[0].Bool())
	assert.True(t, a.Items()[1].IsNull())
	assert.Equal(t, "x", a.Items()[2].Str())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"trailing value", `{"a":1} {"b":2}`},
		{"unterminated", `{"a": [1, 2`},
		{"garbage", `{"a" 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jsonvalue.Parse([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestParse_TrailingData(t *testing.T) {
	_, err := jsonvalue.Parse([]byte(`[1] [2]`))
	assert.ErrorIs(t, err, jsonvalue.ErrTrailingData)
}

func TestParse_DeepNesting(t *testing.T) {
	depth := 5000
	input := strings.Repeat("[", depth) + strings.Repeat("]", depth)

	v, err := jsonvalue.Parse([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, jsonvalue.KindArray, v.Kind())
}

func TestDeepNesting_WalksDoNotRecurse(t *testing.T) {
	depth := 200_000
	input := `{"a":` + strings.Repeat("[", depth) + `"leaf"` + strings.Repeat("]", depth) + `}`
	v, err := jsonvalue.Parse([]byte(input))
	require.NoError(t, err)

	// one Go frame per level would need far more than this
	defer debug.SetMaxStack(debug.SetMaxStack(8 << 20))

	assert.True(t, input == string(v.AppendJSON(nil)), "encoding does not round-trip")
	assert.True(t, v.Equal(v))

	var paths []string
	v.Leaves(func(path string, leaf jsonvalue.Value) {
		paths = append(paths, path)
		assert.Equal(t, "leaf", leaf.Text())
	})
	require.Len(t, paths, 1)
	assert.Equal(t, "a"+strings.Repeat("[0]", depth), paths[0])
}

func TestObject_DuplicateKeysAndFold(t *testing.T) {
	v, err := jsonvalue.Parse([]byte(`{"Title": "first", "title": "second", "TITLE": "third"}`))
	require.NoError(t, err)
	obj := v.Object()

	assert.Equal(t, 3, obj.Len())

	exact, ok := obj.Get("title")
	require.True(t, ok)
	assert.Equal(t, "second", exact.Str())

	folded, ok := obj.GetFold("tItLe")
	require.True(t, ok)
	assert.Equal(t, "Title", folded.Key)
	assert.Equal(t, "first", folded.Value.Str())

	assert.False(t, obj.HasKeyFold("summary"))
}

func TestMarshalJSON_RoundTrip(t *testing.T) {
	inputs := []string{
		`{"b":1,"a":[true,null,"x"]}`,
		`[]`,
		`{}`,
		`"tab\there \"quoted\" \\ back"`,
		`{"nested":{"deeper":[{"k":1e10}]}}`,
		`"\u0001 control"`,
		`"<html> & stays"`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			v, err := jsonvalue.Parse([]byte(input))
			require.NoError(t, err)

			out, err := v.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, input, string(out))
		})
	}
}

func TestFromInterface(t *testing.T) {
	v, err := jsonvalue.FromInterface(map[string]any{
		"zeta":  1,
		"alpha": []any{"x", 2.5, nil, false},
	})
	require.NoError(t, err)

	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":["x",2.5,null,false],"zeta":1}`, string(out))

	_, err = jsonvalue.FromInterface(struct{}{})
	assert.Error(t, err)
}

func TestLeaves(t *testing.T) {
	v := jsonvalue.MustFromInterface(map[string]any{
		"a": map[string]any{"b": []any{"x", map[string]any{"c": true}}},
		"e": []any{},
		"n": nil,
	})

	var paths []string
	v.Leaves(func(path string, leaf jsonvalue.Value) {
		paths = append(paths, path+"="+leaf.Text())
	})

	assert.Equal(t, []string{"a.b[0]=x", "a.b[1].c=true", "n="}, paths)
}

func TestEqual(t *testing.T) {
	a, _ := jsonvalue.Parse([]byte(`{"a":1,"b":2}`))
	b, _ := jsonvalue.Parse([]byte(`{"a":1,"b":2}`))
	c, _ := jsonvalue.Parse([]byte(`{"b":2,"a":1}`))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	tests := []struct {
		name string
		x, y string
	}{
		{"nested equal", `{"a":[1,{"b":null}]}`, `{"a":[1,{"b":null}]}`},
		{"nested differ", `{"a":[1,{"b":null}]}`, `{"a":[1,{"b":false}]}`},
		{"length differ", `[1,2]`, `[1,2,3]`},
		{"key differ", `{"a":{"x":1}}`, `{"a":{"y":1}}`},
		{"number literal", `1.0`, `1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := jsonvalue.Parse([]byte(tt.x))
			require.NoError(t, err)
			y, err := jsonvalue.Parse([]byte(tt.y))
			require.NoError(t, err)
			assert.Equal(t, tt.x == tt.y, x.Equal(y))
		})
	}
}
