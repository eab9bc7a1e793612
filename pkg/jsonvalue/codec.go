package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"
)

// ErrTrailingData is returned when input holds more than one JSON value.
var ErrTrailingData = errors.New("jsonvalue: trailing data after value")

// Parse decodes exactly one JSON value from data.
func Parse(data []byte) (Value, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads exactly one JSON value from r.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return Value{}, ErrTrailingData
		}
		return Value{}, fmt.Errorf("jsonvalue: %w", err)
	}
	return v, nil
}

type frame struct {
	obj     *Object
	items   []Value
	key     string
	haveKey bool
}

// decodeValue builds a value from the token stream with an explicit stack so
// deeply nested input cannot exhaust the goroutine stack.
func decodeValue(dec *json.Decoder) (Value, error) {
	var stack []*frame
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return Value{}, fmt.Errorf("jsonvalue: %w", err)
		}

		var v Value
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				stack = append(stack, &frame{obj: &Object{}})
				continue
			case '[':
				stack = append(stack, &frame{items: []Value{}})
				continue
			default:
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.obj != nil {
					v = ObjectValue(top.obj)
				} else {
					v = ArrayValue(top.items...)
				}
			}
		case string:
			if n := len(stack); n > 0 && stack[n-1].obj != nil && !stack[n-1].haveKey {
				stack[n-1].key = t
				stack[n-1].haveKey = true
				continue
			}
			v = StringValue(t)
		case json.Number:
			v = NumberValue(string(t))
		case bool:
			v = BoolValue(t)
		case nil:
			v = NullValue()
		}

		if len(stack) == 0 {
			return v, nil
		}
		top := stack[len(stack)-1]
		if top.obj != nil {
			top.obj.Add(top.key, v)
			top.haveKey = false
		} else {
			top.items = append(top.items, v)
		}
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON encodes v compactly, preserving member order. The encoding is
// stable and serves as the canonical form for digests.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.AppendJSON(nil), nil
}

// AppendJSON appends the compact encoding of v to buf.
func (v Value) AppendJSON(buf []byte) []byte {
	if !v.IsContainer() {
		return appendScalar(buf, v)
	}
	buf = appendOpen(buf, v)
	stack := []cursor{{v: v}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.done() {
			buf = appendClose(buf, top.v)
			stack = stack[:len(stack)-1]
			continue
		}
		if top.next > 0 {
			buf = append(buf, ',')
		}
		isObject := top.v.kind == KindObject
		key, child := top.child()
		if isObject {
			buf = appendQuoted(buf, key)
			buf = append(buf, ':')
		}
		if child.IsContainer() {
			buf = appendOpen(buf, child)
			stack = append(stack, cursor{v: child})
		} else {
			buf = appendScalar(buf, child)
		}
	}
	return buf
}

func appendScalar(buf []byte, v Value) []byte {
	switch v.kind {
	case KindBool:
		return strconv.AppendBool(buf, v.b)
	case KindNumber:
		return append(buf, v.s...)
	case KindString:
		return appendQuoted(buf, v.s)
	default:
		return append(buf, "null"...)
	}
}

func appendOpen(buf []byte, v Value) []byte {
	if v.kind == KindArray {
		return append(buf, '[')
	}
	return append(buf, '{')
}

func appendClose(buf []byte, v Value) []byte {
	if v.kind == KindArray {
		return append(buf, ']')
	}
	return append(buf, '}')
}

const hexDigits = "0123456789abcdef"

func appendQuoted(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			buf = append(buf, "\ufffd"...)
		case r == '"' || r == '\\':
			buf = append(buf, '\\', byte(r))
		case r == '\n':
			buf = append(buf, `\n`...)
		case r == '\r':
			buf = append(buf, `\r`...)
		case r == '\t':
			buf = append(buf, `\t`...)
		case r < 0x20:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[r>>4], hexDigits[r&0xf])
		default:
			buf = append(buf, s[i:i+size]...)
		}
		i += size
	}
	return append(buf, '"')
}

// FromInterface converts plain Go data (as produced by encoding/json or
// yaml.v3) into a Value. Map keys are sorted to keep the result deterministic.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return NumberValue(string(t)), nil
	case int:
		return NumberValue(strconv.Itoa(t)), nil
	case int64:
		return NumberValue(strconv.FormatInt(t, 10)), nil
	case uint64:
		return NumberValue(strconv.FormatUint(t, 10)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("jsonvalue: unsupported float %v", t)
		}
		return NumberValue(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, e := range t {
			item, err := FromInterface(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, item)
		}
		return ArrayValue(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := &Object{}
		for _, k := range keys {
			item, err := FromInterface(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			obj.Add(k, item)
		}
		return ObjectValue(obj), nil
	default:
		return Value{}, fmt.Errorf("jsonvalue: unsupported type %s", reflect.TypeOf(x))
	}
}

// MustFromInterface is FromInterface that panics on error. Intended for tests
// and static tables.
func MustFromInterface(x any) Value {
	v, err := FromInterface(x)
	if err != nil {
		panic(err)
	}
	return v
}
