// Package jsonvalue provides an order-preserving JSON value model.
//
// CTI feeds carry meaning in key order (a Title key that comes first, an
// ordered list of references), so decoded objects keep their members in
// document order and numbers keep their original literal text.
package jsonvalue

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a JSON value. The zero Value is null.
type Value struct {
	kind  Kind
	b     bool
	s     string
	items []Value
	obj   *Object
}

// Member is a single key/value pair of an Object.
type Member struct {
	Key   string
	Value Value
}

// Object is an ordered JSON object. Duplicate keys are kept as separate
// members in the order they were read.
type Object struct {
	members []Member
}

// NullValue returns the JSON null value.
func NullValue() Value { return Value{} }

// BoolValue returns a JSON boolean.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NumberValue returns a JSON number holding the literal text lit.
func NumberValue(lit string) Value { return Value{kind: KindNumber, s: lit} }

// StringValue returns a JSON string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ArrayValue returns a JSON array holding items.
func ArrayValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// ObjectValue returns a JSON object backed by o.
func ObjectValue(o *Object) Value {
	if o == nil {
		o = &Object{}
	}
	return Value{kind: KindObject, obj: o}
}

// NewObject builds an Object from members in order.
func NewObject(members ...Member) *Object {
	return &Object{members: append([]Member(nil), members...)}
}

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsContainer reports whether v is an array or an object.
func (v Value) IsContainer() bool { return v.kind == KindArray || v.kind == KindObject }

// Bool returns the boolean held by v, false for other kinds.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Str returns the string held by v, "" for other kinds.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Number returns the number literal held by v, "" for other kinds.
func (v Value) Number() json.Number {
	if v.kind != KindNumber {
		return ""
	}
	return json.Number(v.s)
}

// Items returns the elements of an array, nil for other kinds.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.items
}

// Object returns the object held by v, nil for other kinds.
func (v Value) Object() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Len returns the number of elements of an array or members of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return v.obj.Len()
	default:
		return 0
	}
}

// Text returns the literal text of a scalar: the string itself, the number
// literal, "true"/"false", or "" for null and containers.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal reports whether v and other hold the same value, including member order.
func (v Value) Equal(other Value) bool {
	pending := [][2]Value{{v, other}}
	for len(pending) > 0 {
		a, b := pending[len(pending)-1][0], pending[len(pending)-1][1]
		pending = pending[:len(pending)-1]
		if a.kind != b.kind {
			return false
		}
		switch a.kind {
		case KindBool:
			if a.b != b.b {
				return false
			}
		case KindNumber, KindString:
			if a.s != b.s {
				return false
			}
		case KindArray:
			if len(a.items) != len(b.items) {
				return false
			}
			for i := range a.items {
				pending = append(pending, [2]Value{a.items[i], b.items[i]})
			}
		case KindObject:
			am, bm := a.obj.Members(), b.obj.Members()
			if len(am) != len(bm) {
				return false
			}
			for i := range am {
				if am[i].Key != bm[i].Key {
					return false
				}
				pending = append(pending, [2]Value{am[i].Value, bm[i].Value})
			}
		}
	}
	return true
}

// Len returns the number of members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.members)
}

// Members returns the members in document order. The slice must not be modified.
func (o *Object) Members() []Member {
	if o == nil {
		return nil
	}
	return o.members
}

// Keys returns member keys in document order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	for _, m := range o.Members() {
		keys = append(keys, m.Key)
	}
	return keys
}

// Add appends a member.
func (o *Object) Add(key string, v Value) {
	o.members = append(o.members, Member{Key: key, Value: v})
}

// Get returns the first member whose key equals key exactly.
func (o *Object) Get(key string) (Value, bool) {
	for _, m := range o.Members() {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// GetFold returns the first member, in document order, whose key equals key
// under Unicode case folding.
func (o *Object) GetFold(key string) (Member, bool) {
	for _, m := range o.Members() {
		if strings.EqualFold(m.Key, key) {
			return m, true
		}
	}
	return Member{}, false
}

// HasKeyFold reports whether any member key equals key under case folding.
func (o *Object) HasKeyFold(key string) bool {
	_, ok := o.GetFold(key)
	return ok
}

// ChildPath joins an object key onto a value path.
func ChildPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// ElemPath joins an array index onto a value path.
func ElemPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}

// Leaves calls fn for every scalar reachable from v, depth first and in
// document order. Empty containers are not leaves.
func (v Value) Leaves(fn func(path string, leaf Value)) {
	if !v.IsContainer() {
		fn("", v)
		return
	}
	stack := []cursor{{v: v}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.done() {
			stack = stack[:len(stack)-1]
			continue
		}
		at := top.nextStep()
		_, child := top.child()
		if child.IsContainer() {
			stack = append(stack, cursor{v: child, at: at})
		} else {
			fn(leafPath(stack, at), child)
		}
	}
}

// step is how a value is reached from its container.
type step struct {
	key   string
	index int
	elem  bool
}

// cursor walks the children of one container. Walks over nested values keep
// a stack of cursors instead of recursing, so nesting depth is bounded by
// memory rather than by the goroutine stack.
type cursor struct {
	v    Value
	at   step
	next int
}

func (c *cursor) done() bool { return c.next >= c.v.Len() }

// nextStep describes the child that child will return next.
func (c *cursor) nextStep() step {
	if c.v.kind == KindArray {
		return step{index: c.next, elem: true}
	}
	return step{key: c.v.obj.members[c.next].Key}
}

// child returns the next child and its key ("" for array elements).
func (c *cursor) child() (string, Value) {
	i := c.next
	c.next++
	if c.v.kind == KindArray {
		return "", c.v.items[i]
	}
	m := c.v.obj.members[i]
	return m.Key, m.Value
}

// leafPath joins the steps from the root to a leaf the way ChildPath and
// ElemPath do.
func leafPath(stack []cursor, last step) string {
	var b strings.Builder
	add := func(s step) {
		switch {
		case s.elem:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.index))
			b.WriteByte(']')
		case b.Len() == 0:
			b.WriteString(s.key)
		default:
			b.WriteByte('.')
			b.WriteString(s.key)
		}
	}
	for _, c := range stack[1:] {
		add(c.at)
	}
	add(last)
	return b.String()
}
