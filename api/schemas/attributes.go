package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

// -- Attribute Values --

// ValueKind is the closed set of scalar kinds an attribute may hold.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt, KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindTime:
		return "timestamp"
	default:
		return "invalid"
	}
}

// Value is a single scalar attribute value. Numbers keep their integral-ness
// so that integers are bound as integers rather than floats.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

func String(s string) Value       { return Value{kind: KindString, s: s} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Timestamp(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsValid() bool   { return v.kind != KindInvalid }

// Str returns the string payload and whether the value is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Interface returns the native Go value used when binding the value as a
// statement parameter.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	default:
		return nil
	}
}

// Text renders the value for display and for string comparisons.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and payload.
// Integral floats compare equal to the matching integer.
func (v Value) Equal(o Value) bool {
	if v.kind == KindInt && o.kind == KindFloat {
		return float64(v.i) == o.f
	}
	if v.kind == KindFloat && o.kind == KindInt {
		return v.f == float64(o.i)
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return v.Interface() == o.Interface()
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("attribute value %v is not representable in JSON", v.f)
		}
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded JSON scalar or a native Go scalar into a Value.
// Nested objects, arrays and null are rejected.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", t.String())
		}
		return Float(f), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint32:
		return Int(int64(t)), nil
	case float32:
		return numberValue(float64(t)), nil
	case float64:
		return numberValue(t), nil
	case time.Time:
		return Timestamp(t), nil
	case nil:
		return Value{}, fmt.Errorf("null is not an allowed attribute value")
	default:
		return Value{}, fmt.Errorf("unsupported attribute value of type %T; only string, number, boolean and timestamp are allowed", x)
	}
}

// Coerce is the lenient conversion used on values read back from a store:
// scalars convert as in ValueOf, anything else is rendered as JSON text.
// The boolean is false for nil.
func Coerce(x any) (Value, bool) {
	if x == nil {
		return Value{}, false
	}
	if v, err := ValueOf(x); err == nil {
		return v, true
	}
	if s, ok := x.(fmt.Stringer); ok {
		return String(s.String()), true
	}
	b, err := json.Marshal(x)
	if err != nil {
		return String(fmt.Sprint(x)), true
	}
	return String(string(b)), true
}

func numberValue(f float64) Value {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Int(int64(f))
	}
	return Float(f)
}

// -- Attributes --

// Attributes is an insertion-ordered map of attribute names to scalar values.
// The zero value is an empty, ready to use map.
type Attributes struct {
	keys []string
	vals map[string]Value
}

// NewAttributes builds an Attributes from alternating key/value pairs.
// It panics on an odd argument count or an unsupported value.
func NewAttributes(kv ...any) Attributes {
	if len(kv)%2 != 0 {
		panic("schemas.NewAttributes: odd number of arguments")
	}
	var a Attributes
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("schemas.NewAttributes: key %v is not a string", kv[i]))
		}
		v, err := ValueOf(kv[i+1])
		if err != nil {
			panic(fmt.Sprintf("schemas.NewAttributes: %s: %v", key, err))
		}
		a.Set(key, v)
	}
	return a
}

// AttributesFromMap converts an unordered map using ValueOf. Keys are sorted
// so the result is deterministic.
func AttributesFromMap(m map[string]any) (Attributes, error) {
	var a Attributes
	for _, k := range sortedKeys(m) {
		v, err := ValueOf(m[k])
		if err != nil {
			return Attributes{}, apperr.Validation("attributes", "attribute %q: %v", k, err)
		}
		a.Set(k, v)
	}
	return a, nil
}

// CoerceMap converts an unordered store-side map using Coerce, dropping nils.
func CoerceMap(m map[string]any) Attributes {
	var a Attributes
	for _, k := range sortedKeys(m) {
		if v, ok := Coerce(m[k]); ok {
			a.Set(k, v)
		}
	}
	return a
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *Attributes) Set(key string, v Value) {
	if a.vals == nil {
		a.vals = make(map[string]Value)
	}
	if _, exists := a.vals[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.vals[key] = v
}

func (a Attributes) Get(key string) (Value, bool) {
	v, ok := a.vals[key]
	return v, ok
}

// GetString returns the attribute as a string when it holds one.
func (a Attributes) GetString(key string) (string, bool) {
	v, ok := a.vals[key]
	if !ok {
		return "", false
	}
	return v.Str()
}

func (a Attributes) Has(key string) bool {
	_, ok := a.vals[key]
	return ok
}

func (a *Attributes) Delete(key string) {
	if _, ok := a.vals[key]; !ok {
		return
	}
	delete(a.vals, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
}

func (a Attributes) Len() int { return len(a.keys) }

// Keys returns a copy of the keys in insertion order.
func (a Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Range calls fn for each entry in order until fn returns false.
func (a Attributes) Range(fn func(key string, v Value) bool) {
	for _, k := range a.keys {
		if !fn(k, a.vals[k]) {
			return
		}
	}
}

func (a Attributes) Clone() Attributes {
	var out Attributes
	a.Range(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// Without returns a copy with the named keys removed.
func (a Attributes) Without(keys ...string) Attributes {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	var out Attributes
	a.Range(func(k string, v Value) bool {
		if _, skip := drop[k]; !skip {
			out.Set(k, v)
		}
		return true
	})
	return out
}

// Merge overwrites a's entries with other's, appending new keys in other's order.
func (a *Attributes) Merge(other Attributes) {
	other.Range(func(k string, v Value) bool {
		a.Set(k, v)
		return true
	})
}

// Params returns the map form bound as a statement parameter.
func (a Attributes) Params() map[string]any {
	out := make(map[string]any, len(a.keys))
	for _, k := range a.keys {
		out[k] = a.vals[k].Interface()
	}
	return out
}

// Equal compares entries irrespective of order.
func (a Attributes) Equal(o Attributes) bool {
	if a.Len() != o.Len() {
		return false
	}
	for _, k := range a.keys {
		ov, ok := o.vals[k]
		if !ok || !a.vals[k].Equal(ov) {
			return false
		}
	}
	return true
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := a.vals[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, keeping key order. Nested values
// and nulls are rejected.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return apperr.Validation("attributes", "attributes must be a JSON object")
	}

	var out Attributes
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return apperr.Validation("attributes", "invalid attribute key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return apperr.Validation("attributes", "attribute %q: %v", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}
