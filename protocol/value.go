package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/types/known/structpb"
)

// ValueKind discriminates the variants of a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Value is a JSON-like dynamic payload: null, bool, number, string, list or
// string-keyed map. The zero Value is null.
//
// Values are immutable once built; accessors that return lists or maps return
// the underlying storage and callers must not modify it.
type Value struct {
	m    map[string]Value
	s    string
	list []Value
	n    float64
	kind ValueKind
	b    bool
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NumberValue wraps a float64.
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ListValue wraps a list of values.
func ListValue(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// MapValue wraps a string-keyed map. A nil map produces an empty map, not null.
func MapValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// ValueOf converts a Go value into a Value. Supported inputs are nil, bool,
// all integer and float types, string, []any, map[string]any, []string,
// map[string]string, Value, json.RawMessage and anything encoding/json can
// marshal (structs are converted through their JSON form).
func ValueOf(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return NullValue(), nil
		}
		return *t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return NumberValue(float64(t)), nil
	case int8:
		return NumberValue(float64(t)), nil
	case int16:
		return NumberValue(float64(t)), nil
	case int32:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case uint:
		return NumberValue(float64(t)), nil
	case uint8:
		return NumberValue(float64(t)), nil
	case uint16:
		return NumberValue(float64(t)), nil
	case uint32:
		return NumberValue(float64(t)), nil
	case uint64:
		return NumberValue(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return NumberValue(f), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			conv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = conv
		}
		return ListValue(items...), nil
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = StringValue(item)
		}
		return ListValue(items...), nil
	case []Value:
		return ListValue(t...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			conv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = conv
		}
		return MapValue(m), nil
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = StringValue(item)
		}
		return MapValue(m), nil
	case map[string]Value:
		return MapValue(t), nil
	case json.RawMessage:
		var out Value
		if err := json.Unmarshal(t, &out); err != nil {
			return Value{}, err
		}
		return out, nil
	case *structpb.Value:
		return ValueFromProto(t), nil
	case *structpb.Struct:
		return ValueFromStruct(t), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Value{}, fmt.Errorf("unsupported value type %T: %w", v, err)
		}
		var out Value
		if err := json.Unmarshal(data, &out); err != nil {
			return Value{}, err
		}
		return out, nil
	}
}

// MustValueOf is like ValueOf but panics on unsupported input. Intended for
// literals in tests and examples.
func MustValueOf(v any) Value {
	out, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return out
}

// Kind reports which variant v holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Field returns the value stored under key when v is a map, and null otherwise.
func (v Value) Field(key string) Value {
	if v.kind != KindMap {
		return Value{}
	}
	return v.m[key]
}

// Str returns the string stored under key, or "" if absent or not a string.
func (v Value) Str(key string) string {
	s, _ := v.Field(key).AsString()
	return s
}

// Len returns the number of list items or map entries.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	default:
		return 0
	}
}

// Interface converts v into plain Go values (nil, bool, float64, string,
// []any, map[string]any), the same shapes encoding/json produces.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Map returns v as map[string]any, or nil when v is not a map.
func (v Value) Map() map[string]any {
	if v.kind != KindMap {
		return nil
	}
	return v.Interface().(map[string]any)
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, item := range v.m {
			other, ok := o.m[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<invalid value: %v>", err)
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler. Map keys are emitted in sorted order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("unsupported number %v", v.n)
		}
		data, err := json.Marshal(v.n)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindString:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.m[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	conv, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = conv
	return nil
}

// Proto converts v into a structpb.Value.
func (v Value) Proto() *structpb.Value {
	switch v.kind {
	case KindBool:
		return structpb.NewBoolValue(v.b)
	case KindNumber:
		return structpb.NewNumberValue(v.n)
	case KindString:
		return structpb.NewStringValue(v.s)
	case KindList:
		items := make([]*structpb.Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Proto()
		}
		return structpb.NewListValue(&structpb.ListValue{Values: items})
	case KindMap:
		return structpb.NewStructValue(v.Struct())
	default:
		return structpb.NewNullValue()
	}
}

// Struct converts a map Value into a structpb.Struct. Non-map values produce
// an empty struct.
func (v Value) Struct() *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(v.m))
	for k, item := range v.m {
		fields[k] = item.Proto()
	}
	return &structpb.Struct{Fields: fields}
}

// ValueFromProto converts a structpb.Value. A nil input yields null.
func ValueFromProto(pv *structpb.Value) Value {
	if pv == nil {
		return Value{}
	}
	switch k := pv.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return BoolValue(k.BoolValue)
	case *structpb.Value_NumberValue:
		return NumberValue(k.NumberValue)
	case *structpb.Value_StringValue:
		return StringValue(k.StringValue)
	case *structpb.Value_ListValue:
		values := k.ListValue.GetValues()
		items := make([]Value, len(values))
		for i, item := range values {
			items[i] = ValueFromProto(item)
		}
		return ListValue(items...)
	case *structpb.Value_StructValue:
		return ValueFromStruct(k.StructValue)
	default:
		return Value{}
	}
}

// ValueFromStruct converts a structpb.Struct into a map Value. A nil input
// yields null.
func ValueFromStruct(s *structpb.Struct) Value {
	if s == nil {
		return Value{}
	}
	m := make(map[string]Value, len(s.GetFields()))
	for k, item := range s.GetFields() {
		m[k] = ValueFromProto(item)
	}
	return MapValue(m)
}
