package domain

import (
	"fmt"
	"strconv"
)

// Value is a tool argument: exactly one of string, number or boolean.
type Value struct {
	kind ParamType
	str  string
	num  float64
	flag bool
}

func StringValue(s string) Value  { return Value{kind: TypeString, str: s} }
func NumberValue(n float64) Value { return Value{kind: TypeNumber, num: n} }
func BoolValue(b bool) Value      { return Value{kind: TypeBoolean, flag: b} }

// Kind reports which variant is set. The zero Value has an empty kind.
func (v Value) Kind() ParamType { return v.kind }

func (v Value) String() string {
	switch v.kind {
	case TypeString:
		return v.str
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case TypeBoolean:
		return strconv.FormatBool(v.flag)
	}
	return ""
}

// Any returns the underlying Go value, suitable for JSON encoding.
func (v Value) Any() any {
	switch v.kind {
	case TypeString:
		return v.str
	case TypeNumber:
		return v.num
	case TypeBoolean:
		return v.flag
	}
	return nil
}

// ValueOf converts a decoded JSON value to the declared parameter type.
func ValueOf(t ParamType, raw any) (Value, error) {
	switch t {
	case TypeString:
		if s, ok := raw.(string); ok {
			return StringValue(s), nil
		}
	case TypeNumber:
		switch n := raw.(type) {
		case float64:
			return NumberValue(n), nil
		case float32:
			return NumberValue(float64(n)), nil
		case int:
			return NumberValue(float64(n)), nil
		case int32:
			return NumberValue(float64(n)), nil
		case int64:
			return NumberValue(float64(n)), nil
		}
	case TypeBoolean:
		if b, ok := raw.(bool); ok {
			return BoolValue(b), nil
		}
	default:
		return Value{}, fmt.Errorf("unsupported parameter type %q", t)
	}
	return Value{}, fmt.Errorf("expected %s, got %T", t, raw)
}

// Args holds validated tool arguments keyed by parameter name.
type Args map[string]Value

// String returns the named string argument, or "" when absent.
func (a Args) String(name string) string {
	v, ok := a[name]
	if !ok {
		return ""
	}
	return v.String()
}

// Has reports whether the argument was supplied.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Map converts the arguments back to plain Go values.
func (a Args) Map() map[string]any {
	m := make(map[string]any, len(a))
	for k, v := range a {
		m[k] = v.Any()
	}
	return m
}
