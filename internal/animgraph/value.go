package animgraph

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// ValueType identifies the type carried by a port or parameter.
type ValueType int

const (
	ValueNone ValueType = iota
	ValuePose
	ValueFloat
	ValueInt
	ValueBool
	ValueVector2
)

func (t ValueType) String() string {
	switch t {
	case ValuePose:
		return "pose"
	case ValueFloat:
		return "float"
	case ValueInt:
		return "int"
	case ValueBool:
		return "bool"
	case ValueVector2:
		return "vector2"
	}
	return "none"
}

// ParseValueType maps a type name to a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(s) {
	case "pose":
		return ValuePose, nil
	case "float", "number":
		return ValueFloat, nil
	case "int", "integer":
		return ValueInt, nil
	case "bool", "boolean", "tag":
		return ValueBool, nil
	case "vector2", "vec2":
		return ValueVector2, nil
	}
	return ValueNone, fmt.Errorf("unknown value type: %s", s)
}

// Value is a tagged scalar used for parameters and value ports.
type Value struct {
	Type  ValueType
	Float float64
	Int   int64
	Bool  bool
	Vec2  r2.Vec
}

func FloatValue(f float64) Value  { return Value{Type: ValueFloat, Float: f} }
func IntValue(i int64) Value      { return Value{Type: ValueInt, Int: i} }
func BoolValue(b bool) Value      { return Value{Type: ValueBool, Bool: b} }
func Vector2Value(v r2.Vec) Value { return Value{Type: ValueVector2, Vec2: v} }

// AsFloat converts numeric and boolean values to float64.
func (v Value) AsFloat() float64 {
	switch v.Type {
	case ValueFloat:
		return v.Float
	case ValueInt:
		return float64(v.Int)
	case ValueBool:
		if v.Bool {
			return 1
		}
		return 0
	case ValueVector2:
		return r2.Norm(v.Vec2)
	}
	return 0
}

// AsBool reports whether the value is non-zero.
func (v Value) AsBool() bool {
	switch v.Type {
	case ValueBool:
		return v.Bool
	case ValueVector2:
		return v.Vec2.X != 0 || v.Vec2.Y != 0
	}
	return v.AsFloat() != 0
}

// Convert returns v expressed as type t.
func (v Value) Convert(t ValueType) Value {
	switch t {
	case ValueFloat:
		return FloatValue(v.AsFloat())
	case ValueInt:
		return IntValue(int64(v.AsFloat()))
	case ValueBool:
		return BoolValue(v.AsBool())
	case ValueVector2:
		if v.Type == ValueVector2 {
			return v
		}
		return Vector2Value(r2.Vec{X: v.AsFloat()})
	}
	return v
}

func (v Value) String() string {
	switch v.Type {
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueVector2:
		return fmt.Sprintf("(%g,%g)", v.Vec2.X, v.Vec2.Y)
	}
	return ""
}

// ParseValue parses a literal as the given type. Vector2 literals are
// written "x,y".
func ParseValue(t ValueType, s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch t {
	case ValueFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid float %q: %w", s, err)
		}
		return FloatValue(f), nil
	case ValueInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid int %q: %w", s, err)
		}
		return IntValue(i), nil
	case ValueBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("invalid bool %q: %w", s, err)
		}
		return BoolValue(b), nil
	case ValueVector2:
		parts := strings.Split(strings.Trim(s, "()[]"), ",")
		if len(parts) != 2 {
			return Value{}, fmt.Errorf("invalid vector2 %q", s)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid vector2 %q: %w", s, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid vector2 %q: %w", s, err)
		}
		return Vector2Value(r2.Vec{X: x, Y: y}), nil
	}
	return Value{}, fmt.Errorf("cannot parse value of type %s", t)
}

// ValueFromJSON converts a decoded JSON value. Numbers become floats and
// two element arrays become vectors.
func ValueFromJSON(raw any) (Value, error) {
	switch v := raw.(type) {
	case bool:
		return BoolValue(v), nil
	case float64:
		return FloatValue(v), nil
	case []any:
		if len(v) != 2 {
			return Value{}, fmt.Errorf("vector2 needs 2 components, got %d", len(v))
		}
		x, okx := v[0].(float64)
		y, oky := v[1].(float64)
		if !okx || !oky {
			return Value{}, fmt.Errorf("vector2 components must be numbers")
		}
		return Vector2Value(r2.Vec{X: x, Y: y}), nil
	case string:
		// Accept the literal forms used in graph files.
		for _, t := range []ValueType{ValueFloat, ValueBool, ValueVector2} {
			if val, err := ParseValue(t, v); err == nil {
				return val, nil
			}
		}
		return Value{}, fmt.Errorf("cannot parse value %q", v)
	}
	return Value{}, fmt.Errorf("unsupported value %v", raw)
}

// ParameterDef declares a control parameter of a graph.
type ParameterDef struct {
	Name    string
	Type    ValueType
	Default Value
}

// convertible reports whether a value of type from may be stored in a
// parameter of type to. Scalars convert freely; vector2 only to itself.
func convertible(from, to ValueType) bool {
	scalar := func(t ValueType) bool {
		return t == ValueFloat || t == ValueInt || t == ValueBool
	}
	if from == to {
		return true
	}
	return scalar(from) && scalar(to)
}
