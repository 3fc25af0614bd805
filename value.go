package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueType is the declared type of a definition.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeEnum    ValueType = "enum"
)

// Valid reports whether t is one of the known types.
func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeEnum:
		return true
	}
	return false
}

// Value is a tagged union holding one setting value. The tag always matches
// the owning definition's type once the value passed ParseValue.
type Value struct {
	kind ValueType
	str  string
	num  float64
	flag bool
}

func StringValue(s string) Value  { return Value{kind: TypeString, str: s} }
func EnumValue(s string) Value    { return Value{kind: TypeEnum, str: s} }
func NumberValue(n float64) Value { return Value{kind: TypeNumber, num: n} }
func BoolValue(b bool) Value      { return Value{kind: TypeBoolean, flag: b} }

// Type returns the tag.
func (v Value) Type() ValueType { return v.kind }

// IsZero reports whether v carries no tag.
func (v Value) IsZero() bool { return v.kind == "" }

// Text returns the payload of string and enum values.
func (v Value) Text() string { return v.str }

// Number returns the payload of number values.
func (v Value) Number() float64 { return v.num }

// Bool returns the payload of boolean values.
func (v Value) Bool() bool { return v.flag }

// Interface returns the payload as a plain Go value for rule evaluation and
// encoding.
func (v Value) Interface() any {
	switch v.kind {
	case TypeString, TypeEnum:
		return v.str
	case TypeNumber:
		return v.num
	case TypeBoolean:
		return v.flag
	default:
		return nil
	}
}

// Equal compares tag and payload.
func (v Value) Equal(other Value) bool {
	return v == other
}

func (v Value) String() string {
	switch v.kind {
	case TypeString, TypeEnum:
		return v.str
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case TypeBoolean:
		return strconv.FormatBool(v.flag)
	default:
		return "<unset>"
	}
}

// MarshalJSON encodes the bare scalar; the tag travels with the definition.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON infers the tag from the JSON token. Enum values decode as
// strings until ParseValue retags them against a definition.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case nil:
		*v = Value{}
	case string:
		*v = StringValue(typed)
	case bool:
		*v = BoolValue(typed)
	case json.Number:
		n, err := typed.Float64()
		if err != nil {
			return fmt.Errorf("settings: invalid number %q: %w", typed.String(), err)
		}
		*v = NumberValue(n)
	default:
		return fmt.Errorf("settings: unsupported value %s", string(data))
	}
	return nil
}

// ParseValue converts a decoded payload into a Value tagged with t. Only the
// JSON shape native to t is accepted; "5" is not a number and 1 is not a
// boolean.
func ParseValue(t ValueType, raw any) (Value, error) {
	if retagged, ok := raw.(Value); ok {
		raw = retagged.Interface()
	}
	switch t {
	case TypeString, TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected %s, got %s", t, describe(raw))
		}
		if t == TypeEnum {
			return EnumValue(s), nil
		}
		return StringValue(s), nil
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("expected boolean, got %s", describe(raw))
		}
		return BoolValue(b), nil
	case TypeNumber:
		n, ok := toFloat(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected number, got %s", describe(raw))
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Value{}, fmt.Errorf("expected finite number, got %v", n)
		}
		return NumberValue(n), nil
	default:
		return Value{}, fmt.Errorf("unknown value type %q", t)
	}
}

// DecodeValue parses a raw JSON scalar as t.
func DecodeValue(t ValueType, data json.RawMessage) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Value{}, fmt.Errorf("value is required")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("decode value: %w", err)
	}
	return ParseValue(t, raw)
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func describe(raw any) string {
	if raw == nil {
		return "null"
	}
	return fmt.Sprintf("%T", raw)
}
