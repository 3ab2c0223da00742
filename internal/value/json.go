package value

import (
	"encoding/json"
	"fmt"
	"math"
)

// wireValue is the on-disk tagged-object shape for a Value: {"type":
// "Int64", "value": 42}. Special floats (NaN, +/-Inf) serialize their
// value as null while preserving the type tag, since JSON has no
// native representation for them.
type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON implements the WAL/batch wire format (spec §6).
func (v Value) MarshalJSON() ([]byte, error) {
	kind := v.Kind().String()
	if v.IsNull() {
		return json.Marshal(wireValue{Type: "Null", Value: json.RawMessage("null")})
	}
	var payload any
	switch v.kind {
	case KindInt32:
		payload, _ = v.AsInt64()
	case KindInt64:
		payload, _ = v.AsInt64()
	case KindTimestamp:
		payload, _ = v.AsInt64()
	case KindBool:
		payload, _ = v.AsBool()
	case KindFloat64:
		f := v.f
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return json.Marshal(wireValue{Type: kind, Value: json.RawMessage("null")})
		}
		payload = f
	case KindString:
		payload, _ = v.AsString()
	case KindVector:
		vec, _ := v.AsVector()
		payload = vec
	case KindVectorInt8:
		vi8, _ := v.AsVectorInt8()
		payload = vi8
	default:
		return nil, fmt.Errorf("value: unknown kind %d", v.kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: kind, Value: raw})
}

// UnmarshalJSON implements the WAL/batch wire format (spec §6).
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "Null":
		*v = Null()
	case "Int32":
		var n int32
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return err
		}
		*v = Int32(n)
	case "Int64":
		var n int64
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return err
		}
		*v = Int64(n)
	case "Float64":
		if string(w.Value) == "null" {
			*v = Float64(math.NaN())
			return nil
		}
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return err
		}
		*v = Float64(f)
	case "String":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		*v = String(s)
	case "Bool":
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case "Timestamp":
		var ms int64
		if err := json.Unmarshal(w.Value, &ms); err != nil {
			return err
		}
		*v = TimestampMs(ms)
	case "Vector":
		var vec []float32
		if err := json.Unmarshal(w.Value, &vec); err != nil {
			return err
		}
		*v = Vector(vec)
	case "VectorInt8":
		var vec []int8
		if err := json.Unmarshal(w.Value, &vec); err != nil {
			return err
		}
		*v = VectorInt8(vec)
	default:
		return fmt.Errorf("value: unknown wire type %q", w.Type)
	}
	return nil
}
