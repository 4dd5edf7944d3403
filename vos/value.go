package vos

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type ValueType uint8

const (
	ValueTypeFloat ValueType = iota
	ValueTypeStr
	ValueTypeLog
	ValueTypeUint64
	ValueTypeText
	ValueTypeNone
)

func (vt ValueType) String() string {
	switch vt {
	case ValueTypeFloat:
		return "float"
	case ValueTypeStr:
		return "str"
	case ValueTypeLog:
		return "log"
	case ValueTypeUint64:
		return "uint64"
	case ValueTypeText:
		return "text"
	case ValueTypeNone:
		return "none"
	}
	return "unknown"
}

func (vt ValueType) IsNumeric() bool {
	return vt == ValueTypeFloat || vt == ValueTypeUint64
}

const (
	// column widths of the history store, values are truncated to fit
	StrLenMax  = 255
	TextLenMax = 65535

	// absolute ceiling for float values, larger values cannot be stored
	// with full precision and are rejected by the normalizer
	FloatMax = 1e12
)

type LogRecord struct {
	Value      string
	Source     string
	Timestamp  int64
	LogEventID int64
	Severity   int
}

// Value is a tagged union carrying one observed metric value. Kind tells
// which payload field is meaningful; Err replaces the payload when a sample
// has been demoted to the not-supported state.
type Value struct {
	Kind ValueType
	F64  float64
	U64  uint64
	S    string
	Log  *LogRecord
	Err  string
}

func FloatValue(v float64) Value  { return Value{Kind: ValueTypeFloat, F64: v} }
func Uint64Value(v uint64) Value  { return Value{Kind: ValueTypeUint64, U64: v} }
func StrValue(s string) Value     { return Value{Kind: ValueTypeStr, S: s} }
func TextValue(s string) Value    { return Value{Kind: ValueTypeText, S: s} }
func LogValue(l *LogRecord) Value { return Value{Kind: ValueTypeLog, Log: l} }
func ErrValue(msg string) Value   { return Value{Kind: ValueTypeNone, Err: msg} }

// FormatFloat renders a float the way the history and trend stores expect
// it: shortest representation that round-trips, no exponent for values in
// the storable range.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (v Value) Float64() (float64, error) {
	switch v.Kind {
	case ValueTypeFloat:
		return v.F64, nil
	case ValueTypeUint64:
		return float64(v.U64), nil
	case ValueTypeStr, ValueTypeText:
		s := strings.TrimSpace(v.S)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert value %q to float", v.S)
		}
		return f, nil
	case ValueTypeLog:
		if v.Log == nil {
			return 0, fmt.Errorf("cannot convert empty log record to float")
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Log.Value), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert log value %q to float", v.Log.Value)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %s value to float", v.Kind)
}

func (v Value) Uint64() (uint64, error) {
	switch v.Kind {
	case ValueTypeUint64:
		return v.U64, nil
	case ValueTypeFloat:
		if v.F64 < 0 || v.F64 > math.MaxUint64 {
			return 0, fmt.Errorf("value %s is out of range for uint64", FormatFloat(v.F64))
		}
		if v.F64 != math.Trunc(v.F64) {
			return 0, fmt.Errorf("value %s has a fractional part", FormatFloat(v.F64))
		}
		return uint64(v.F64), nil
	case ValueTypeStr, ValueTypeText:
		s := strings.TrimSpace(v.S)
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert value %q to uint64", v.S)
		}
		return u, nil
	case ValueTypeLog:
		if v.Log == nil {
			return 0, fmt.Errorf("cannot convert empty log record to uint64")
		}
		u, err := strconv.ParseUint(strings.TrimSpace(v.Log.Value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert log value %q to uint64", v.Log.Value)
		}
		return u, nil
	}
	return 0, fmt.Errorf("cannot convert %s value to uint64", v.Kind)
}

func (v Value) Text() string {
	switch v.Kind {
	case ValueTypeFloat:
		return FormatFloat(v.F64)
	case ValueTypeUint64:
		return strconv.FormatUint(v.U64, 10)
	case ValueTypeStr, ValueTypeText:
		return v.S
	case ValueTypeLog:
		if v.Log == nil {
			return ""
		}
		return v.Log.Value
	}
	return v.Err
}

// ConvertTo produces a value of the declared item type from a possibly
// mismatched incoming value. The matrix is explicit so that formatting and
// truncation semantics stay stable for every (from, to) pair.
func (v Value) ConvertTo(vt ValueType) (Value, error) {
	switch vt {
	case ValueTypeFloat:
		f, err := v.Float64()
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case ValueTypeUint64:
		u, err := v.Uint64()
		if err != nil {
			return Value{}, err
		}
		return Uint64Value(u), nil
	case ValueTypeStr:
		return StrValue(truncate(v.Text(), StrLenMax)), nil
	case ValueTypeText:
		return TextValue(truncate(v.Text(), TextLenMax)), nil
	case ValueTypeLog:
		if v.Kind == ValueTypeLog {
			return v, nil
		}
		return LogValue(&LogRecord{Value: truncate(v.Text(), TextLenMax)}), nil
	}
	return Value{}, fmt.Errorf("cannot convert to value type %s", vt)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// cut on a rune boundary
	for max > 0 && s[max]&0xc0 == 0x80 {
		max--
	}
	return s[:max]
}
