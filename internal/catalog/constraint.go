package catalog

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind is the Home Assistant platform an entity is exposed as.
type Kind string

// Supported entity kinds.
const (
	KindSelect Kind = "select"
	KindNumber Kind = "number"
	KindSwitch Kind = "switch"
)

// Switch state strings as Home Assistant reports them.
const (
	StateOn  = "on"
	StateOff = "off"
)

// Constraint is the value domain of an entity. Values flowing through a
// constraint are always one of string (select), float64 (number) or bool
// (switch).
type Constraint interface {
	// Kind reports the entity platform this constraint belongs to.
	Kind() Kind
	// Accept normalizes a setter value. ok is false when the value is
	// rejected outright; numbers are clamped rather than rejected.
	Accept(v any) (normalized any, ok bool)
	// Parse converts a persisted state string. ok is false when the string
	// does not describe a valid value.
	Parse(raw string) (value any, ok bool)
	// Format renders a valid value as a state string.
	Format(v any) string
}

// Range is a numeric constraint with inclusive bounds.
type Range struct {
	Min  float64
	Max  float64
	Step float64
	Unit string
	// Mode is the Home Assistant number display mode ("slider" or "box").
	Mode string
}

// Percent is the 0..100 slider every M.A.C.S. number uses.
var Percent = Range{Min: 0, Max: 100, Step: 1, Unit: "%", Mode: "slider"}

// Kind implements Constraint.
func (r Range) Kind() Kind { return KindNumber }

// Clamp bounds f to [Min, Max].
func (r Range) Clamp(f float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, f))
}

// Accept implements Constraint. Any Go numeric type is accepted and clamped.
func (r Range) Accept(v any) (any, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return nil, false
	}
	return r.Clamp(f), true
}

// Parse implements Constraint. Parsable numbers are clamped, matching how a
// live write would have been stored.
func (r Range) Parse(raw string) (any, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) {
		return nil, false
	}
	return r.Clamp(f), true
}

// Format implements Constraint.
func (r Range) Format(v any) string {
	f, _ := v.(float64)
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Contains reports whether f lies inside the range.
func (r Range) Contains(f float64) bool {
	return f >= r.Min && f <= r.Max
}

// Enum is a select constraint over a fixed list of options.
type Enum struct {
	Options []string
}

// Kind implements Constraint.
func (e Enum) Kind() Kind { return KindSelect }

// Accept implements Constraint. Only exact members are accepted.
func (e Enum) Accept(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || !slices.Contains(e.Options, s) {
		return nil, false
	}
	return s, true
}

// Parse implements Constraint.
func (e Enum) Parse(raw string) (any, bool) {
	return e.Accept(raw)
}

// Format implements Constraint.
func (e Enum) Format(v any) string {
	s, _ := v.(string)
	return s
}

// Lookup returns the canonical option matching s case-insensitively.
func (e Enum) Lookup(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, opt := range e.Options {
		if strings.EqualFold(opt, s) {
			return opt, true
		}
	}
	return "", false
}

// Toggle is the on/off constraint of a switch.
type Toggle struct{}

// Kind implements Constraint.
func (Toggle) Kind() Kind { return KindSwitch }

// Accept implements Constraint.
func (Toggle) Accept(v any) (any, bool) {
	b, ok := v.(bool)
	return b, ok
}

// Parse implements Constraint. Only "on" and "off" are valid persisted states.
func (Toggle) Parse(raw string) (any, bool) {
	switch raw {
	case StateOn:
		return true, true
	case StateOff:
		return false, true
	default:
		return nil, false
	}
}

// Format implements Constraint.
func (Toggle) Format(v any) string {
	if b, _ := v.(bool); b {
		return StateOn
	}
	return StateOff
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
