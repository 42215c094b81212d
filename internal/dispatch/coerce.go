package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zorak1103/ha-macs/internal/catalog"
)

// Coercer validates a raw service argument and returns the normalized value.
// Errors wrap ErrInvalidArgument.
type Coercer func(raw any) (any, error)

// Float accepts numbers and numeric strings inside [min, max].
func Float(lo, hi float64) Coercer {
	return func(raw any) (any, error) {
		f, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a number", ErrInvalidArgument, raw)
		}
		if math.IsNaN(f) || f < lo || f > hi {
			return nil, fmt.Errorf("%w: %v outside [%v, %v]", ErrInvalidArgument, raw, lo, hi)
		}
		return f, nil
	}
}

// Bool accepts Go bools, the numbers 1 and 0, and the case-insensitive
// strings 1/true/on/yes and 0/false/off/no.
func Bool() Coercer {
	return func(raw any) (any, error) {
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "1", "true", "on", "yes":
				return true, nil
			case "0", "false", "off", "no":
				return false, nil
			}
		default:
			if f, ok := toFloat(raw); ok {
				switch f {
				case 1:
					return true, nil
				case 0:
					return false, nil
				}
			}
		}
		return nil, fmt.Errorf("%w: %v is not a boolean", ErrInvalidArgument, raw)
	}
}

// Enum accepts a member of options, matched case-insensitively and returned
// in its canonical spelling.
func Enum(options []string) Coercer {
	e := catalog.Enum{Options: options}
	return func(raw any) (any, error) {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a string", ErrInvalidArgument, raw)
		}
		opt, ok := e.Lookup(s)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not one of %s", ErrInvalidArgument, s, strings.Join(options, ", "))
		}
		return opt, nil
	}
}

// CoercerFor derives the coercer matching an entity constraint.
func CoercerFor(c catalog.Constraint) Coercer {
	switch cons := c.(type) {
	case catalog.Range:
		return Float(cons.Min, cons.Max)
	case catalog.Enum:
		return Enum(cons.Options)
	default:
		return Bool()
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
