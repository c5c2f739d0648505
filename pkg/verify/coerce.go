package verify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cgast/canarygate/pkg/spec"
)

// Coerce converts an extracted value into typ.
func Coerce(value any, typ spec.ValueType) (any, error) {
	switch typ {
	case spec.TypeNumber, "":
		f, err := toNumber(value)
		if err != nil {
			return nil, err
		}
		return f, nil
	case spec.TypeString:
		return toString(value), nil
	case spec.TypeBoolean:
		return toBool(value), nil
	case spec.TypeJSON:
		return value, nil
	default:
		return nil, fmt.Errorf("unknown type: %s", typ)
	}
}

// CoerceWithDefault is Coerce with a fallback: when conversion fails and def
// is set, the coerced default is returned and defaulted is true.
func CoerceWithDefault(value any, typ spec.ValueType, def any) (out any, defaulted bool, err error) {
	out, err = Coerce(value, typ)
	if err == nil {
		return out, false, nil
	}
	if def == nil {
		return nil, false, &ConversionError{Value: value, Type: string(typ), Err: err}
	}
	out, defErr := Coerce(def, typ)
	if defErr != nil {
		return nil, false, &ConversionError{Value: def, Type: string(typ), Default: true, Err: defErr}
	}
	return out, true, nil
}

// CoerceExpected converts a configured comparison value into typ so it
// compares against coerced extracted values. Strings are accepted for
// number and boolean checks ("10", "true"); json values are left as-is.
func CoerceExpected(value any, typ spec.ValueType) (any, error) {
	switch typ {
	case spec.TypeNumber, "":
		f, err := toNumber(value)
		if err != nil {
			return nil, err
		}
		return f, nil
	case spec.TypeString:
		return toString(value), nil
	case spec.TypeBoolean:
		switch b := value.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("not a boolean: %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("not a boolean: %v", value)
	default:
		return value, nil
	}
}

func toNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is null")
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "false", "0", "":
			return false
		}
		return true
	case nil:
		return false
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		if f, err := toNumber(v); err == nil {
			return f != 0
		}
		return true
	}
}
