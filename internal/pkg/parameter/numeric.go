package parameter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
)

// StrToFloat parses a number the way the hOn cloud encodes them: integers
// first, then decimals where a comma may be the decimal separator.
func StrToFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)

	if i, err := swag.ConvertInt64(value); err == nil {
		return float64(i), nil
	}

	f, err := swag.ConvertFloat64(strings.Replace(value, ",", ".", 1))
	if err != nil {
		return 0, errors.Errorf("not a number: %q", value)
	}

	return f, nil
}

// FormatNumber renders integral values without a decimal part
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return swag.FormatInt64(int64(f))
	}

	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToString renders a decoded JSON value as the string form used on the wire
func ToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return FormatNumber(t)
	case float32:
		return FormatNumber(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return swag.FormatInt64(t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	}

	return fmt.Sprint(v)
}

func toFloat(v interface{}, fallback float64) float64 {
	switch t := v.(type) {
	case nil:
		return fallback
	case float64:
		return t
	case int:
		return float64(t)
	}

	f, err := StrToFloat(ToString(v))
	if err != nil {
		return fallback
	}
	return f
}

func toBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	}

	s := ToString(v)
	return s != "" && s != "0" && !strings.EqualFold(s, "false")
}

func toStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, i := range t {
			out = append(out, ToString(i))
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return strings.Split(t, "|")
	}

	return nil
}
