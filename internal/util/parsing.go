package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type StringParsable interface {
	string | []string | int | []int | int64 | []int64 | float64 | bool | time.Duration | []time.Duration
}

func envVarStringSplitter(s string) []string {
	parts := strings.Split(s, ",")
	v := make([]string, 0, len(parts))
	for _, p := range parts {
		v = append(v, strings.TrimSpace(p))
	}
	return v
}

func envSliceTypeParser[T StringParsable](s string, f func(string) (T, error)) ([]T, error) {
	parts := envVarStringSplitter(s)
	v := make([]T, 0, len(parts))
	for _, p := range parts {
		v2, err := f(p)
		if err != nil {
			return v, err
		}
		v = append(v, v2)
	}
	return v, nil
}

// ParseStringAs parses the input string as a StringParsable type, returning the default
// if an error occurs. It will panic if the type from StringParsable is not implemented.
func ParseStringAs[T StringParsable](v string, def T) T {
	v = strings.Trim(v, `"`) // in case something comes in as if it were a json string

	var parser func(string) (any, error)
	switch any(def).(type) {
	case string:
		parser = func(s string) (any, error) { return s, nil }
	case []string:
		parser = func(s string) (any, error) {
			return envSliceTypeParser(s, func(s string) (string, error) { return s, nil })
		}
	case int:
		parser = func(s string) (any, error) { return strconv.Atoi(s) }
	case []int:
		parser = func(s string) (any, error) {
			return envSliceTypeParser(s, strconv.Atoi)
		}
	case int64:
		parser = func(s string) (any, error) { return strconv.ParseInt(s, 0, 64) }
	case []int64:
		parser = func(s string) (any, error) {
			return envSliceTypeParser(s, func(s2 string) (int64, error) {
				return strconv.ParseInt(s2, 0, 64)
			})
		}
	case time.Duration:
		parser = func(s string) (any, error) { return time.ParseDuration(s) }
	case []time.Duration:
		parser = func(s string) (any, error) {
			return envSliceTypeParser(s, time.ParseDuration)
		}
	case bool:
		parser = func(s string) (any, error) { return strconv.ParseBool(s) }
	case float64:
		parser = func(s string) (any, error) { return strconv.ParseFloat(s, 64) }
	default:
		panic("ParseStringAs got a type we can't handle")
	}

	val, err := parser(v)
	if err != nil {
		return def
	}
	return val.(T)
}

func ParseString(src any) string {
	if src == nil {
		return ""
	}
	switch v := src.(type) {
	case string:
		return v
	case []uint8:
		return string(v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func RandomString(l int) string {
	id := uuid.NewString()
	s := strings.ReplaceAll(id, "-", "")
	for len(s) < l {
		id = uuid.NewString()
		t := strings.ReplaceAll(id, "-", "")
		s = s + t
	}
	return s[:l]
}

var errNotInteger = errors.New("not an integer")

// ToInt64 converts a decoded JSON/YAML/text value to an integer. Fractional
// numbers and non-numeric strings are rejected rather than truncated.
func ToInt64(m any) (int64, error) {
	switch val := m.(type) {
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case uint8:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return 0, errors.Wrapf(errNotInteger, "%d overflows", val)
		}
		return int64(val), nil
	case []uint8:
		return ToInt64(string(val))
	case string:
		conv, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(errNotInteger, "%q", val)
		}
		return conv, nil
	case float32:
		return ToInt64(float64(val))
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || val > math.MaxInt64 || val < math.MinInt64 {
			return 0, errors.Wrapf(errNotInteger, "%v", val)
		}
		return int64(val), nil
	default:
		return 0, errors.Wrapf(errNotInteger, "unsupported type %T", m)
	}
}

var errNotBool = errors.New("not a boolean")

// ToBool accepts booleans, their string forms and the integers 0 and 1.
func ToBool(m any) (bool, error) {
	switch val := m.(type) {
	case bool:
		return val, nil
	case string, []uint8:
		b, err := strconv.ParseBool(strings.TrimSpace(ParseString(val)))
		if err != nil {
			switch strings.ToLower(strings.TrimSpace(ParseString(val))) {
			case "on", "yes":
				return true, nil
			case "off", "no":
				return false, nil
			}
			return false, errors.Wrapf(errNotBool, "%q", ParseString(val))
		}
		return b, nil
	}
	i, err := ToInt64(m)
	if err != nil || (i != 0 && i != 1) {
		return false, errors.Wrapf(errNotBool, "%v", m)
	}
	return i == 1, nil
}
