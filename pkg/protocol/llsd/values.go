package llsd

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// LLSD conversions are lenient: a value of the wrong type converts to the
// zero value of the requested type, the way grid servers and viewers treat
// missing or mistyped fields.

// AsMap returns v as a map, nil if it is not one.
func AsMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// AsArray returns v as an array, nil if it is not one.
func AsArray(v any) []any {
	a, _ := v.([]any)
	return a
}

// AsString converts scalars to their string form.
func AsString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case uuid.UUID:
		return value.String()
	case int32:
		return strconv.FormatInt(int64(value), 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case []byte:
		return string(value)
	default:
		return ""
	}
}

// AsInt converts integers, reals, booleans and numeric strings.
func AsInt(v any) int32 {
	switch value := v.(type) {
	case int32:
		return value
	case float64:
		return int32(value)
	case bool:
		if value {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return 0
		}
		return int32(n)
	default:
		return 0
	}
}

// AsUint converts like AsInt, reinterpreting the bits as unsigned. Permission
// masks and flags travel as signed LLSD integers.
func AsUint(v any) uint32 {
	return uint32(AsInt(v))
}

// AsBool converts booleans and integers.
func AsBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case int32:
		return value != 0
	case string:
		return value == "1" || value == "true"
	default:
		return false
	}
}

// AsUUID converts uuids and uuid strings.
func AsUUID(v any) uuid.UUID {
	switch value := v.(type) {
	case uuid.UUID:
		return value
	case string:
		id, err := uuid.Parse(value)
		if err != nil {
			return uuid.Nil
		}
		return id
	default:
		return uuid.Nil
	}
}

// AsDate converts dates and integer unix timestamps.
func AsDate(v any) time.Time {
	switch value := v.(type) {
	case time.Time:
		return value
	case int32:
		if value == 0 {
			return time.Time{}
		}
		return time.Unix(int64(value), 0).UTC()
	case float64:
		if value == 0 {
			return time.Time{}
		}
		return time.Unix(int64(value), 0).UTC()
	default:
		return time.Time{}
	}
}
