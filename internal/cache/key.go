package cache

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Key builds the cache key endpoint + ":" + sorted normalized params.
// Numeric values and numeric strings share one canonical form, so
// {"radius": 10} and {"radius": "10.0"} produce the same key.
func Key(endpoint string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(normalize(params[k])))
	}
	return endpoint + ":" + strings.Join(parts, "&")
}

func normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return formatFloat(f)
		}
		return s
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return formatFloat(float64(t))
	case int32:
		return formatFloat(float64(t))
	case int64:
		return formatFloat(float64(t))
	case uint:
		return formatFloat(float64(t))
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, ",")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	if f == 0 {
		return "0" // folds -0
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
