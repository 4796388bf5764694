package features

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
)

// Fingerprint hashes the raw inputs so a later render can tell whether they drifted
// from the inputs behind the last prediction. Numbers are normalised to float64 so
// 30 and 30.0 hash the same; map keys are sorted by encoding/json.
func Fingerprint(raw RawInputs) string {
	normalised := make(map[string]any, len(raw))
	for k, v := range raw {
		normalised[k] = normaliseValue(v)
	}

	data, err := json.Marshal(normalised)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", normalised))
	}

	return fmt.Sprintf("%x", md5.Sum(data))
}

func normaliseValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
