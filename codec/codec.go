// Package codec anotates values so that timestamps survive a JSON round
// trip. encoding/json has no native timestamp type: a time.Time marshals to
// an RFC3339 string indistinguishable, on the wire, from a string that
// merely looks like a timestamp. Annotate/Deannotate sidestep that without
// hijacking strings that happen to resemble ISO-8601, which matters because
// signed hashes (sign.Signer) must stay stable across the round trip.
package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// dateSuffix is appended to the RFC3339Nano encoding of a time.Time so
// Deannotate can tell a true timestamp apart from an ordinary string that
// merely looks like one.
const dateSuffix = "@@@D"

var dateSuffixPattern = regexp.MustCompile(`^(.+)` + regexp.QuoteMeta(dateSuffix) + `$`)

// Annotate recursively rewrites v, replacing any time.Time with a string
// carrying the dateSuffix marker. Arrays and maps are walked; every other
// scalar — including strings that look like ISO-8601 timestamps — passes
// through unchanged.
func Annotate(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano) + dateSuffix
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Annotate(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Annotate(item)
		}
		return out
	default:
		return v
	}
}

// Deannotate reverses Annotate after a JSON decode: any string matching the
// exact "<ISO-8601>@@@D" suffix pattern is parsed back into a time.Time.
// Strings that merely resemble a timestamp, but lack the marker, are left
// untouched. Arrays and maps are walked recursively.
func Deannotate(v any) any {
	switch val := v.(type) {
	case string:
		if m := dateSuffixPattern.FindStringSubmatch(val); m != nil {
			if t, err := time.Parse(time.RFC3339Nano, m[1]); err == nil {
				return t
			}
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Deannotate(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Deannotate(item)
		}
		return out
	default:
		return v
	}
}

// Serialize annotates v and marshals the result to JSON text.
func Serialize(v any) (string, error) {
	data, err := json.Marshal(Annotate(v))
	if err != nil {
		return "", fmt.Errorf("codec.Serialize: marshal: %w", err)
	}
	return string(data), nil
}

// Deserialize decodes JSON text into the generic shape encoding/json
// produces (map[string]any, []any, float64, string, bool, nil) and then
// deannotates it, recovering any encoded timestamps.
func Deserialize(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("codec.Deserialize: unmarshal: %w", err)
	}
	return Deannotate(v), nil
}
