package parsers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// decode parses a JSON document keeping numbers as json.Number.
func decode(content []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}

// decodeObject parses content that must be a JSON object.
func decodeObject(platform domain.Platform, content []byte) (map[string]any, error) {
	v, err := decode(content)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &domain.ParseError{Platform: platform, Seq: -1, Field: "$", Reason: "not a JSON object"}
	}
	return obj, nil
}

// requireString returns a non-empty string field or a ParseError.
func requireString(platform domain.Platform, seq int, obj map[string]any, field string) (string, error) {
	raw, ok := obj[field]
	if !ok || raw == nil {
		return "", &domain.ParseError{Platform: platform, Seq: seq, Field: field, Reason: "missing required field"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &domain.ParseError{Platform: platform, Seq: seq, Field: field, Reason: "not a string"}
	}
	if strings.TrimSpace(s) == "" {
		return "", &domain.ParseError{Platform: platform, Seq: seq, Field: field, Reason: "empty"}
	}
	return s, nil
}

// requireArray returns an array field or a ParseError.
func requireArray(platform domain.Platform, seq int, obj map[string]any, field string) ([]any, error) {
	raw, ok := obj[field]
	if !ok || raw == nil {
		return nil, &domain.ParseError{Platform: platform, Seq: seq, Field: field, Reason: "missing required field"}
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, &domain.ParseError{Platform: platform, Seq: seq, Field: field, Reason: "not an array"}
	}
	return arr, nil
}

// requireObject asserts a message entry is an object.
func requireObject(platform domain.Platform, seq int, v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &domain.ParseError{Platform: platform, Seq: seq, Field: "$", Reason: "message is not an object"}
	}
	return obj, nil
}

// metadataExcept copies every field not consumed by the parser.
func metadataExcept(obj map[string]any, consumed ...string) map[string]any {
	skip := make(map[string]struct{}, len(consumed))
	for _, k := range consumed {
		skip[k] = struct{}{}
	}

	meta := make(map[string]any, len(obj))
	for k, v := range obj {
		if _, ok := skip[k]; ok {
			continue
		}
		meta[k] = v
	}
	return meta
}

// withConversation attaches the export-level fields that no message consumed.
// Every message shares the same map.
func withConversation(meta, conv map[string]any) map[string]any {
	if len(conv) > 0 {
		meta["conversation"] = conv
	}
	return meta
}

// firstPresent returns the first non-nil value among keys.
func firstPresent(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// score accumulates fingerprint weights, capped at 1.0.
type score float64

func (s *score) add(ok bool, weight float64) {
	if ok {
		*s += score(weight)
	}
}

func (s score) value() float64 {
	if s > 1 {
		return 1
	}
	return float64(s)
}

// anyModel reports whether any "model"-like string field in the document
// contains one of the substrings. Matching is case-insensitive.
func anyModel(content []byte, substrings ...string) bool {
	found := false
	var walk func(r gjson.Result)
	walk = func(r gjson.Result) {
		if found {
			return
		}
		r.ForEach(func(key, value gjson.Result) bool {
			if value.IsObject() || value.IsArray() {
				walk(value)
			} else if value.Type == gjson.String && isModelKey(key.String()) {
				v := strings.ToLower(value.String())
				for _, sub := range substrings {
					if strings.Contains(v, sub) {
						found = true
						break
					}
				}
			}
			return !found
		})
	}
	walk(gjson.ParseBytes(content))
	return found
}

func isModelKey(k string) bool {
	switch strings.ToLower(k) {
	case "model", "model_slug", "modelversion", "model_version", "default_model_slug":
		return true
	}
	return false
}

// numberValue reads a JSON number as float64, zero otherwise.
func numberValue(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	}
	return 0
}
