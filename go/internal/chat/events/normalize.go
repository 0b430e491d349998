package events

import (
	"bytes"
	"encoding/json"
	"strings"
)

// keyAliases maps legacy field names onto the canonical schema after camel casing.
var keyAliases = map[string]string{
	"_id":      "id",
	"leagueId": "roomId",
	"body":     "message",
}

// opaqueKeys hold maps keyed by user data, which are never rewritten.
var opaqueKeys = map[string]bool{
	"reactions": true,
}

// Normalize rewrites the keys of a JSON document to the canonical camelCase
// schema: user_id becomes userId, display_name becomes displayName and so on.
// When both spellings are present the canonical one wins. Numeric identifiers
// are turned into strings.
func Normalize(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeValue(doc))
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return normalizeObject(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func normalizeObject(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	canonical := make(map[string]bool, len(obj))

	for key, value := range obj {
		name := CanonicalKey(key)
		if canonical[name] {
			continue
		}
		if opaqueKeys[name] {
			out[name] = value
		} else {
			out[name] = normalizeScalar(name, normalizeValue(value))
		}
		if name == key {
			canonical[name] = true
		}
	}
	return out
}

func normalizeScalar(key string, v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if key == "id" || strings.HasSuffix(key, "Id") {
		return n.String()
	}
	return v
}

// CanonicalKey returns the camelCase spelling of a wire field name.
func CanonicalKey(key string) string {
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	if !strings.Contains(key, "_") {
		return key
	}

	parts := strings.Split(strings.Trim(key, "_"), "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(strings.ToLower(part[:1]) + part[1:])
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}

	name := b.String()
	if alias, ok := keyAliases[name]; ok {
		return alias
	}
	return name
}
