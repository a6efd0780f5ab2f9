package analysis

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var defaultSecretKeys = map[string]struct{}{
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"password":      {},
	"api_key":       {},
	"authorization": {},
	"client_secret": {},
}

// Long opaque strings are treated as credentials regardless of key name.
var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_-]{32,}`)

const redactedPlaceholder = "[redacted]"

// LoadSecretKeys reads key names from a secrets YAML file. A missing or
// malformed file contributes nothing; the defaults always apply.
func LoadSecretKeys(path string) map[string]struct{} {
	keys := map[string]struct{}{}
	raw, err := os.ReadFile(path)
	if err != nil {
		return keys
	}
	var data map[string]interface{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return keys
	}
	for k := range data {
		keys[k] = struct{}{}
	}
	return keys
}

// Redact recursively strips secret values from event data: values under
// secret keys are replaced wholesale, and token-shaped substrings inside any
// string value are masked.
func Redact(data interface{}, secretKeys map[string]struct{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSecretKey(key, secretKeys) {
				out[key] = redactedPlaceholder
				continue
			}
			out[key] = Redact(value, secretKeys)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Redact(item, secretKeys)
		}
		return out
	case string:
		return tokenPattern.ReplaceAllString(v, redactedPlaceholder)
	default:
		return data
	}
}

func isSecretKey(key string, extra map[string]struct{}) bool {
	if _, ok := defaultSecretKeys[key]; ok {
		return true
	}
	_, ok := extra[key]
	return ok
}
