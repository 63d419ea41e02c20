package textutil

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Limits bounds a string map before it is handed to an external system.
// A non-positive field disables that bound.
type Limits struct {
	KeyRunes   int
	ValueRunes int
	Entries    int
}

// ClipMap trims keys and values and applies lim. Blank keys and keys longer than
// KeyRunes are dropped rather than cut, since a shortened key would change its meaning.
// When more than Entries keys survive, the lexically smallest are kept.
func ClipMap(values map[string]string, lim Limits) map[string]string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	trimmed := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" || (lim.KeyRunes > 0 && utf8.RuneCountInString(key) > lim.KeyRunes) {
			continue
		}
		if _, dup := trimmed[key]; !dup {
			keys = append(keys, key)
		}
		trimmed[key] = Clip(strings.TrimSpace(value), lim.ValueRunes)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	if lim.Entries > 0 && len(keys) > lim.Entries {
		for _, key := range keys[lim.Entries:] {
			delete(trimmed, key)
		}
	}
	return trimmed
}

// Clip shortens value to at most limit runes without splitting a UTF-8 sequence.
func Clip(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	n := 0
	for i := range value {
		if n == limit {
			return value[:i]
		}
		n++
	}
	return value
}
