package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

// snapshot holds the in-memory settings values.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

// globalSnapshot stores the latest snapshot atomically. Readers always see a
// complete snapshot: updates are whole-map replacements.
var globalSnapshot atomic.Value // stores snapshot

// init seeds the global snapshot.
func init() {
	globalSnapshot.Store(snapshot{values: map[string]json.RawMessage{}})
}

// Store replaces the in-memory snapshot of database-backed settings.
func Store(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if v == nil {
			next[key] = nil
			continue
		}
		copied := make([]byte, len(v))
		copy(copied, v)
		next[key] = copied
	}

	globalSnapshot.Store(snapshot{
		updatedAt: updatedAt.UTC(),
		values:    next,
	})
}

// UpdatedAt returns the last update timestamp for the settings snapshot.
func UpdatedAt() time.Time {
	return loadSnapshot().updatedAt
}

// Value returns a copy of the raw setting value for a key.
func Value(key string) (json.RawMessage, bool) {
	current := loadSnapshot()
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false
	}
	val, ok := current.values[key]
	if !ok {
		return nil, false
	}
	if val == nil {
		return nil, true
	}
	copied := make([]byte, len(val))
	copy(copied, val)
	return copied, true
}

// IntValue decodes an integer setting, reporting whether it was present and
// well-formed.
func IntValue(key string) (int, bool) {
	raw, ok := Value(key)
	if !ok || len(raw) == 0 {
		return 0, false
	}
	var parsed int
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return 0, false
	}
	return parsed, true
}

// StringsValue decodes a string-list setting.
func StringsValue(key string) ([]string, bool) {
	raw, ok := Value(key)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	var parsed []string
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return nil, false
	}
	return parsed, true
}

// Int64MapValue decodes a string-to-int64 map setting.
func Int64MapValue(key string) (map[string]int64, bool) {
	raw, ok := Value(key)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	var parsed map[string]int64
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return nil, false
	}
	return parsed, true
}

// loadSnapshot returns the current snapshot with safe defaults.
func loadSnapshot() snapshot {
	v := globalSnapshot.Load()
	current, ok := v.(snapshot)
	if !ok {
		return snapshot{values: map[string]json.RawMessage{}}
	}
	if current.values == nil {
		return snapshot{updatedAt: current.updatedAt, values: map[string]json.RawMessage{}}
	}
	return current
}
