// Package snapshot holds the in-memory state shared by every dashboard
// consumer: a mapping from domain key (e.g. "dashboard", "queue",
// "analytics") to the latest value the backend reported for it.
package snapshot

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Snapshot maps domain keys to opaque backend values. Values are owned by
// the backend and replaced wholesale per key; consumers must not mutate them.
type Snapshot map[string]json.RawMessage

// Clone returns a shallow copy. The RawMessage values are shared, which is
// safe under the read-only contract for consumers.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ForError builds the error-shaped snapshot broadcast when a fetch fails
// outright. Consumers render a visible degraded state from it instead of
// silently showing stale data.
func ForError(msg string) Snapshot {
	status, _ := json.Marshal("error")
	detail, _ := json.Marshal(msg)
	return Snapshot{
		"status":    status,
		"error":     detail,
		"timestamp": json.RawMessage(strconv.FormatInt(time.Now().UnixMilli(), 10)),
	}
}

// IsError reports whether s is an error-shaped snapshot.
func (s Snapshot) IsError() bool {
	v, ok := s["status"]
	return ok && bytes.Equal(bytes.TrimSpace(v), []byte(`"error"`))
}

// Acceptable reports whether an incoming value may replace a cached one.
// JSON null and empty composites are rejected so a transient empty payload
// (e.g. a producer-side cache warm-up) cannot blank out good data.
func Acceptable(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	switch {
	case len(t) == 0:
		return false
	case bytes.Equal(t, []byte("null")):
		return false
	case bytes.Equal(t, []byte("{}")), bytes.Equal(t, []byte("[]")):
		return false
	}
	return true
}
