// Package storage implements an in-process key-value store: a pluggable
// storage backend, a memory-bounded variant with eviction, an append-only
// version log with undo/redo, and a named event dispatcher doubling as a
// FIFO message queue substrate. See Store for the composed facade.
package storage

import (
	"encoding/json"
	"fmt"
)

// Value is an opaque, JSON-shaped datum: map[string]any, []any, string,
// float64, bool, or nil. Callers own whatever structure they pass in;
// the store never interprets it beyond size estimation and the optional
// "rjson" encryptor wrapper.
type Value = any

// Marshal serializes v the same way every size estimate and dump in this
// package does, so the approximation stays consistent across callers.
func Marshal(v Value) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte, v *Value) error {
	return json.Unmarshal(data, v)
}

// SizeOf approximates the byte cost of storing key→value: the UTF-8 length
// of the key plus the length of value serialized via Marshal. Exact byte
// accounting is a non-goal; this is a serialization-length proxy used by
// both the memory-limited controller and the version controller's memory
// warning.
func SizeOf(key string, value Value) int {
	n := len(key)
	if b, err := Marshal(value); err == nil {
		n += len(b)
	}
	return n
}

// HumanizeBytes formats n as a human-readable size (B, KB, MB, GB, TB, PB).
func HumanizeBytes(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024.0 {
			if unit == "B" {
				return fmt.Sprintf("%.0f %s", size, unit)
			}
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.1f PB", size)
}
