package storage

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// eventRootKey is the synthetic-key namespace every listener registration
// lives under.
const eventRootKey = "_Event"

// EventCallback is invoked synchronously on dispatch with the event's
// payload (nil for events that carry none).
type EventCallback func(message Value)

// EventDispatcher registers callbacks under (name, listenerID) pairs and
// glob-dispatches them by name. It is also the substrate MessageQueue uses
// for its own per-queue pushed/popped/empty/cleared notifications.
//
// Dispatch is synchronous and single-threaded; a callback that mutates the
// dispatcher (registers or removes listeners) only affects subsequent
// dispatches, because dispatch snapshots the matching set before invoking
// anything.
type EventDispatcher struct {
	callbacks map[string]EventCallback
}

// NewEventDispatcher returns an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{callbacks: make(map[string]EventCallback)}
}

// eventGlob builds the synthetic key "_Event:<enc>:<id>", where enc is "*"
// for a match-any registration/dispatch glob, or the base64url encoding of
// name otherwise.
func eventGlob(name, id string) string {
	enc := "*"
	if name != "*" {
		enc = base64.RawURLEncoding.EncodeToString([]byte(name))
	}
	return eventRootKey + ":" + enc + ":" + id
}

// splitEventKey parses a synthetic key of the form "_Event:<enc>:<id>" back
// into its enc and id segments. ok is false for anything else.
func splitEventKey(k string) (enc, id string, ok bool) {
	prefix := eventRootKey + ":"
	if !strings.HasPrefix(k, prefix) {
		return "", "", false
	}
	rest := k[len(prefix):]
	i := strings.Index(rest, ":")
	if i < 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// SetEvent registers cb under name. If id is empty, a fresh id is
// generated. Returns the id so the caller can later remove it.
func (d *EventDispatcher) SetEvent(name string, cb EventCallback, id string) string {
	if id == "" {
		id = uuid.NewString()
	}
	d.callbacks[eventGlob(name, id)] = cb
	return id
}

// GetEvent returns the synthetic keys registered under listener id.
func (d *EventDispatcher) GetEvent(id string) []string {
	glob := eventGlob("*", id)
	var out []string
	for k := range d.callbacks {
		if MatchGlob(glob, k) {
			out = append(out, k)
		}
	}
	return out
}

// DeleteEvent removes every registration for listener id, returning how
// many were removed.
func (d *EventDispatcher) DeleteEvent(id string) int {
	keys := d.GetEvent(id)
	for _, k := range keys {
		delete(d.callbacks, k)
	}
	return len(keys)
}

// DispatchEvent invokes, synchronously and in unspecified order, every
// callback registered for name (including match-any registrations); a name
// of "*" invokes every registered callback. The
// matching set is snapshotted before any callback runs, so a callback that
// mutates the dispatcher is safe but its effect is deferred to the next
// dispatch.
func (d *EventDispatcher) DispatchEvent(name string, message Value) {
	encName := "*"
	if name != "*" {
		encName = base64.RawURLEncoding.EncodeToString([]byte(name))
	}
	type entry struct {
		key string
		cb  EventCallback
	}
	var snapshot []entry
	for k, cb := range d.callbacks {
		enc, _, ok := splitEventKey(k)
		if !ok {
			continue
		}
		if encName == "*" || enc == "*" || enc == encName {
			snapshot = append(snapshot, entry{k, cb})
		}
	}
	for _, e := range snapshot {
		e.cb(message)
	}
}

// Events returns every registered synthetic key.
func (d *EventDispatcher) Events() []string {
	out := make([]string, 0, len(d.callbacks))
	for k := range d.callbacks {
		out = append(out, k)
	}
	return out
}

// Clean removes every registration.
func (d *EventDispatcher) Clean() {
	d.callbacks = make(map[string]EventCallback)
}
