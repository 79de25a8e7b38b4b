package storage

import (
	"os"
	"time"

	"github.com/qinhy/singleton-key-value-storage/internal/metrics"
)

// defaultVersionLimitMB and defaultQueueStoreLimitMB match the original
// implementation's defaults.
const (
	defaultVersionLimitMB    = 128.0
	defaultQueueStoreLimitMB = 1024.0
)

// Encryptor is an external string→string transform the facade delegates
// ciphertext encoding to. It is a black box: PEM/ASN.1 parsing and the
// actual cipher are out of scope for this package (see encryptor.go for a
// reference implementation).
type Encryptor interface {
	EncryptString(plaintext string) string
	DecryptString(ciphertext string) string
}

// Store is the facade composing a base storage controller, an event
// dispatcher, a version controller, a message queue controller, and an
// optional Encryptor. Every public mutation computes its inverse from
// current state, records the (forward, revert) pair with the version
// controller (if enabled), applies the mutation, and dispatches a named
// event carrying the plaintext payload.
type Store struct {
	versionControl    bool
	encryptor         Encryptor
	conn              StorageController
	events            *EventDispatcher
	ver               *VersionController
	mq                *MessageQueue
	metrics           *metrics.Metrics
	queuePolicy       EvictionPolicy
	versionLimitMB    float64
	queueStoreLimitMB float64
}

// New returns a Store over an in-memory MapStore. versionControl enables
// the undo/redo/jump log (at the 128MB default limit); encryptor may be
// nil.
func New(versionControl bool, encryptor Encryptor) *Store {
	return NewWithBackend(NewMapStore(), versionControl, encryptor)
}

// NewWithBackend is like New but over an explicit StorageController (e.g.
// a *BboltStore for persistence). The queue's internal backing store uses
// PolicyLRU at the default limits; use NewWithOptions to choose a
// different queue eviction policy or override the version/queue memory
// limits (e.g. PolicyS3FIFO).
func NewWithBackend(backend StorageController, versionControl bool, encryptor Encryptor) *Store {
	return NewWithOptions(backend, versionControl, encryptor, PolicyLRU, defaultVersionLimitMB, defaultQueueStoreLimitMB)
}

// NewWithOptions is like NewWithBackend but also selects the eviction
// policy for the queue's internal bounded-memory backing store, and the
// memory limits (in MB) for the version log and the queue's backing
// store respectively.
func NewWithOptions(backend StorageController, versionControl bool, encryptor Encryptor, queuePolicy EvictionPolicy, versionLimitMB, queueStoreLimitMB float64) *Store {
	s := &Store{
		versionControl:    versionControl,
		encryptor:         encryptor,
		conn:              backend,
		events:            NewEventDispatcher(),
		ver:               NewVersionController(versionLimitMB),
		metrics:           metrics.New(),
		queuePolicy:       queuePolicy,
		versionLimitMB:    versionLimitMB,
		queueStoreLimitMB: queueStoreLimitMB,
	}
	s.resetQueue()
	return s
}

func (s *Store) resetQueue() {
	onEvict := func(string, Value) { s.metrics.Evictions.Add(1) }
	qStore := NewMemoryLimited(NewMapStore(), s.queueStoreLimitMB, s.queuePolicy, onEvict, nil)
	s.mq = NewMessageQueue(qStore, nil)
}

// ParseEvictionPolicy maps a config string ("fifo", "lru", "s3fifo") to an
// EvictionPolicy, defaulting to PolicyLRU for an unrecognized value.
func ParseEvictionPolicy(name string) EvictionPolicy {
	switch name {
	case "fifo":
		return PolicyFIFO
	case "s3fifo":
		return PolicyS3FIFO
	default:
		return PolicyLRU
	}
}

// SwitchBackend replaces the backing store and resets events, version
// log, and queue state — mirroring the original implementation's
// switch_backend. Existing listeners and undo history do not carry over.
func (s *Store) SwitchBackend(backend StorageController) {
	s.conn = backend
	s.events = NewEventDispatcher()
	s.ver = NewVersionController(s.versionLimitMB)
	s.resetQueue()
}

// ---- reads ----

// Exists reports whether key is present.
func (s *Store) Exists(key string) bool { return s.conn.Exists(key) }

// Keys returns every key matching pattern.
func (s *Store) Keys(pattern string) []string { return s.conn.Keys(pattern) }

// Get returns the value for key. If an encryptor is configured and the
// stored value is the {"rjson": ciphertext} wrapper, it is decrypted and
// parsed transparently.
func (s *Store) Get(key string) (Value, bool) {
	v, ok := s.conn.Get(key)
	if !ok {
		return nil, false
	}
	return s.unwrap(v), true
}

func (s *Store) unwrap(v Value) Value {
	obj, ok := v.(map[string]Value)
	if !ok || len(obj) != 1 {
		return v
	}
	cipher, ok := obj["rjson"].(string)
	if !ok {
		return v
	}
	if s.encryptor == nil {
		return v
	}
	plain := s.encryptor.DecryptString(cipher)
	var out Value
	if err := Unmarshal([]byte(plain), &out); err != nil {
		return v
	}
	return out
}

// Dumps serializes every key's plaintext value as a single JSON object
// (decrypting first, if applicable).
func (s *Store) Dumps() (string, error) {
	out := make(map[string]Value)
	for _, k := range s.Keys("*") {
		if v, ok := s.Get(k); ok {
			out[k] = v
		}
	}
	b, err := Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Dump writes Dumps() to path.
func (s *Store) Dump(path string) error {
	text, err := s.Dumps()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o600) // #nosec G306 -- path is caller-controlled
}

// ---- mutations ----

// Set upserts key→value, recording the inverse (Set to the old value, or
// Delete if key was absent) and dispatching "set" with the plaintext
// {key, value} payload.
func (s *Store) Set(key string, value Value) {
	forward := SetOp(key, value)
	var revert *Op
	if old, ok := s.Get(key); ok {
		r := SetOp(key, old)
		revert = &r
	} else {
		r := DeleteOp(key)
		revert = &r
	}
	s.recordAndApply(forward, revert)
}

// Delete removes key, recording the inverse (Set back to the old value,
// or no revert if key was absent) and dispatching "delete" with {key}.
func (s *Store) Delete(key string) {
	old, existed := s.Get(key)
	forward := DeleteOp(key)
	var revert *Op
	if existed {
		r := SetOp(key, old)
		revert = &r
	}
	s.recordAndApply(forward, revert)
}

// Clean removes every entry, recording a revert that restores the
// pre-clean snapshot via Loads.
func (s *Store) Clean() {
	snapshot, _ := s.Dumps()
	forward := CleanOp()
	revert := LoadsOp(snapshot)
	s.recordAndApply(forward, &revert)
}

// Load replaces/merges entries from the JSON file at path, recording a
// revert that restores the pre-load snapshot via Loads.
func (s *Store) Load(path string) {
	snapshot, _ := s.Dumps()
	forward := LoadOp(path)
	revert := LoadsOp(snapshot)
	s.recordAndApply(forward, &revert)
}

// Loads replaces/merges entries from a JSON object text, recording a
// revert that restores the pre-loads snapshot via Loads.
func (s *Store) Loads(jsonText string) {
	snapshot, _ := s.Dumps()
	forward := LoadsOp(jsonText)
	revert := LoadsOp(snapshot)
	s.recordAndApply(forward, &revert)
}

func (s *Store) recordAndApply(forward Op, revert *Op) string {
	var warning string
	if s.versionControl {
		warning = s.ver.AddOperation(forward, revert)
		if warning != "" {
			s.metrics.VersionWarnings.Add(1)
		}
	}
	start := time.Now()
	s.editWithEvents(forward)
	if forward.Kind == OpSet {
		s.metrics.RecordSetLatency(time.Since(start))
	}
	return warning
}

// editWithEvents applies op to the backing store and dispatches its
// corresponding mutation event with the plaintext payload. This is the
// broadcasting path used by every direct mutator; version replay uses
// editLocal instead so undo/redo never re-emits events (which would
// double-apply against a mirroring replica).
func (s *Store) editWithEvents(op Op) {
	start := time.Now()
	switch op.Kind {
	case OpSet:
		s.applySet(op.Key, op.Val)
		s.events.DispatchEvent("set", map[string]Value{"key": op.Key, "value": op.Val})
	case OpDelete:
		s.conn.Delete(op.Key)
		s.metrics.Deletes.Add(1)
		s.events.DispatchEvent("delete", map[string]Value{"key": op.Key})
	case OpClean:
		s.conn.Clean()
		s.metrics.Cleans.Add(1)
		s.events.DispatchEvent("clean", map[string]Value{})
	case OpLoad:
		_ = s.conn.Load(op.Path)
		s.events.DispatchEvent("load", map[string]Value{"path": op.Path})
	case OpLoads:
		s.conn.Loads(op.Text)
		s.events.DispatchEvent("loads", map[string]Value{"json": op.Text})
	}
	s.metrics.EventsDispatched.Add(1)
	s.metrics.RecordDispatchLatency(time.Since(start))
}

// applySet stores value, wrapping it as {"rjson": ciphertext} when an
// encryptor is configured.
func (s *Store) applySet(key string, value Value) {
	if s.encryptor != nil {
		plain, err := Marshal(value)
		if err == nil {
			cipher := s.encryptor.EncryptString(string(plain))
			s.conn.Set(key, map[string]Value{"rjson": cipher})
			s.metrics.Sets.Add(1)
			return
		}
	}
	s.conn.Set(key, value)
	s.metrics.Sets.Add(1)
}

// editLocal applies op to the backing store without dispatching any
// event — used exclusively during version replay (undo/redo/jump).
func (s *Store) editLocal(op Op) {
	switch op.Kind {
	case OpSet:
		s.applySet(op.Key, op.Val)
	case OpDelete:
		s.conn.Delete(op.Key)
		s.metrics.Deletes.Add(1)
	case OpClean:
		s.conn.Clean()
		s.metrics.Cleans.Add(1)
	case OpLoad:
		_ = s.conn.Load(op.Path)
	case OpLoads:
		s.conn.Loads(op.Text)
	}
}

// ---- versioning surface ----

// RevertOneOperation undoes the current operation, if any, replaying
// silently (no events).
func (s *Store) RevertOneOperation() { s.ver.RevertOne(s.editLocal) }

// ForwardOneOperation redoes the next operation, if any, replaying
// silently (no events).
func (s *Store) ForwardOneOperation() { s.ver.ForwardOne(s.editLocal) }

// CurrentVersion returns the current operation id, or "" if none.
func (s *Store) CurrentVersion() string { return s.ver.Current() }

// Versions returns the ordered operation ids in the log.
func (s *Store) Versions() []string { return s.ver.Versions() }

// ToVersion replays forward/revert ops until current reaches target.
func (s *Store) ToVersion(target string) error {
	return s.ver.ToVersion(target, s.editLocal)
}

// PopOperation removes up to n version records (see VersionController.PopOperation).
func (s *Store) PopOperation(n int) []Op { return s.ver.PopOperation(n) }

// ---- events surface ----

// SetEvent registers cb under name, returning the (possibly generated) id.
func (s *Store) SetEvent(name string, cb EventCallback, id string) string {
	return s.events.SetEvent(name, cb, id)
}

// GetEvent returns the synthetic keys registered under listener id.
func (s *Store) GetEvent(id string) []string { return s.events.GetEvent(id) }

// DeleteEvent removes every registration for listener id.
func (s *Store) DeleteEvent(id string) int { return s.events.DeleteEvent(id) }

// DispatchEvent manually dispatches name with message (mainly for tests;
// real mutation events are dispatched automatically by editWithEvents).
func (s *Store) DispatchEvent(name string, message Value) {
	s.events.DispatchEvent(name, message)
}

// Events returns every registered synthetic listener key.
func (s *Store) Events() []string { return s.events.Events() }

// ---- queue surface ----

// Push appends msg to queue's tail.
func (s *Store) Push(queue string, msg Value) string {
	s.metrics.QueuePushes.Add(1)
	return s.mq.Push(queue, msg)
}

// Pop removes and returns the oldest message in queue.
func (s *Store) Pop(queue string) (Value, bool) {
	v, ok := s.mq.Pop(queue)
	if ok {
		s.metrics.QueuePops.Add(1)
	}
	return v, ok
}

// Peek returns the oldest message in queue without removing it.
func (s *Store) Peek(queue string) (Value, bool) { return s.mq.Peek(queue) }

// QueueSize returns queue's current size.
func (s *Store) QueueSize(queue string) int64 { return s.mq.QueueSize(queue) }

// ClearQueue empties queue and dispatches "cleared".
func (s *Store) ClearQueue(queue string) { s.mq.Clear(queue) }

// AddQueueListener registers cb on queue's event of the given kind.
func (s *Store) AddQueueListener(queue, kind string, cb EventCallback, id string) string {
	return s.mq.AddListener(queue, kind, cb, id)
}

// RemoveQueueListener removes every registration for listener id.
func (s *Store) RemoveQueueListener(id string) int { return s.mq.RemoveListener(id) }

// ---- metrics ----

// Metrics returns a point-in-time snapshot of the store's operation
// counters and latency statistics.
func (s *Store) Metrics() metrics.Snapshot { return s.metrics.Snapshot() }
