package storage

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// queueRootKey and queueEventRoot are the synthetic-key namespaces a
// MessageQueue's backing store and event names live under.
const (
	queueRootKey   = "_MessageQueue"
	queueEventRoot = "MQE"
)

// queueKind enumerates the four events a queue dispatches.
type queueKind string

const (
	queuePushed  queueKind = "pushed"
	queuePopped  queueKind = "popped"
	queueEmpty   queueKind = "empty"
	queueCleared queueKind = "cleared"
)

type queueMeta struct {
	Head int64 `json:"head"`
	Tail int64 `json:"tail"`
}

// MessageQueue is a per-queue head/tail FIFO built on a MemoryLimited
// backing store and an EventDispatcher. Each queue q stores its meta at
// "_MessageQueue:<b64(q)>" and its elements at
// "_MessageQueue:<b64(q)>:<index>". Queue storage is logically
// independent of a Store's primary keyspace — they must never share one.
type MessageQueue struct {
	backing    *MemoryLimited
	dispatcher *EventDispatcher
}

// NewMessageQueue builds a MessageQueue over backing, creating its own
// EventDispatcher if dispatcher is nil.
func NewMessageQueue(backing *MemoryLimited, dispatcher *EventDispatcher) *MessageQueue {
	if dispatcher == nil {
		dispatcher = NewEventDispatcher()
	}
	return &MessageQueue{backing: backing, dispatcher: dispatcher}
}

func qName(queue string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(queue))
}

func qMetaKey(queue string) string {
	return queueRootKey + ":" + qName(queue)
}

func qElemKey(queue string, index int64) string {
	return queueRootKey + ":" + qName(queue) + ":" + strconv.FormatInt(index, 10)
}

func qEventName(queue string, kind queueKind) string {
	return queueEventRoot + ":" + qName(queue) + ":" + string(kind)
}

func (q *MessageQueue) loadMeta(queue string) (int64, int64) {
	v, ok := q.backing.Get(qMetaKey(queue))
	if ok {
		if obj, ok := v.(map[string]Value); ok {
			return toInt64(obj["head"]), toInt64(obj["tail"])
		}
	}
	q.saveMeta(queue, 0, 0)
	return 0, 0
}

func toInt64(v Value) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func (q *MessageQueue) saveMeta(queue string, head, tail int64) {
	q.backing.Set(qMetaKey(queue), map[string]Value{"head": head, "tail": tail})
}

func (q *MessageQueue) dispatch(queue string, kind queueKind, message Value) {
	q.dispatcher.DispatchEvent(qEventName(queue, kind), message)
}

// AddListener registers cb on queue's event of the given kind
// ("pushed"/"popped"/"empty"/"cleared"). If id is empty a fresh id is
// generated.
func (q *MessageQueue) AddListener(queue string, kind string, cb EventCallback, id string) string {
	return q.dispatcher.SetEvent(qEventName(queue, queueKind(kind)), cb, id)
}

// RemoveListener removes every registration for listener id, returning how
// many were removed.
func (q *MessageQueue) RemoveListener(id string) int {
	return q.dispatcher.DeleteEvent(id)
}

// Push appends msg to the tail of queue and dispatches "pushed" with msg.
// Returns the element's storage key.
func (q *MessageQueue) Push(queue string, msg Value) string {
	head, tail := q.loadMeta(queue)
	key := qElemKey(queue, tail)
	q.backing.Set(key, msg)
	tail++
	q.saveMeta(queue, head, tail)
	q.dispatch(queue, queuePushed, msg)
	return key
}

// advancePastHoles advances head while [head, tail) points at a hole
// (an element key missing due to eviction), without persisting.
func (q *MessageQueue) advancePastHoles(queue string, head, tail int64) int64 {
	for head < tail {
		if _, ok := q.backing.Get(qElemKey(queue, head)); ok {
			break
		}
		head++
	}
	return head
}

// popOrPeek implements both Pop and Peek: load meta, skip holes, read the
// head element. Pop additionally deletes it, persists the advanced head,
// and dispatches popped/empty.
func (q *MessageQueue) popOrPeek(queue string, peek bool) (Value, bool) {
	head, tail := q.loadMeta(queue)
	for {
		head = q.advancePastHoles(queue, head, tail)
		if head >= tail {
			return nil, false
		}

		key := qElemKey(queue, head)
		msg, ok := q.backing.Get(key)
		if !ok {
			// Rare: the hole appeared between advancePastHoles and this
			// read. Advance past it locally and keep looking; Peek must
			// not persist any hole-skipping advance (spec §4.4 step 2),
			// so this loop never writes meta on Peek's behalf.
			head++
			continue
		}
		if peek {
			return msg, true
		}

		q.backing.Delete(key)
		head++
		q.saveMeta(queue, head, tail)
		q.dispatch(queue, queuePopped, msg)
		if queueSizeFromMeta(head, tail) == 0 {
			q.dispatch(queue, queueEmpty, nil)
		}
		return msg, true
	}
}

// Pop removes and returns the oldest message in queue, skipping any holes.
// Returns (nil, false) if the queue is empty.
func (q *MessageQueue) Pop(queue string) (Value, bool) {
	return q.popOrPeek(queue, false)
}

// Peek returns the oldest message in queue without removing it. Does not
// persist any hole-skipping advance.
func (q *MessageQueue) Peek(queue string) (Value, bool) {
	return q.popOrPeek(queue, true)
}

func queueSizeFromMeta(head, tail int64) int64 {
	if tail < head {
		return 0
	}
	return tail - head
}

// QueueSize returns tail-head from meta, without hole-compacting.
func (q *MessageQueue) QueueSize(queue string) int64 {
	head, tail := q.loadMeta(queue)
	return queueSizeFromMeta(head, tail)
}

// Clear deletes every element key belonging to queue plus its meta entry,
// then dispatches "cleared".
func (q *MessageQueue) Clear(queue string) {
	prefix := queueRootKey + ":" + qName(queue) + ":"
	for _, k := range q.backing.Keys(queueRootKey + ":*") {
		if strings.HasPrefix(k, prefix) {
			q.backing.Delete(k)
		}
	}
	q.backing.Delete(qMetaKey(queue))
	q.dispatch(queue, queueCleared, nil)
}
