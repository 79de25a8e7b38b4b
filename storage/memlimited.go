package storage

import "container/list"

// EvictionPolicy selects which end of the order list is sacrificed first.
type EvictionPolicy int

const (
	// PolicyFIFO evicts in strict insertion order.
	PolicyFIFO EvictionPolicy = iota
	// PolicyLRU evicts the least-recently-touched key. Reads do not touch
	// automatically — see MemoryLimited.Get.
	PolicyLRU
	// PolicyS3FIFO evicts via the S3-FIFO algorithm (see s3fifo.go):
	// single-access keys are evicted cheaply from a small probationary
	// queue, while keys Touched at least once promote into a protected
	// queue, giving better scan resistance than plain FIFO at a fraction
	// of LRU's per-access bookkeeping.
	PolicyS3FIFO
)

// OnEvict is invoked synchronously with the key and value of every entry
// evicted by maybeEvict.
type OnEvict func(key string, value Value)

// MemoryLimited wraps a StorageController and adds bounded-memory
// semantics: a size estimate per entry, an ordered eviction queue, and a
// pinned set exempt from eviction.
//
// Contract (see spec §4.2): Get never mutates order even under LRU —
// callers who need strict LRU must call Touch after a successful Get.
// Pinned keys are skipped by eviction; under PolicyFIFO/PolicyLRU they are
// never reordered, while under PolicyS3FIFO a pinned key met during victim
// selection is rotated to the back of its queue. If only pinned keys remain
// above the limit, eviction halts silently.
type MemoryLimited struct {
	backing  StorageController
	maxBytes int64 // 0 disables eviction
	policy   EvictionPolicy
	onEvict  OnEvict

	sizes        map[string]int64
	order        *list.List // front = eviction candidate (PolicyFIFO/PolicyLRU)
	elems        map[string]*list.Element
	s3           *s3fifoState // non-nil only under PolicyS3FIFO
	pinned       map[string]bool
	currentBytes int64
}

// NewMemoryLimited wraps backing with bounded-memory semantics.
// maxMemoryMB <= 0 disables eviction. onEvict may be nil. pinned may be
// nil or empty.
func NewMemoryLimited(backing StorageController, maxMemoryMB float64, policy EvictionPolicy, onEvict OnEvict, pinned []string) *MemoryLimited {
	if maxMemoryMB < 0 {
		maxMemoryMB = 0
	}
	pinSet := make(map[string]bool, len(pinned))
	for _, k := range pinned {
		pinSet[k] = true
	}
	m := &MemoryLimited{
		backing:  backing,
		maxBytes: int64(maxMemoryMB * 1024 * 1024),
		policy:   policy,
		onEvict:  onEvict,
		sizes:    make(map[string]int64),
		order:    list.New(),
		elems:    make(map[string]*list.Element),
		pinned:   pinSet,
	}
	if policy == PolicyS3FIFO {
		m.s3 = newS3FIFOState()
	}
	return m
}

// Pin exempts key from eviction. Pinning itself does not reorder key.
func (m *MemoryLimited) Pin(key string) { m.pinned[key] = true }

// Unpin makes key eligible for eviction again.
func (m *MemoryLimited) Unpin(key string) { delete(m.pinned, key) }

// Exists reports whether key is present.
func (m *MemoryLimited) Exists(key string) bool { return m.backing.Exists(key) }

// Set upserts key→value. Under PolicyS3FIFO an overwrite of a resident
// key keeps its existing queue position and frequency counter, matching
// the reference S3-FIFO cache's in-place update; under PolicyFIFO/
// PolicyLRU every Set (new or overwrite) lands at the back of the order,
// as a fresh insertion. maybeEvict runs afterward either way.
func (m *MemoryLimited) Set(key string, value Value) {
	if m.s3 != nil {
		resident := m.isResident(key)
		m.backing.Set(key, value)
		m.accountSize(key, value)
		if !resident {
			m.s3.insert(key)
		}
		m.maybeEvict()
		return
	}

	if m.backing.Exists(key) {
		m.reduceAccounting(key)
	}
	m.backing.Set(key, value)
	m.accountSize(key, value)
	m.elems[key] = m.order.PushBack(key)

	m.maybeEvict()
}

// isResident reports whether key is already tracked by the eviction
// bookkeeping (as opposed to simply present in the backing store).
func (m *MemoryLimited) isResident(key string) bool {
	if m.s3 != nil {
		_, ok := m.s3.entries[key]
		return ok
	}
	_, ok := m.elems[key]
	return ok
}

// accountSize records key's current size, adjusting currentBytes by the
// delta from any prior recorded size.
func (m *MemoryLimited) accountSize(key string, value Value) {
	sz := int64(SizeOf(key, value))
	if old, ok := m.sizes[key]; ok {
		m.currentBytes -= old
	}
	m.sizes[key] = sz
	m.currentBytes += sz
}

// Get returns the value for key. This is deliberately non-mutating even
// under LRU: call Touch after a successful Get if strict recency matters.
func (m *MemoryLimited) Get(key string) (Value, bool) {
	return m.backing.Get(key)
}

// Touch marks key as recently used: under PolicyLRU it moves to the
// most-recently-used end of the order; under PolicyS3FIFO it increments
// the key's saturating frequency counter, making it eligible for
// promotion out of the probationary queue. A no-op under PolicyFIFO or
// if key is not resident.
func (m *MemoryLimited) Touch(key string) {
	switch m.policy {
	case PolicyLRU:
		if elem, ok := m.elems[key]; ok {
			m.order.MoveToBack(elem)
		}
	case PolicyS3FIFO:
		m.s3.touch(key)
	}
}

// Delete removes key, returning its prior value if it existed.
func (m *MemoryLimited) Delete(key string) (Value, bool) {
	if m.backing.Exists(key) {
		m.reduceAccounting(key)
	}
	return m.backing.Delete(key)
}

// reduceAccounting removes key's size accounting and its eviction-order
// entry, regardless of policy. It does not touch the backing store.
func (m *MemoryLimited) reduceAccounting(key string) {
	if sz, ok := m.sizes[key]; ok {
		m.currentBytes -= sz
		delete(m.sizes, key)
	}
	if m.s3 != nil {
		m.s3.remove(key)
		return
	}
	if elem, ok := m.elems[key]; ok {
		m.order.Remove(elem)
		delete(m.elems, key)
	}
}

// Keys delegates to the backing store.
func (m *MemoryLimited) Keys(pattern string) []string { return m.backing.Keys(pattern) }

// Clean removes every entry and resets size accounting.
func (m *MemoryLimited) Clean() {
	m.backing.Clean()
	m.sizes = make(map[string]int64)
	m.order = list.New()
	m.elems = make(map[string]*list.Element)
	m.currentBytes = 0
	if m.s3 != nil {
		m.s3 = newS3FIFOState()
	}
}

// BytesUsed returns the running size total, not a fresh serialization pass.
func (m *MemoryLimited) BytesUsed() int64 { return m.currentBytes }

// Dumps delegates to the backing store (dumping bypasses eviction
// accounting entirely — it just reflects whatever the backing store has).
func (m *MemoryLimited) Dumps() (string, error) { return m.backing.Dumps() }

// Dump delegates to the backing store.
func (m *MemoryLimited) Dump(path string) error { return m.backing.Dump(path) }

// Load replaces the backing store's contents from path and rebuilds size
// accounting for every loaded key, so eviction stays consistent afterward.
func (m *MemoryLimited) Load(path string) error {
	if err := m.backing.Load(path); err != nil {
		return err
	}
	m.rebuildAccounting()
	return nil
}

// Loads replaces the backing store's contents from jsonText and rebuilds
// size accounting.
func (m *MemoryLimited) Loads(jsonText string) {
	m.backing.Loads(jsonText)
	m.rebuildAccounting()
}

// rebuildAccounting recomputes sizes/order/currentBytes from whatever the
// backing store now holds, then runs eviction once in case the load pushed
// it over the limit.
func (m *MemoryLimited) rebuildAccounting() {
	m.sizes = make(map[string]int64)
	m.order = list.New()
	m.elems = make(map[string]*list.Element)
	if m.s3 != nil {
		m.s3 = newS3FIFOState()
	}
	m.currentBytes = 0
	for _, k := range m.backing.Keys("*") {
		v, ok := m.backing.Get(k)
		if !ok {
			continue
		}
		sz := int64(SizeOf(k, v))
		m.sizes[k] = sz
		m.currentBytes += sz
		if m.s3 != nil {
			m.s3.insert(k)
		} else {
			m.elems[k] = m.order.PushBack(k)
		}
	}
	m.maybeEvict()
}

var _ StorageController = (*MemoryLimited)(nil)

// pickVictim returns the next key to evict under the configured policy,
// skipping pinned keys, or ("", false) if none is eligible.
func (m *MemoryLimited) pickVictim() (string, bool) {
	if m.s3 != nil {
		return m.s3.pickVictim(func(key string) bool { return m.pinned[key] })
	}
	for e := m.order.Front(); e != nil; e = e.Next() {
		key := e.Value.(string) //nolint:errcheck
		if !m.pinned[key] {
			return key, true
		}
	}
	return "", false
}

// entryCount reports how many keys are currently tracked by the eviction
// bookkeeping, regardless of policy.
func (m *MemoryLimited) entryCount() int {
	if m.s3 != nil {
		return len(m.s3.entries)
	}
	return m.order.Len()
}

// maybeEvict evicts entries (skipping pinned keys) until currentBytes is
// within maxBytes or only pinned keys remain.
func (m *MemoryLimited) maybeEvict() {
	if m.maxBytes <= 0 {
		return
	}
	for m.currentBytes > m.maxBytes && m.entryCount() > 0 {
		victim, ok := m.pickVictim()
		if !ok {
			return
		}
		value, _ := m.backing.Get(victim)
		if m.onEvict != nil {
			m.onEvict(victim, value)
		}
		m.reduceAccounting(victim)
		m.backing.Delete(victim)
	}
}
