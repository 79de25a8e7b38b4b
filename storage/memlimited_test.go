package storage

import "testing"

func TestMemoryLimitedEvictsOldestFirstUnderFIFO(t *testing.T) {
	var evicted []string
	m := NewMemoryLimited(NewMapStore(), 0.00003, PolicyFIFO, func(k string, _ Value) {
		evicted = append(evicted, k)
	}, nil)

	m.Set("a", "xxxxxxxxxx")
	m.Set("b", "xxxxxxxxxx")
	m.Set("c", "xxxxxxxxxx")

	if len(evicted) == 0 {
		t.Fatal("expected at least one eviction")
	}
	if evicted[0] != "a" {
		t.Errorf("expected oldest key 'a' evicted first, got %v", evicted)
	}
}

func TestMemoryLimitedPinnedKeySurvivesEviction(t *testing.T) {
	var evicted []string
	m := NewMemoryLimited(NewMapStore(), 0.00003, PolicyFIFO, func(k string, _ Value) {
		evicted = append(evicted, k)
	}, []string{"a"})

	m.Set("a", "xxxxxxxxxx")
	m.Set("b", "xxxxxxxxxx")
	m.Set("c", "xxxxxxxxxx")

	if !m.Exists("a") {
		t.Error("pinned key 'a' should survive eviction")
	}
	for _, k := range evicted {
		if k == "a" {
			t.Error("pinned key 'a' should never be evicted")
		}
	}
}

func TestMemoryLimitedGetDoesNotReorderUnderLRU(t *testing.T) {
	var evicted []string
	m := NewMemoryLimited(NewMapStore(), 0.00003, PolicyLRU, func(k string, _ Value) {
		evicted = append(evicted, k)
	}, nil)

	m.Set("a", "xxxxxxxxxx")
	m.Set("b", "xxxxxxxxxx")

	// Get on 'a' must not protect it from eviction without an explicit Touch.
	m.Get("a")
	m.Set("c", "xxxxxxxxxx")

	if len(evicted) == 0 || evicted[0] != "a" {
		t.Errorf("Get should not affect LRU order without Touch, evicted=%v", evicted)
	}
}

func TestMemoryLimitedTouchProtectsUnderLRU(t *testing.T) {
	var evicted []string
	m := NewMemoryLimited(NewMapStore(), 0.00003, PolicyLRU, func(k string, _ Value) {
		evicted = append(evicted, k)
	}, nil)

	m.Set("a", "xxxxxxxxxx")
	m.Set("b", "xxxxxxxxxx")

	m.Touch("a")
	m.Set("c", "xxxxxxxxxx")

	if len(evicted) == 0 || evicted[0] != "b" {
		t.Errorf("expected 'b' evicted after touching 'a', evicted=%v", evicted)
	}
}

func TestMemoryLimitedUnpinAllowsEviction(t *testing.T) {
	var evicted []string
	m := NewMemoryLimited(NewMapStore(), 0.00003, PolicyFIFO, func(k string, _ Value) {
		evicted = append(evicted, k)
	}, []string{"a"})

	m.Unpin("a")
	m.Set("a", "xxxxxxxxxx")
	m.Set("b", "xxxxxxxxxx")
	m.Set("c", "xxxxxxxxxx")

	found := false
	for _, k := range evicted {
		if k == "a" {
			found = true
		}
	}
	if !found {
		t.Error("expected 'a' to be evictable after Unpin")
	}
}

func TestMemoryLimitedDeleteUpdatesAccounting(t *testing.T) {
	m := NewMemoryLimited(NewMapStore(), 0, PolicyFIFO, nil, nil)
	m.Set("a", "value")
	before := m.BytesUsed()
	m.Delete("a")
	if m.BytesUsed() >= before {
		t.Errorf("expected BytesUsed to shrink after Delete, got %d (was %d)", m.BytesUsed(), before)
	}
}

var _ StorageController = (*MemoryLimited)(nil)
