package storage

import "testing"

func TestStoreSetGetDelete(t *testing.T) {
	s := New(true, nil)
	s.Set("key", "value")
	v, ok := s.Get("key")
	if !ok || v != "value" {
		t.Fatalf("got %v, %v", v, ok)
	}
	s.Delete("key")
	if s.Exists("key") {
		t.Error("expected key removed after Delete")
	}
}

func TestStoreUndoRedoDelete(t *testing.T) {
	s := New(true, nil)
	s.Set("key", "value")
	s.Delete("key")

	s.RevertOneOperation()
	if !s.Exists("key") {
		t.Error("expected undo to restore deleted key")
	}

	s.ForwardOneOperation()
	if s.Exists("key") {
		t.Error("expected redo to re-delete key")
	}
}

func TestStoreUndoSetRestoresPriorValue(t *testing.T) {
	s := New(true, nil)
	s.Set("key", "v1")
	s.Set("key", "v2")

	s.RevertOneOperation()
	v, _ := s.Get("key")
	if v != "v1" {
		t.Errorf("expected prior value v1, got %v", v)
	}
}

func TestStoreToVersionJump(t *testing.T) {
	s := New(true, nil)
	s.Set("key", "v1")
	id1 := s.CurrentVersion()
	s.Set("key", "v2")
	s.Set("key", "v3")

	if err := s.ToVersion(id1); err != nil {
		t.Fatal(err)
	}
	v, _ := s.Get("key")
	if v != "v1" {
		t.Errorf("got %v, want v1", v)
	}
}

func TestStoreKeysPattern(t *testing.T) {
	s := New(false, nil)
	s.Set("user:1", 1)
	s.Set("user:2", 2)
	s.Set("order:1", 3)

	if got := s.Keys("user:*"); len(got) != 2 {
		t.Errorf("expected 2 matches, got %v", got)
	}
}

func TestStoreDispatchesSetEventOnMutation(t *testing.T) {
	s := New(false, nil)
	var seen []string
	s.SetEvent("set", func(msg Value) {
		obj := msg.(map[string]Value)
		seen = append(seen, obj["key"].(string))
	}, "")

	s.Set("a", 1)
	s.Set("b", 2)

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("got %v", seen)
	}
}

// TestStoreMirroringReplicaViaEvents mimics a master→replica setup: a
// listener replays every mutation onto a second Store using editLocal
// semantics (no re-dispatch), which here we approximate by directly
// calling Set/Delete on the replica — since editLocal is private, the
// replica is driven through its own public API, matching how an external
// subscriber would mirror a master's event stream.
func TestStoreMirroringReplicaViaEvents(t *testing.T) {
	master := New(false, nil)
	replica := New(false, nil)

	master.SetEvent("set", func(msg Value) {
		obj := msg.(map[string]Value)
		replica.Set(obj["key"].(string), obj["value"])
	}, "")
	master.SetEvent("delete", func(msg Value) {
		obj := msg.(map[string]Value)
		replica.Delete(obj["key"].(string))
	}, "")

	master.Set("k", "v")
	master.Delete("k")

	if replica.Exists("k") {
		t.Error("expected replica to mirror the delete")
	}

	master.Set("k2", "v2")
	v, ok := replica.Get("k2")
	if !ok || v != "v2" {
		t.Errorf("expected replica mirrored k2=v2, got %v, %v", v, ok)
	}
}

func TestStoreQueuePushPopFIFO(t *testing.T) {
	s := New(false, nil)
	s.Push("jobs", "a")
	s.Push("jobs", "b")

	first, ok := s.Pop("jobs")
	if !ok || first != "a" {
		t.Fatalf("got %v, %v", first, ok)
	}
	second, ok := s.Pop("jobs")
	if !ok || second != "b" {
		t.Fatalf("got %v, %v", second, ok)
	}
}

func TestStoreVersionMemoryWarningPropagates(t *testing.T) {
	s := NewWithBackend(NewMapStore(), true, nil)
	s.ver = NewVersionController(0)

	warning := s.recordAndApply(SetOp("a", "1"), nil)
	if warning == "" {
		t.Error("expected a memory warning to propagate from recordAndApply")
	}
	snap := s.Metrics()
	if snap.Storage.VersionWarnings == 0 {
		t.Error("expected VersionWarnings metric to be incremented")
	}
}

func TestStoreSwitchBackendResetsState(t *testing.T) {
	s := New(true, nil)
	s.Set("a", "1")
	id := s.SetEvent("set", func(Value) {}, "")

	s.SwitchBackend(NewMapStore())

	if s.Exists("a") {
		t.Error("expected old backend data gone after SwitchBackend")
	}
	if len(s.GetEvent(id)) != 0 {
		t.Error("expected listeners cleared after SwitchBackend")
	}
	if s.CurrentVersion() != "" {
		t.Error("expected version log cleared after SwitchBackend")
	}
}

func TestParseEvictionPolicy(t *testing.T) {
	cases := map[string]EvictionPolicy{
		"fifo":      PolicyFIFO,
		"lru":       PolicyLRU,
		"s3fifo":    PolicyS3FIFO,
		"":          PolicyLRU,
		"bogus":     PolicyLRU,
		"unrelated": PolicyLRU,
	}
	for name, want := range cases {
		if got := ParseEvictionPolicy(name); got != want {
			t.Errorf("ParseEvictionPolicy(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestStoreWithOptionsUsesQueuePolicy(t *testing.T) {
	s := NewWithOptions(NewMapStore(), false, nil, PolicyS3FIFO, defaultVersionLimitMB, defaultQueueStoreLimitMB)
	s.Push("jobs", "a")
	v, ok := s.Pop("jobs")
	if !ok || v != "a" {
		t.Errorf("got %v, %v", v, ok)
	}
}

func TestStoreWithOptionsUsesVersionLimit(t *testing.T) {
	s := NewWithOptions(NewMapStore(), true, nil, PolicyLRU, 0.00005, defaultQueueStoreLimitMB)
	s.Set("a", "some reasonably sized value to push past the tiny limit")
	snap := s.Metrics()
	if snap.Storage.VersionWarnings == 0 {
		t.Error("expected a tiny configured version limit to trigger a memory warning")
	}
}

func TestStoreSwitchBackendPreservesConfiguredLimits(t *testing.T) {
	s := NewWithOptions(NewMapStore(), true, nil, PolicyLRU, 0.00005, defaultQueueStoreLimitMB)
	s.SwitchBackend(NewMapStore())
	s.Set("a", "some reasonably sized value to push past the tiny limit")
	snap := s.Metrics()
	if snap.Storage.VersionWarnings == 0 {
		t.Error("expected the tiny version limit to still apply after SwitchBackend")
	}
}

func TestStoreEncryptorWrapsStoredValue(t *testing.T) {
	enc, err := NewRSAChunkEncryptor(testPubE, testPubN, testPrivD, testPubN)
	if err != nil {
		t.Fatal(err)
	}
	backend := NewMapStore()
	s := NewWithBackend(backend, false, enc)

	s.Set("secret", "hello")

	raw, ok := backend.Get("secret")
	if !ok {
		t.Fatal("expected raw entry present")
	}
	obj, ok := raw.(map[string]Value)
	if !ok || obj["rjson"] == nil {
		t.Errorf("expected raw entry wrapped as {rjson: ...}, got %#v", raw)
	}

	v, ok := s.Get("secret")
	if !ok || v != "hello" {
		t.Errorf("expected transparent decrypt, got %v, %v", v, ok)
	}
}
