package storage

import "testing"

func TestEventDispatcherSetAndDispatch(t *testing.T) {
	d := NewEventDispatcher()
	var got Value
	d.SetEvent("set", func(msg Value) { got = msg }, "")

	d.DispatchEvent("set", "payload")
	if got != "payload" {
		t.Errorf("got %v, want payload", got)
	}
}

func TestEventDispatcherMatchAnyListener(t *testing.T) {
	d := NewEventDispatcher()
	calls := 0
	d.SetEvent("*", func(Value) { calls++ }, "")

	d.DispatchEvent("set", nil)
	d.DispatchEvent("delete", nil)

	if calls != 2 {
		t.Errorf("expected match-any listener invoked twice, got %d", calls)
	}
}

func TestEventDispatcherNamedListenerIgnoresOtherNames(t *testing.T) {
	d := NewEventDispatcher()
	calls := 0
	d.SetEvent("set", func(Value) { calls++ }, "")

	d.DispatchEvent("delete", nil)
	if calls != 0 {
		t.Errorf("expected a \"set\" listener not to fire on \"delete\", got %d calls", calls)
	}
}

func TestEventDispatcherDispatchMatchAnyFiresAllListeners(t *testing.T) {
	d := NewEventDispatcher()
	var fired []string
	d.SetEvent("set", func(Value) { fired = append(fired, "set") }, "")
	d.SetEvent("delete", func(Value) { fired = append(fired, "delete") }, "")

	d.DispatchEvent("*", nil)

	if len(fired) != 2 {
		t.Errorf("expected DispatchEvent(\"*\", ...) to fire every listener, got %v", fired)
	}
}

func TestEventDispatcherDeleteEventRemovesAll(t *testing.T) {
	d := NewEventDispatcher()
	id := d.SetEvent("set", func(Value) {}, "")
	d.SetEvent("delete", func(Value) {}, id)

	removed := d.DeleteEvent(id)
	if removed != 2 {
		t.Errorf("expected 2 registrations removed, got %d", removed)
	}
	if len(d.GetEvent(id)) != 0 {
		t.Error("expected no registrations left for id")
	}
}

func TestEventDispatcherDispatchSnapshotsBeforeInvoking(t *testing.T) {
	d := NewEventDispatcher()
	var fired []string
	d.SetEvent("set", func(Value) {
		fired = append(fired, "first")
		// Registering during dispatch must not affect the in-flight dispatch.
		d.SetEvent("set", func(Value) { fired = append(fired, "late") }, "")
	}, "")

	d.DispatchEvent("set", nil)
	if len(fired) != 1 || fired[0] != "first" {
		t.Errorf("expected only the pre-existing listener to fire, got %v", fired)
	}

	fired = nil
	d.DispatchEvent("set", nil)
	if len(fired) != 2 {
		t.Errorf("expected both listeners on the next dispatch, got %v", fired)
	}
}

func TestEventDispatcherClean(t *testing.T) {
	d := NewEventDispatcher()
	d.SetEvent("set", func(Value) {}, "")
	d.Clean()
	if len(d.Events()) != 0 {
		t.Error("expected no registrations after Clean")
	}
}
