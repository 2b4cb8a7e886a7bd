package storage

import (
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestCallRoundTrip verifies a call with turns lists back correctly.
func TestCallRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if err := store.StartCall("call-1", "direct", 7501); err != nil {
		t.Fatalf("StartCall() error: %v", err)
	}
	if err := store.RecordTurn("call-1", 1, "turn", "Pick a number", "42"); err != nil {
		t.Fatalf("RecordTurn() error: %v", err)
	}
	if err := store.RecordTurn("call-1", 2, "record", "Speak now", "accept"); err != nil {
		t.Fatalf("RecordTurn() error: %v", err)
	}
	if err := store.EndCall("call-1", "completed"); err != nil {
		t.Fatalf("EndCall() error: %v", err)
	}

	calls, err := store.ListCalls(10)
	if err != nil {
		t.Fatalf("ListCalls() error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("ListCalls() = %d calls, want 1", len(calls))
	}

	c := calls[0]
	if c.ID != "call-1" || c.Mode != "direct" || c.Port != 7501 {
		t.Errorf("call = %+v, want id call-1 / direct / 7501", c)
	}
	if c.Turns != 2 {
		t.Errorf("Turns = %d, want 2", c.Turns)
	}
	if c.Outcome != "completed" {
		t.Errorf("Outcome = %q, want completed", c.Outcome)
	}
	if c.EndedAt == nil {
		t.Error("EndedAt = nil, want set")
	}
}

// TestListCalls_Order verifies newest-first ordering and the limit.
func TestListCalls_Order(t *testing.T) {
	store := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.StartCall(id, "direct", 7501); err != nil {
			t.Fatalf("StartCall(%s) error: %v", id, err)
		}
	}

	calls, err := store.ListCalls(2)
	if err != nil {
		t.Fatalf("ListCalls() error: %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("ListCalls(2) = %d calls, want 2", len(calls))
	}
}

// TestOpenBestEffort verifies failures degrade to a nil store rather than
// an error the worker would have to handle.
func TestOpenBestEffort(t *testing.T) {
	if store := OpenBestEffort("", nil); store != nil {
		t.Error("OpenBestEffort(\"\") != nil, want nil (records disabled)")
	}

	// A directory path cannot be opened as a database file.
	bad := t.TempDir()
	if store := OpenBestEffort(bad, nil); store != nil {
		store.Close()
		t.Error("OpenBestEffort(directory) != nil, want nil")
	}

	good := filepath.Join(t.TempDir(), "calls.db")
	store := OpenBestEffort(good, nil)
	if store == nil {
		t.Fatal("OpenBestEffort(file) = nil, want store")
	}
	store.Close()
}

// TestCallRecord_String verifies the CLI line contains the load-bearing
// fields.
func TestCallRecord_String(t *testing.T) {
	store := openTestStore(t)
	if err := store.StartCall("call-9", "proxied", 7561); err != nil {
		t.Fatalf("StartCall() error: %v", err)
	}
	calls, err := store.ListCalls(1)
	if err != nil {
		t.Fatalf("ListCalls() error: %v", err)
	}

	line := calls[0].String()
	for _, want := range []string{"call-9", "proxied", "7561", "in-progress"} {
		if !strings.Contains(line, want) {
			t.Errorf("String() = %q, missing %q", line, want)
		}
	}
}
