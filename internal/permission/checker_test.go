package permission

import (
	"testing"
	"time"

	"github.com/relaykit/agentcore/pkg/ids"
	"github.com/relaykit/agentcore/pkg/wire"
)

func newTestChecker() *Checker {
	clock := ids.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewChecker(NewMemoryStore(), clock)
}

func TestChecker_NoRecordFallsBackToStaticPolicy(t *testing.T) {
	c := newTestChecker()
	dec, err := c.Resolve("delete_account", true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec != DecisionRequired {
		t.Fatalf("expected required, got %s", dec)
	}
	dec2, err := c.Resolve("get_time", false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec2 != DecisionApproved {
		t.Fatalf("expected approved for a tool with no approval policy, got %s", dec2)
	}
}

func TestChecker_PersistedStoreOverridesStaticPolicy(t *testing.T) {
	c := newTestChecker()
	if err := c.Record("delete_account", wire.PermissionDenyAlways); err != nil {
		t.Fatalf("record: %v", err)
	}
	dec, err := c.Resolve("delete_account", true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec != DecisionDenied {
		t.Fatalf("expected denied from persisted deny_always, got %s", dec)
	}
}

func TestChecker_SessionCacheOverridesPersistedStore(t *testing.T) {
	c := newTestChecker()
	if err := c.Record("delete_account", wire.PermissionDenyAlways); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := c.Record("delete_account", wire.PermissionSession); err != nil {
		t.Fatalf("record session: %v", err)
	}
	dec, err := c.Resolve("delete_account", true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec != DecisionApproved {
		t.Fatalf("expected session cache (allow) to win over persisted deny_always, got %s", dec)
	}
}

func TestChecker_SessionPermissionNeverReachesStore(t *testing.T) {
	store := NewMemoryStore()
	c := NewChecker(store, nil)
	if err := c.Record("tool_x", wire.PermissionSession); err != nil {
		t.Fatalf("record: %v", err)
	}
	all, err := store.GetAll()
	if err != nil {
		t.Fatalf("getall: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected session permission to bypass the backend, found %+v", all)
	}
}

func TestChecker_TouchUpdatesLastUsedAt(t *testing.T) {
	c := newTestChecker()
	if err := c.Record("get_time", wire.PermissionAllowAlways); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := c.Touch("get_time"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	perm, ok, err := c.store.Get("get_time")
	if err != nil || !ok {
		t.Fatalf("expected persisted record, ok=%v err=%v", ok, err)
	}
	if perm.LastUsedAt == nil {
		t.Fatal("expected lastUsedAt to be set after touch")
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/perms.json"
	s1 := NewFileStore(path)
	if err := s1.Set(wire.ToolPermission{ToolName: "x", Level: wire.PermissionAllowAlways}); err != nil {
		t.Fatalf("set: %v", err)
	}
	s2 := NewFileStore(path)
	perm, ok, err := s2.Get("x")
	if err != nil || !ok {
		t.Fatalf("expected persisted record across instances, ok=%v err=%v", ok, err)
	}
	if perm.Level != wire.PermissionAllowAlways {
		t.Fatalf("unexpected level: %s", perm.Level)
	}
}
