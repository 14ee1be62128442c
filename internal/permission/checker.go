package permission

import (
	"sync"

	"github.com/relaykit/agentcore/pkg/ids"
	"github.com/relaykit/agentcore/pkg/wire"
)

// Decision is the resolved approval outcome for one tool, independent of
// any specific call's arguments.
type Decision string

const (
	// DecisionApproved means the call may proceed without suspending for
	// host input.
	DecisionApproved Decision = "approved"
	// DecisionDenied means the call is automatically rejected.
	DecisionDenied Decision = "denied"
	// DecisionRequired means the host must resolve this call explicitly.
	DecisionRequired Decision = "required"
)

// Checker resolves the approval decision for a tool per spec §4.J pass 1
// and implements the precedence rule of P5: session cache > persisted store
// > tool's static needsApproval > false.
type Checker struct {
	store Store
	clock ids.Clock

	mu      sync.RWMutex
	session map[string]wire.ToolPermission
}

// NewChecker builds a Checker backed by store for persisted levels. A nil
// store is treated as NoopStore (no persisted permissions are consulted).
func NewChecker(store Store, clock ids.Clock) *Checker {
	if store == nil {
		store = NoopStore{}
	}
	if clock == nil {
		clock = ids.SystemClock{}
	}
	return &Checker{store: store, clock: clock, session: make(map[string]wire.ToolPermission)}
}

// Resolve implements spec §4.J pass 1's classification for one tool call:
// staticNeedsApproval is the tool definition's own predicate result for
// this call's params.
func (c *Checker) Resolve(toolName string, staticNeedsApproval bool) (Decision, error) {
	if perm, ok := c.sessionLevel(toolName); ok {
		return decisionForLevel(perm.Level), nil
	}
	perm, ok, err := c.store.Get(toolName)
	if err != nil {
		return "", err
	}
	if ok {
		return decisionForLevel(perm.Level), nil
	}
	if !staticNeedsApproval {
		return DecisionApproved, nil
	}
	return DecisionRequired, nil
}

func decisionForLevel(level wire.PermissionLevel) Decision {
	switch level {
	case wire.PermissionAllowAlways, wire.PermissionSession:
		return DecisionApproved
	case wire.PermissionDenyAlways:
		return DecisionDenied
	default: // ask, or unrecognized
		return DecisionRequired
	}
}

func (c *Checker) sessionLevel(toolName string) (wire.ToolPermission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.session[toolName]
	return p, ok
}

// Record persists a host decision for toolName. level==PermissionSession
// always goes to the in-process session cache, bypassing the backend
// entirely per spec §4.E; any other level is written through to the
// persisted Store.
func (c *Checker) Record(toolName string, level wire.PermissionLevel) error {
	perm := wire.ToolPermission{
		ToolName:  toolName,
		Level:     level,
		CreatedAt: c.clock.Now(),
	}
	if level == wire.PermissionSession {
		c.mu.Lock()
		c.session[toolName] = perm
		c.mu.Unlock()
		return nil
	}
	return c.store.Set(perm)
}

// Touch updates lastUsedAt for toolName after a successful invocation,
// wherever its permission record currently lives.
func (c *Checker) Touch(toolName string) error {
	now := c.clock.Now()
	c.mu.Lock()
	if p, ok := c.session[toolName]; ok {
		p.LastUsedAt = &now
		c.session[toolName] = p
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	perm, ok, err := c.store.Get(toolName)
	if err != nil || !ok {
		return err
	}
	perm.LastUsedAt = &now
	return c.store.Set(perm)
}

// Forget removes any session-scoped permission for toolName and any
// persisted record, used by a host-level "reset permissions" action.
func (c *Checker) Forget(toolName string) error {
	c.mu.Lock()
	delete(c.session, toolName)
	c.mu.Unlock()
	return c.store.Remove(toolName)
}

// ClearSession drops every session-scoped permission, e.g. on process
// restart boundaries a host wants to simulate in tests.
func (c *Checker) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = make(map[string]wire.ToolPermission)
}
