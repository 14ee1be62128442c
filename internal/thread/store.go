// Package thread implements the Thread Store: a reducer-driven, multi-thread
// collection of OpenAI-shaped message sequences with pluggable persistence.
// Grounded on internal/sessions/memory.go's MemoryStore (clone-on-read,
// clone-on-write, mutex-guarded map), generalized from single-message-append
// session storage into the full reducer taxonomy of spec.md §4.F.
package thread

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/relaykit/agentcore/pkg/ids"
	"github.com/relaykit/agentcore/pkg/wire"
)

// Persister is the opaque persistence adapter of spec §6.3: the full thread
// set is handed over on every mutation; debouncing is a host concern.
type Persister interface {
	Save(threads []wire.Thread) error
	Load() ([]wire.Thread, error)
	Clear() error
}

// NoopPersister discards every save and reports no prior state. The default
// when the host has not configured persistence.
type NoopPersister struct{}

func (NoopPersister) Save([]wire.Thread) error    { return nil }
func (NoopPersister) Load() ([]wire.Thread, error) { return nil, nil }
func (NoopPersister) Clear() error                 { return nil }

// TitleDeriver turns a first user message's content into an auto-derived
// thread title. Spec §4.F calls this a "host-supplied helper"; DefaultTitleDeriver
// is used when the host doesn't provide one.
type TitleDeriver func(content string) string

// DefaultTitleDeriver truncates content to the first line (or 60 runes,
// whichever is shorter), appending an ellipsis if truncated.
func DefaultTitleDeriver(content string) string {
	const maxLen = 60
	line := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		line = content[:idx]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) <= maxLen {
		if line == "" {
			return "New thread"
		}
		return line
	}
	return string(runes[:maxLen]) + "…"
}

// Store holds every thread the host knows about and the currently active
// thread id. The Agent Loop is its sole writer during a turn (§3 ownership
// rule); host callbacks read via GetThread/ListThreads/ActiveThread, which
// all return deep clones so the caller can never alias internal state.
type Store struct {
	mu        sync.Mutex
	clock     ids.Clock
	persister Persister
	deriver   TitleDeriver

	threads  map[string]*wire.Thread
	activeID string
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithTitleDeriver overrides the default title-derivation helper.
func WithTitleDeriver(d TitleDeriver) Option {
	return func(s *Store) { s.deriver = d }
}

// WithClock overrides the store's clock, used by tests for deterministic
// UpdatedAt/CreatedAt values.
func WithClock(c ids.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New constructs a Store backed by persister, running the `init` action:
// load any persisted threads, or synthesize a single fresh empty thread and
// make it active if none exist (the store is never left with zero threads).
func New(persister Persister, opts ...Option) (*Store, error) {
	if persister == nil {
		persister = NoopPersister{}
	}
	s := &Store{
		clock:     ids.SystemClock{},
		persister: persister,
		deriver:   DefaultTitleDeriver,
		threads:   make(map[string]*wire.Thread),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	loaded, err := s.persister.Load()
	if err != nil {
		return fmt.Errorf("thread: load persisted threads: %w", err)
	}
	for i := range loaded {
		t := loaded[i]
		s.threads[t.ID] = &t
	}
	if len(s.threads) == 0 {
		t := s.newEmptyThread()
		s.threads[t.ID] = t
		s.activeID = t.ID
		return s.persist()
	}
	s.activeID = s.mostRecentThreadID()
	return nil
}

func (s *Store) newEmptyThread() *wire.Thread {
	now := s.clock.Now()
	return &wire.Thread{
		ID:        ids.NewThreadID(),
		Messages:  []wire.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Store) mostRecentThreadID() string {
	var best *wire.Thread
	for _, t := range s.threads {
		if best == nil || t.UpdatedAt.After(best.UpdatedAt) {
			best = t
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

func (s *Store) persist() error {
	all := make([]wire.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		all = append(all, wire.CloneThread(*t))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return s.persister.Save(all)
}

func (s *Store) touch(t *wire.Thread) {
	t.UpdatedAt = s.clock.Now()
}

func (s *Store) get(id string) (*wire.Thread, error) {
	t, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread: no such thread %q", id)
	}
	return t, nil
}

// ActiveThreadID returns the currently active thread's id.
func (s *Store) ActiveThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// GetThread returns a deep-cloned snapshot of thread id.
func (s *Store) GetThread(id string) (wire.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return wire.Thread{}, false
	}
	return wire.CloneThread(*t), true
}

// ActiveThread returns a deep-cloned snapshot of the active thread.
func (s *Store) ActiveThread() (wire.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[s.activeID]
	if !ok {
		return wire.Thread{}, false
	}
	return wire.CloneThread(*t), true
}

// ListThreads returns deep-cloned snapshots of every thread, most recently
// updated first.
func (s *Store) ListThreads() []wire.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, wire.CloneThread(*t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}
