package thread

import (
	"fmt"

	"github.com/relaykit/agentcore/pkg/ids"
	"github.com/relaykit/agentcore/pkg/wire"
)

// CreateThread adds a new empty thread, optionally titled, and returns its
// id. Does not change the active thread.
func (s *Store) CreateThread(title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.newEmptyThread()
	t.Title = title
	s.threads[t.ID] = t
	return t.ID, s.persist()
}

// SwitchThread makes id the active thread.
func (s *Store) SwitchThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(id); err != nil {
		return err
	}
	s.activeID = id
	return nil
}

// DeleteThread removes thread id. Per spec §3/§4.F: if id was active, the
// new active thread is whichever remaining thread has the largest
// UpdatedAt; if none remain, a fresh empty thread is synthesized and made
// active so the store is never left with zero threads.
func (s *Store) DeleteThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(id); err != nil {
		return err
	}
	delete(s.threads, id)
	if s.activeID == id {
		if next := s.mostRecentThreadID(); next != "" {
			s.activeID = next
		} else {
			t := s.newEmptyThread()
			s.threads[t.ID] = t
			s.activeID = t.ID
		}
	}
	return s.persist()
}

// ClearThread empties thread id's messages and sources while preserving its
// identity (id, title, createdAt).
func (s *Store) ClearThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(id)
	if err != nil {
		return err
	}
	t.Messages = []wire.Message{}
	t.Sources = nil
	s.touch(t)
	return s.persist()
}

// UpdateTitle sets thread id's title explicitly, overriding any
// auto-derived value.
func (s *Store) UpdateTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(id)
	if err != nil {
		return err
	}
	t.Title = title
	s.touch(t)
	return s.persist()
}

// AddMessage appends msg to thread id. If this is the first user message on
// a thread with no title, the title is auto-derived from its content
// (§4.F).
func (s *Store) AddMessage(id string, msg wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(id)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = ids.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock.Now()
	}
	msg.ThreadID = id
	if t.Title == "" && msg.Role == wire.RoleUser && isFirstUserMessage(t.Messages) {
		content := ""
		if msg.Content != nil {
			content = *msg.Content
		}
		t.Title = s.deriver(content)
	}
	t.Messages = append(t.Messages, msg)
	s.touch(t)
	return s.persist()
}

func isFirstUserMessage(existing []wire.Message) bool {
	for _, m := range existing {
		if m.Role == wire.RoleUser {
			return false
		}
	}
	return true
}

// RemoveMessage deletes the message with the given id from thread id.
func (s *Store) RemoveMessage(threadID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	idx := indexOfMessage(t.Messages, messageID)
	if idx < 0 {
		return fmt.Errorf("thread: no such message %q in thread %q", messageID, threadID)
	}
	t.Messages = append(t.Messages[:idx], t.Messages[idx+1:]...)
	s.touch(t)
	return s.persist()
}

// UpdateMessage appends delta to messageID's content (the message:delta
// reducer action).
func (s *Store) UpdateMessage(threadID, messageID, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	msg, err := findMessage(t.Messages, messageID)
	if err != nil {
		return err
	}
	msg.AppendContent(delta)
	s.touch(t)
	return s.persist()
}

// UpdateThinking appends delta to messageID's metadata.thinking (the
// thinking:delta reducer action).
func (s *Store) UpdateThinking(threadID, messageID, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	msg, err := findMessage(t.Messages, messageID)
	if err != nil {
		return err
	}
	msg.Metadata.Thinking += delta
	s.touch(t)
	return s.persist()
}

// SetToolCalls persists tool_calls onto messageID (the tool_calls reducer
// action's effect on the current assistant message).
func (s *Store) SetToolCalls(threadID, messageID string, calls []wire.ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	msg, err := findMessage(t.Messages, messageID)
	if err != nil {
		return err
	}
	msg.ToolCalls = calls
	s.touch(t)
	return s.persist()
}

// AddSource appends source to the thread's source list and to messageID's
// metadata.sources (the source:add reducer action).
func (s *Store) AddSource(threadID, messageID string, source wire.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	t.Sources = append(t.Sources, source)
	if messageID != "" {
		if msg, err := findMessage(t.Messages, messageID); err == nil {
			msg.Metadata.Sources = append(msg.Metadata.Sources, source)
		}
	}
	s.touch(t)
	return s.persist()
}

// TruncateFrom drops messageID and every message after it from thread id.
// It's the mechanics behind the host's regenerate operation (§6.5): the
// caller resubmits the now-shorter history to get a fresh response in
// messageID's place.
func (s *Store) TruncateFrom(threadID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	idx := indexOfMessage(t.Messages, messageID)
	if idx < 0 {
		return fmt.Errorf("thread: no such message %q in thread %q", messageID, threadID)
	}
	t.Messages = t.Messages[:idx]
	s.touch(t)
	return s.persist()
}

// SetMessages replaces thread id's entire message list verbatim. Used for
// bulk loads; turn-time reconciliation uses ReplaceStreamingWithMessages
// instead, which only touches the trailing placeholder.
func (s *Store) SetMessages(threadID string, messages []wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	t.Messages = messages
	s.touch(t)
	return s.persist()
}

// ReplaceStreamingWithMessages implements the `done` event's
// messages-present path (§4.I.4, §4.I.5): the streaming placeholder
// identified by placeholderID is removed, and the server-authoritative
// messages are appended in its place. Implements P4: the thread's last
// len(messages) entries become exactly `messages`.
func (s *Store) ReplaceStreamingWithMessages(threadID, placeholderID string, messages []wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	idx := indexOfMessage(t.Messages, placeholderID)
	base := t.Messages
	if idx >= 0 {
		base = t.Messages[:idx]
	}
	for i := range messages {
		if messages[i].ID == "" {
			messages[i].ID = ids.NewMessageID()
		}
		if messages[i].CreatedAt.IsZero() {
			messages[i].CreatedAt = s.clock.Now()
		}
		messages[i].ThreadID = threadID
	}
	t.Messages = append(append([]wire.Message{}, base...), messages...)
	s.touch(t)
	return s.persist()
}

// SetToolExecutionsOnMessage snapshots execs onto messageID's
// metadata.toolExecutions, preserving historical UI detail once a turn's
// transient ToolExecution state is flushed (the Idle->Submitting
// transition's snapshotting step, §4.I.1). Dedupes by execution ID so a
// second snapshot of the same turn never duplicates entries (P3).
func (s *Store) SetToolExecutionsOnMessage(threadID, messageID string, execs []wire.ToolExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	msg, err := findMessage(t.Messages, messageID)
	if err != nil {
		return err
	}
	msg.Metadata.ToolExecutions = dedupeExecutions(msg.Metadata.ToolExecutions, execs)
	s.touch(t)
	return s.persist()
}

func dedupeExecutions(existing, incoming []wire.ToolExecution) []wire.ToolExecution {
	byID := make(map[string]wire.ToolExecution, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))
	for _, e := range existing {
		if _, seen := byID[e.ID]; !seen {
			order = append(order, e.ID)
		}
		byID[e.ID] = e
	}
	for _, e := range incoming {
		if _, seen := byID[e.ID]; !seen {
			order = append(order, e.ID)
		}
		byID[e.ID] = e
	}
	out := make([]wire.ToolExecution, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	return out
}

func indexOfMessage(messages []wire.Message, id string) int {
	for i, m := range messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func findMessage(messages []wire.Message, id string) (*wire.Message, error) {
	for i := range messages {
		if messages[i].ID == id {
			return &messages[i], nil
		}
	}
	return nil, fmt.Errorf("thread: no such message %q", id)
}
