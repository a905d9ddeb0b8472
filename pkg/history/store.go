// Package history holds the per-conversation turn log fed to the backend.
// State is in-memory and lives for the process lifetime; persistence of
// record is the archive's job, not ours.
package history

import "sync"

// Roles for a Turn. The system policy turn is not stored here; request
// builders prepend it at build time.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged utterance. Immutable once appended.
type Turn struct {
	Role    string
	Content string
}

// Store owns the conversation-id to turn-list mapping. The map itself is
// guarded by mu; in addition each conversation has a keyed mutex so the
// pipeline can hold a conversation for a whole run, keeping speculative
// Append/PopLast pairs from interleaving across concurrent mentions.
type Store struct {
	mu       sync.RWMutex
	maxTurns int
	convs    map[string][]Turn
	locks    map[string]*sync.Mutex
}

// NewStore bounds every conversation to maxTurns user/assistant pairs,
// i.e. 2×maxTurns stored turns.
func NewStore(maxTurns int) *Store {
	return &Store{
		maxTurns: maxTurns,
		convs:    make(map[string][]Turn),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Lock serializes pipeline runs for one conversation. Unrelated
// conversations are unaffected.
func (s *Store) Lock(conversationID string) {
	s.conversationLock(conversationID).Lock()
}

func (s *Store) Unlock(conversationID string) {
	s.conversationLock(conversationID).Unlock()
}

func (s *Store) conversationLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[conversationID] = l
	}
	return l
}

// Append adds a turn, creating the conversation on first use. Once the list
// exceeds 2×maxTurns the oldest turns are evicted from the front down to
// exactly 2×maxTurns entries.
func (s *Store) Append(conversationID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.convs[conversationID], Turn{Role: role, Content: content})
	if limit := 2 * s.maxTurns; len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	s.convs[conversationID] = turns
}

// Snapshot returns a copy of the conversation's turns in insertion order.
func (s *Store) Snapshot(conversationID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.convs[conversationID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// PopLast removes the most recently appended turn. It rolls back a
// speculative user append when the paired backend call fails, so history
// never carries an orphaned user turn.
func (s *Store) PopLast(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.convs[conversationID]
	if len(turns) == 0 {
		return
	}
	s.convs[conversationID] = turns[:len(turns)-1]
}

// Len reports the stored turn count for a conversation.
func (s *Store) Len(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs[conversationID])
}
