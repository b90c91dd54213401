// Package schedule decides what gets fetched and when: it owns the
// per-source crawl frontier and its crash-restart checkpoint.
package schedule

import (
	"context"
	"sync"
	"time"
)

// State is the serializable frontier snapshot. Pending holds each
// source's undispatched URLs in FIFO order; Seen holds every URL the
// frontier has accepted, so replayed discoveries stay no-ops.
type State struct {
	Pending map[string][]string `json:"pending"`
	Seen    map[string][]string `json:"seen"`
	SavedAt time.Time           `json:"saved_at"`
}

// NewState creates an empty snapshot.
func NewState() *State {
	return &State{
		Pending: make(map[string][]string),
		Seen:    make(map[string][]string),
	}
}

// Checkpoint persists frontier state across restarts.
type Checkpoint interface {
	Save(ctx context.Context, state *State) error
	// Load returns the last saved state, or an empty one when nothing
	// was ever saved.
	Load(ctx context.Context) (*State, error)
}

// MemoryCheckpoint keeps the snapshot in process memory. It survives
// scheduler restarts within one process, which is what tests need.
type MemoryCheckpoint struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryCheckpoint creates an empty in-memory checkpoint.
func NewMemoryCheckpoint() *MemoryCheckpoint {
	return &MemoryCheckpoint{}
}

// Save implements Checkpoint.
func (m *MemoryCheckpoint) Save(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = copyState(state)
	return nil
}

// Load implements Checkpoint.
func (m *MemoryCheckpoint) Load(_ context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return NewState(), nil
	}
	return copyState(m.state), nil
}

func copyState(s *State) *State {
	out := NewState()
	out.SavedAt = s.SavedAt
	for k, v := range s.Pending {
		out.Pending[k] = append([]string(nil), v...)
	}
	for k, v := range s.Seen {
		out.Seen[k] = append([]string(nil), v...)
	}
	return out
}
