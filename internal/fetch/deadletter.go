package fetch

import (
	"context"
	"sync"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// DeadLetterSink receives permanently abandoned work for operator
// visibility. Implementations must be safe for concurrent use.
type DeadLetterSink interface {
	Record(ctx context.Context, dl *domain.DeadLetter) error
}

// MemoryDeadLetters keeps the most recent dead letters in a bounded
// ring. It backs single-node runs and tests; production deployments
// use the Postgres repository in internal/storage.
type MemoryDeadLetters struct {
	mu      sync.Mutex
	entries []*domain.DeadLetter
	max     int
}

// NewMemoryDeadLetters creates an in-memory sink retaining at most max
// entries, oldest evicted first.
func NewMemoryDeadLetters(max int) *MemoryDeadLetters {
	if max <= 0 {
		max = 1024
	}
	return &MemoryDeadLetters{max: max}
}

func (m *MemoryDeadLetters) Record(_ context.Context, dl *domain.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, dl)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

// All returns a snapshot of the retained dead letters.
func (m *MemoryDeadLetters) All() []*domain.DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.DeadLetter, len(m.entries))
	copy(out, m.entries)
	return out
}
