package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"lumen-go/internal/lumen"
)

// MemoryRemote is an in-memory implementation of the RemoteStore interface,
// useful for testing. Snapshots are deep-copied on both Save and Load so
// callers can never mutate the stored state in place. The error fields
// inject failures; SaveCount observes no-op push behavior.
type MemoryRemote struct {
	mu        sync.Mutex
	data      []byte
	SaveCount int
	LoadErr   error
	SaveErr   error
}

// NewMemoryRemote creates an empty in-memory remote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{}
}

func (m *MemoryRemote) Load(ctx context.Context) (*lumen.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.data == nil {
		return nil, nil
	}
	var snap lumen.Snapshot
	if err := json.Unmarshal(m.data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling stored snapshot: %w", err)
	}
	return &snap, nil
}

func (m *MemoryRemote) Save(ctx context.Context, snap *lumen.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	m.data = data
	m.SaveCount++
	return nil
}

// ValidateSetup always succeeds for the in-memory remote.
func (m *MemoryRemote) ValidateSetup() error { return nil }

func (m *MemoryRemote) Describe() string { return "memory" }

// Compile-time check that MemoryRemote implements lumen.RemoteStore interface
var _ lumen.RemoteStore = (*MemoryRemote)(nil)
