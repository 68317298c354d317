package owners

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/enginuity/internal/common"
)

// MemoryRegistry keeps ownership in process. It is used when no database is
// configured.
type MemoryRegistry struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{owners: make(map[string]string)}
}

func (m *MemoryRegistry) Claim(ctx context.Context, fileKey, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.owners[fileKey]; ok && current != ownerID {
		return fmt.Errorf("%w: %s belongs to another user", common.ErrorForbidden, fileKey)
	}
	m.owners[fileKey] = ownerID
	return nil
}

func (m *MemoryRegistry) CheckOwner(ctx context.Context, fileKey, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.owners[fileKey]; ok && current != ownerID {
		return fmt.Errorf("%w: %s belongs to another user", common.ErrorForbidden, fileKey)
	}
	return nil
}

func (m *MemoryRegistry) Release(ctx context.Context, fileKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.owners, fileKey)
	return nil
}

func (m *MemoryRegistry) Ping(ctx context.Context) error {
	return nil
}
