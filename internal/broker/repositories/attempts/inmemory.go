package attempts

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/docbroker/internal/broker/models"
)

// InMemoryRepository keeps attempt records in memory; it backs DSN-less
// broker runs and tests.
type InMemoryRepository struct {
	mu    sync.Mutex
	items map[string][]*models.UploadAttempt
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string][]*models.UploadAttempt)}
}

func (r *InMemoryRepository) Record(ctx context.Context, a *models.UploadAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.items[a.DocKey] = append(r.items[a.DocKey], &copied)
	return nil
}

func (r *InMemoryRepository) ListByDocKey(ctx context.Context, docKey string) ([]*models.UploadAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.UploadAttempt(nil), r.items[docKey]...), nil
}
