package db

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/docbroker/internal/broker/repositories/attempts"
)

// InMemoryRepositoryManager backs DSN-less broker runs: the attempt audit
// trail lives in process memory and there is no SQL connection.
type InMemoryRepositoryManager struct {
	attempts attempts.Repository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{attempts: attempts.NewInMemoryRepository()}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Conn() *sql.DB { return nil }

func (m *InMemoryRepositoryManager) Attempts() attempts.Repository { return m.attempts }

func (m *InMemoryRepositoryManager) Close() error { return nil }
