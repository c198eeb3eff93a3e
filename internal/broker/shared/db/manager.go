// Package db wires the broker's SQL repositories to their backing
// database and runs schema migrations.
package db

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/docbroker/internal/broker/repositories/attempts"
)

// RepositoryManager hands out the broker's repositories over one shared
// connection pool.
type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Attempts() attempts.Repository
	Close() error
}
