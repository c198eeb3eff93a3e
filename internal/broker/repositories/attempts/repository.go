// Package attempts persists the upload-attempt audit trail: one record
// per PutFile attempt a document broker makes against storage.
package attempts

import (
	"context"

	"github.com/dmitrijs2005/docbroker/internal/broker/models"
)

// Repository stores and queries upload-attempt records.
type Repository interface {
	Record(ctx context.Context, a *models.UploadAttempt) error
	ListByDocKey(ctx context.Context, docKey string) ([]*models.UploadAttempt, error)
}
