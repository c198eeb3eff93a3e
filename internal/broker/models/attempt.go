// Package models defines the persisted records of the document broker.
package models

import "time"

// UploadAttempt is the audit record of a single PutFile attempt.
type UploadAttempt struct {
	ID         string
	DocKey     string
	Attempt    int
	Forced     bool
	Status     string
	StatusCode int
	CreatedAt  time.Time
}
