// Package storage defines the broker's view of a document storage backend:
// fetch the current remote content (GetFile) and attempt an upload
// (PutFile). An upload either is accepted, conflicts with a newer remote
// version, or fails transiently with a server-side status code.
package storage

import "context"

// PutStatus classifies the outcome of a PutFile attempt.
type PutStatus int

const (
	// PutAccepted means the upload replaced the remote content.
	PutAccepted PutStatus = iota
	// PutConflict means the remote content changed underneath the caller
	// and the upload was rejected. Force uploads never conflict.
	PutConflict
	// PutTransientFailure means the backend failed with a retryable
	// server-side error; StatusCode carries the HTTP-style code.
	PutTransientFailure
)

func (s PutStatus) String() string {
	switch s {
	case PutAccepted:
		return "accepted"
	case PutConflict:
		return "conflict"
	case PutTransientFailure:
		return "transientfailure"
	default:
		return "unknown"
	}
}

// FileInfo is the result of a GetFile exchange.
type FileInfo struct {
	Content []byte
	// Version identifies the remote revision the content belongs to. The
	// backend chooses the format (ETag, counter, UUID); callers treat it
	// as opaque and pass it back as PutOptions.BaseVersion.
	Version string
}

// PutOptions qualifies a PutFile attempt.
type PutOptions struct {
	// BaseVersion is the remote version the local content was edited
	// from. A mismatch with the current remote version is a conflict.
	BaseVersion string
	// Force uploads unconditionally, bypassing conflict detection.
	Force bool
}

// PutResult is the observed outcome of a PutFile attempt. A non-nil
// PutResult with a failure status is not an error: transport errors are
// returned separately.
type PutResult struct {
	Status PutStatus
	// StatusCode is set for transient failures (e.g. 500).
	StatusCode int
	// Version is the new remote version after an accepted upload.
	Version string
}

// Client performs GetFile/PutFile exchanges against a document storage
// backend. Implementations must be safe for concurrent use; the broker
// serializes calls per document on its own.
type Client interface {
	GetFile(ctx context.Context, docKey string) (*FileInfo, error)
	PutFile(ctx context.Context, docKey string, content []byte, opts PutOptions) (*PutResult, error)
}
