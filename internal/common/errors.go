// Package common defines shared constants and sentinel errors used across
// the document broker components. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Engine contract errors. A protocol violation is unrecoverable for the
	// affected document: the broker aborts the session instead of retrying.
	ErrProtocolViolation = errors.New("protocol violation")

	// Session lifecycle errors.
	ErrDocumentClosed = errors.New("document closed")
)
