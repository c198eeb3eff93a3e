// Package session implements the storage-upload conflict-resolution state
// machine: per-document session state, the resolution policies, the engine
// reacting to load/modify/upload/error/destroy events, and the unload
// guard for unsaved data.
package session

import (
	"fmt"

	"github.com/dmitrijs2005/docbroker/internal/common"
)

// Phase is the lifecycle state of a document session. Transitions are
// strictly sequential; skipping or revisiting a phase is a protocol
// violation.
type Phase int

const (
	// PhaseWaitLoadStatus: created, waiting for the initial GetFile
	// exchange to complete.
	PhaseWaitLoadStatus Phase = iota
	// PhaseWaitModifiedStatus: loaded, waiting for a document-modified
	// notification.
	PhaseWaitModifiedStatus
	// PhaseWaitDocClose: modification observed, resolution in progress,
	// waiting for the document to close.
	PhaseWaitDocClose
	// PhaseClosed: terminal.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitLoadStatus:
		return "WaitLoadStatus"
	case PhaseWaitModifiedStatus:
		return "WaitModifiedStatus"
	case PhaseWaitDocClose:
		return "WaitDocClose"
	case PhaseClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// transition advances from p to next, which must be the immediate
// successor phase.
func transition(p, next Phase) (Phase, error) {
	if next != p+1 {
		return p, fmt.Errorf("transition %s -> %s: %w", p, next, common.ErrProtocolViolation)
	}
	return next, nil
}
