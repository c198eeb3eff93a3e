package session

import (
	"context"
	"fmt"
)

// UnloadGuard detects, at document-unload time, that unsaved modifications
// still exist. It reports through a failure callback at most once per
// modification cycle, and only when nothing else resolved the
// modification: the document is still modified, no upload succeeded, and
// no explicit close or forced save was issued (the disconnect path).
type UnloadGuard struct {
	onFail func(ctx context.Context, reason string) error
	fired  bool
}

// NewUnloadGuard creates a guard reporting into onFail, typically
// Engine.OnUnsavedData.
func NewUnloadGuard(onFail func(ctx context.Context, reason string) error) *UnloadGuard {
	return &UnloadGuard{onFail: onFail}
}

// Reset prepares the guard for a fresh load/modify cycle.
func (g *UnloadGuard) Reset() { g.fired = false }

// CheckUnload inspects the session on the unload path and fires the
// failure callback when unsaved data is being discarded.
func (g *UnloadGuard) CheckUnload(ctx context.Context, s *Session) error {
	if g.fired || !s.Modified || s.UploadSucceeded || s.UserResolved {
		return nil
	}
	g.fired = true
	return g.onFail(ctx, fmt.Sprintf("Unsaved data detected in document [%s]", s.DocKey))
}
