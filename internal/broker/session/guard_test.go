package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnloadGuard_FiresOnUnsavedData(t *testing.T) {
	var reasons []string
	g := NewUnloadGuard(func(ctx context.Context, reason string) error {
		reasons = append(reasons, reason)
		return nil
	})

	s := New("doc1", PolicyDisconnect, 2)
	s.Modified = true

	require.NoError(t, g.CheckUnload(context.Background(), s))
	require.Len(t, reasons, 1)
	assert.Equal(t, "Unsaved data detected in document [doc1]", reasons[0])
}

func TestUnloadGuard_FiresAtMostOnce(t *testing.T) {
	fired := 0
	g := NewUnloadGuard(func(ctx context.Context, reason string) error {
		fired++
		return nil
	})

	s := New("doc1", PolicyDisconnect, 2)
	s.Modified = true

	require.NoError(t, g.CheckUnload(context.Background(), s))
	require.NoError(t, g.CheckUnload(context.Background(), s))
	assert.Equal(t, 1, fired)
}

func TestUnloadGuard_ResetRearms(t *testing.T) {
	fired := 0
	g := NewUnloadGuard(func(ctx context.Context, reason string) error {
		fired++
		return nil
	})

	s := New("doc1", PolicyDisconnect, 2)
	s.Modified = true

	require.NoError(t, g.CheckUnload(context.Background(), s))
	g.Reset()
	require.NoError(t, g.CheckUnload(context.Background(), s))
	assert.Equal(t, 2, fired)
}

func TestUnloadGuard_Suppressed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Session)
	}{
		{"unmodified document", func(s *Session) {}},
		{"upload succeeded", func(s *Session) {
			s.Modified = true
			s.UploadSucceeded = true
		}},
		{"explicitly resolved by user", func(s *Session) {
			s.Modified = true
			s.UserResolved = true
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewUnloadGuard(func(ctx context.Context, reason string) error {
				t.Fatal("guard must not fire")
				return nil
			})

			s := New("doc1", PolicyDisconnect, 2)
			tt.setup(s)
			require.NoError(t, g.CheckUnload(context.Background(), s))
		})
	}
}
