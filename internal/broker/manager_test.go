package broker

import (
	"context"
	"sync"
	"testing"

	"github.com/dmitrijs2005/docbroker/internal/broker/repositories/attempts"
	"github.com/dmitrijs2005/docbroker/internal/broker/session"
	"github.com/dmitrijs2005/docbroker/internal/common"
	"github.com/dmitrijs2005/docbroker/internal/logging"
	"github.com/dmitrijs2005/docbroker/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Notify(ctx context.Context, docKey, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message)
	return nil
}

func newTestManager(t *testing.T, limit int, alwaysSaveOnExit bool) (*Manager, *storage.MemoryClient) {
	t.Helper()
	store := storage.NewMemoryClient()
	store.Seed("doc1", []byte("original"))

	m := NewManager(ManagerOptions{
		Store:              store,
		Attempts:           attempts.NewInMemoryRepository(),
		Logger:             nopLogger{},
		LimitStoreFailures: limit,
		AlwaysSaveOnExit:   alwaysSaveOnExit,
	})
	m.SetNotifier(&recordingNotifier{})
	return m, store
}

func TestManager_OpenEditClose(t *testing.T) {
	m, store := newTestManager(t, 2, true)
	store.SetPutFailures("doc1", -1, 500)
	ctx := context.Background()

	require.NoError(t, m.HandleCommand(ctx, "doc1", "open policy=discard-on-save"))

	b, err := m.Broker("doc1")
	require.NoError(t, err)

	require.NoError(t, m.HandleCommand(ctx, "doc1", "edit content=edited"))

	sess := b.Session()
	assert.Equal(t, session.PhaseClosed, sess.Phase)
	assert.Equal(t, 2, sess.PutFileCount)
	assert.Equal(t, []byte("original"), store.Content("doc1"))
}

func TestManager_DestroyedDocumentIsRemoved(t *testing.T) {
	m, _ := newTestManager(t, 2, false)
	ctx := context.Background()

	require.NoError(t, m.HandleCommand(ctx, "doc1", "open policy=verify-only"))
	require.NoError(t, m.HandleCommand(ctx, "doc1", "closedocument"))

	// the destroyed document no longer occupies the registry
	_, err := m.Broker("doc1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	// and its key can be opened again
	require.NoError(t, m.HandleCommand(ctx, "doc1", "open policy=verify-only"))
	b, err := m.Broker("doc1")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseWaitModifiedStatus, b.Session().Phase)
}

func TestManager_Open_UnknownPolicy(t *testing.T) {
	m, _ := newTestManager(t, 2, false)

	err := m.HandleCommand(context.Background(), "doc1", "open policy=mediate")
	assert.Error(t, err)
}

func TestManager_Open_MissingDocumentIsDropped(t *testing.T) {
	m, _ := newTestManager(t, 2, false)
	ctx := context.Background()

	_, err := m.Open(ctx, "ghost", session.PolicyVerifyOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = m.Broker("ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestManager_Open_Duplicate(t *testing.T) {
	m, _ := newTestManager(t, 2, false)
	ctx := context.Background()

	_, err := m.Open(ctx, "doc1", session.PolicyVerifyOnly)
	require.NoError(t, err)

	_, err = m.Open(ctx, "doc1", session.PolicyVerifyOnly)
	assert.Error(t, err)
}

func TestManager_CommandForUnknownDocument(t *testing.T) {
	m, _ := newTestManager(t, 2, false)

	err := m.HandleCommand(context.Background(), "nosuch", "closedocument")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestManager_EditUnderVerifyOnlyIsViolation(t *testing.T) {
	m, _ := newTestManager(t, 2, false)
	ctx := context.Background()

	_, err := m.Open(ctx, "doc1", session.PolicyVerifyOnly)
	require.NoError(t, err)

	err = m.HandleCommand(ctx, "doc1", "edit content=tampered")
	assert.ErrorIs(t, err, common.ErrProtocolViolation)
}

func TestManager_CloseUnloadsOpenDocuments(t *testing.T) {
	m, store := newTestManager(t, 2, false)
	ctx := context.Background()

	_, err := m.Open(ctx, "doc1", session.PolicyVerifyOnly)
	require.NoError(t, err)

	b, err := m.Broker("doc1")
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx))
	assert.Equal(t, session.PhaseClosed, b.Session().Phase)
	assert.Equal(t, []byte("original"), store.Content("doc1"))

	err = m.HandleCommand(ctx, "doc1", "closedocument")
	assert.Error(t, err)
}
