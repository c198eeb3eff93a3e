// Package document implements the per-document broker: it loads content
// from storage, tracks local modification, executes session commands, runs
// the bounded exit-time save loop, and finalizes the session on destroy.
//
// A broker is single-writer: all methods must be invoked from one
// serialized event stream (the manager's per-document worker). Storage
// exchanges are serialized per document; a new PutFile is issued only
// after the previous attempt's outcome was observed.
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/docbroker/internal/broker/channel"
	"github.com/dmitrijs2005/docbroker/internal/broker/models"
	"github.com/dmitrijs2005/docbroker/internal/broker/repositories/attempts"
	"github.com/dmitrijs2005/docbroker/internal/broker/session"
	"github.com/dmitrijs2005/docbroker/internal/common"
	"github.com/dmitrijs2005/docbroker/internal/logging"
	"github.com/dmitrijs2005/docbroker/internal/storage"
	"github.com/google/uuid"
)

// Notifier fans a notification out to the attached user sessions.
type Notifier interface {
	Notify(ctx context.Context, docKey, message string) error
}

// Options configures a document broker.
type Options struct {
	DocKey             string
	Policy             session.Policy
	LimitStoreFailures int
	AlwaysSaveOnExit   bool
	Store              storage.Client
	Attempts           attempts.Repository
	Notifier           Notifier
	Logger             logging.Logger
	// OnDestroyed is invoked after the session closed cleanly.
	OnDestroyed func(docKey string)
}

// Broker owns one open document.
type Broker struct {
	docKey   string
	store    storage.Client
	attempts attempts.Repository
	notifier Notifier
	log      logging.Logger

	engine *session.Engine
	sess   *session.Session
	guard  *session.UnloadGuard

	limit            int
	alwaysSaveOnExit bool

	// content is the local (possibly edited) document bytes; the broker
	// never interprets them.
	content []byte

	connected bool
	closing   bool
	destroyed bool

	onDestroyed func(docKey string)
}

// Open constructs the broker and its conflict-resolution engine. The
// document is not loaded yet; call Load next.
func Open(opts Options) *Broker {
	b := &Broker{
		docKey:           opts.DocKey,
		store:            opts.Store,
		attempts:         opts.Attempts,
		notifier:         opts.Notifier,
		log:              opts.Logger.With("module", "docbroker", "dockey", opts.DocKey),
		limit:            opts.LimitStoreFailures,
		alwaysSaveOnExit: opts.AlwaysSaveOnExit,
		connected:        true,
		onDestroyed:      opts.OnDestroyed,
	}
	b.sess = session.New(opts.DocKey, opts.Policy, opts.LimitStoreFailures)
	b.engine = session.NewEngine(b.sess, b, b, opts.Logger)
	b.guard = session.NewUnloadGuard(b.engine.OnUnsavedData)
	return b
}

// Session exposes the session state, e.g. to tune expected exchange
// counts before Load.
func (b *Broker) Session() *session.Session { return b.sess }

// Load performs the initial GetFile exchange and completes the load.
func (b *Broker) Load(ctx context.Context) error {
	if err := b.engine.OnGetFile(ctx); err != nil {
		return err
	}
	b.guard.Reset()

	info, err := b.store.GetFile(ctx, b.docKey)
	if err != nil {
		return fmt.Errorf("load %q: %w", b.docKey, err)
	}

	b.sess.OriginalContent = append([]byte(nil), info.Content...)
	b.sess.RemoteVersion = info.Version
	b.sess.StoreFailureCount = 0
	b.content = append([]byte(nil), info.Content...)

	return b.engine.OnLoaded(ctx)
}

// Edit replaces the local content and raises the modified notification.
// The session's modified flags are owned by the engine and set when it
// consumes the notification.
func (b *Broker) Edit(ctx context.Context, content []byte) error {
	if b.destroyed {
		return common.ErrDocumentClosed
	}
	b.content = append([]byte(nil), content...)

	msg := channel.ModifiedNotification(true)
	if err := b.notify(ctx, msg); err != nil {
		return err
	}
	return b.engine.OnModified(ctx, msg)
}

// HandleCommand executes one inbound session command.
func (b *Broker) HandleCommand(ctx context.Context, line string) error {
	if b.destroyed {
		b.log.Warn(ctx, "Command after destroy ignored", "command", line)
		return nil
	}

	cmd, err := channel.ParseCommand(line)
	if err != nil {
		return err
	}

	switch cmd.Name {
	case channel.CommandSave:
		if cmd.Bool("dontSaveIfUnmodified") && !b.sess.Modified {
			b.log.Info(ctx, "Skipping save of unmodified document")
			return nil
		}
		_, err := b.saveToStorage(ctx, false)
		return err

	case channel.CommandSaveToStorage:
		// An explicit savetostorage resolves the modification cycle as
		// far as the unload guard is concerned.
		b.sess.UserResolved = true
		_, err := b.saveToStorage(ctx, cmd.Bool("force"))
		return err

	case channel.CommandCloseDocument:
		if b.closing {
			return nil
		}
		b.sess.UserResolved = true
		return b.unload(ctx)

	default:
		return fmt.Errorf("unknown command %q", cmd.Name)
	}
}

// SendCommand implements session.CommandSender: commands the engine emits
// loop straight back into the broker's event stream.
func (b *Broker) SendCommand(ctx context.Context, cmd string) error {
	return b.HandleCommand(ctx, cmd)
}

// Disconnect implements session.Disconnector. Severing the transport
// stops all outbound notifications; the broker then unloads under its own
// exit-time save logic, which proceeds independently of the closed user
// transport.
func (b *Broker) Disconnect(ctx context.Context) {
	if !b.connected {
		return
	}
	b.connected = false
	b.log.Info(ctx, "Session transport severed")

	if b.closing || b.destroyed {
		return
	}
	if err := b.unload(ctx); err != nil {
		b.log.Error(ctx, "Unload after disconnect failed", "error", err.Error())
	}
}

// notify delivers a notification to the engine's transport peers; after a
// disconnect it is dropped.
func (b *Broker) notify(ctx context.Context, message string) error {
	if !b.connected || b.notifier == nil {
		return nil
	}
	return b.notifier.Notify(ctx, b.docKey, message)
}

// saveToStorage performs one PutFile attempt. It returns a nil result
// when the attempt was skipped because the failure budget is exhausted.
func (b *Broker) saveToStorage(ctx context.Context, force bool) (*storage.PutResult, error) {
	if b.destroyed {
		return nil, common.ErrDocumentClosed
	}
	if b.sess.StoreFailureCount >= b.limit {
		b.log.Warn(ctx, "Upload skipped: store failure limit reached",
			"failures", b.sess.StoreFailureCount, "limit", b.limit)
		return nil, nil
	}

	if err := b.engine.OnPutFile(ctx); err != nil {
		return nil, err
	}

	res, err := b.store.PutFile(ctx, b.docKey, b.content, storage.PutOptions{
		BaseVersion: b.sess.RemoteVersion,
		Force:       force,
	})
	if err != nil {
		// Transport-level failure: consumes budget like a server error.
		b.log.Error(ctx, "PutFile transport error", "error", err.Error())
		res = &storage.PutResult{Status: storage.PutTransientFailure}
	}

	b.recordAttempt(ctx, res, force)

	switch res.Status {
	case storage.PutAccepted:
		b.sess.Modified = false
		b.sess.StoreFailureCount = 0
		b.sess.RemoteVersion = res.Version
		b.log.Info(ctx, "Upload accepted", "version", res.Version)
		if err := b.notify(ctx, channel.ModifiedNotification(false)); err != nil {
			return nil, err
		}

	case storage.PutConflict:
		b.log.Warn(ctx, "Upload conflict: document changed underneath us")
		if err := b.raiseStorageError(ctx, channel.KindDocumentConflict); err != nil {
			return nil, err
		}

	case storage.PutTransientFailure:
		b.sess.StoreFailureCount++
		b.log.Warn(ctx, "Upload failed",
			"status_code", res.StatusCode, "failures", b.sess.StoreFailureCount)
		if err := b.raiseStorageError(ctx, channel.KindSaveFailed); err != nil {
			return nil, err
		}
	}

	if err := b.engine.OnPutFileResult(ctx, res, b.content); err != nil {
		return nil, err
	}
	return res, nil
}

// raiseStorageError notifies the attached sessions and, while the
// transport is up, lets the engine react.
func (b *Broker) raiseStorageError(ctx context.Context, kind string) error {
	msg := channel.StorageError(kind)
	if err := b.notify(ctx, msg); err != nil {
		return err
	}
	if !b.connected {
		return nil
	}
	return b.engine.OnError(ctx, msg)
}

func (b *Broker) recordAttempt(ctx context.Context, res *storage.PutResult, force bool) {
	if b.attempts == nil {
		return
	}
	a := &models.UploadAttempt{
		ID:         uuid.New().String(),
		DocKey:     b.docKey,
		Attempt:    b.sess.PutFileCount,
		Forced:     force,
		Status:     res.Status.String(),
		StatusCode: res.StatusCode,
		CreatedAt:  time.Now().UTC(),
	}
	if err := b.attempts.Record(ctx, a); err != nil {
		b.log.Warn(ctx, "Failed to record upload attempt", "error", err.Error())
	}
}

// unload drives the document out of memory: the exit-time save loop, the
// unsaved-data guard, and the final destroy.
func (b *Broker) unload(ctx context.Context) error {
	b.closing = true

	if err := b.engine.OnClosing(ctx); err != nil {
		return err
	}

	for b.shouldSaveOnExit() {
		res, err := b.saveToStorage(ctx, false)
		if err != nil {
			return err
		}
		if res == nil {
			// budget exhausted
			break
		}
		if res.Status == storage.PutConflict {
			// A conflict does not consume budget; retrying the same
			// non-forced upload would spin. The policy reaction (force
			// or discard) already ran.
			break
		}
	}

	if err := b.guard.CheckUnload(ctx, b.sess); err != nil {
		return err
	}

	return b.destroy(ctx)
}

// shouldSaveOnExit reports whether the exit-time save loop owes storage
// another upload attempt.
func (b *Broker) shouldSaveOnExit() bool {
	if b.destroyed || b.sess.StoreFailureCount >= b.limit {
		return false
	}
	if b.sess.Modified {
		return true
	}
	// always_save_on_exit uploads once at close time whenever no upload
	// has been accepted during the session; policies that never upload
	// are exempt.
	return b.alwaysSaveOnExit && !b.sess.UploadSucceeded && b.sess.Policy.ExpectsUpload()
}

// destroy finalizes the session: the engine verifies the exchange counts
// and that the remote content matches expectation.
func (b *Broker) destroy(ctx context.Context) error {
	if b.destroyed {
		return nil
	}

	final, err := b.store.GetFile(ctx, b.docKey)
	if err != nil {
		return fmt.Errorf("final content fetch %q: %w", b.docKey, err)
	}

	if err := b.engine.OnDestroy(ctx, final.Content); err != nil {
		return err
	}

	b.destroyed = true
	if err := b.notify(ctx, channel.DestroyedNotification(b.docKey)); err != nil {
		b.log.Warn(ctx, "Destroy notification failed", "error", err.Error())
	}
	if b.onDestroyed != nil {
		b.onDestroyed(b.docKey)
	}
	return nil
}
