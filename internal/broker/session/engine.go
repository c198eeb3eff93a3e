package session

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/docbroker/internal/broker/channel"
	"github.com/dmitrijs2005/docbroker/internal/common"
	"github.com/dmitrijs2005/docbroker/internal/logging"
	"github.com/dmitrijs2005/docbroker/internal/storage"
)

// CommandSender delivers a command back to the session command channel.
type CommandSender interface {
	SendCommand(ctx context.Context, cmd string) error
}

// Disconnector severs the user transport for the session.
type Disconnector interface {
	Disconnect(ctx context.Context)
}

const unsavedDataPrefix = "Unsaved data detected"

// Engine is the conflict-resolution engine for one document session. It
// owns the session's phase machine, validates every observed exchange
// against the session contract, and reacts per the configured policy by
// emitting commands or severing the transport.
//
// Engine methods must be invoked from the document broker's serialized
// event stream. Contract breaches are reported as errors wrapping
// common.ErrProtocolViolation; they are unrecoverable for the session.
type Engine struct {
	sess   *Session
	sender CommandSender
	disc   Disconnector
	log    logging.Logger

	// lastAccepted is the content of the most recent accepted upload,
	// used to verify final remote content at destroy time.
	lastAccepted []byte
}

// NewEngine wires an engine to its session, command sender and
// disconnector.
func NewEngine(sess *Session, sender CommandSender, disc Disconnector, log logging.Logger) *Engine {
	return &Engine{
		sess:   sess,
		sender: sender,
		disc:   disc,
		log:    log.With("module", "engine", "dockey", sess.DocKey, "policy", sess.Policy.String()),
	}
}

// Session exposes the engine's session state for the broker, which shares
// the same event stream.
func (e *Engine) Session() *Session { return e.sess }

func (e *Engine) violation(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %s: %w", e.sess.DocKey, msg, common.ErrProtocolViolation)
}

func (e *Engine) requirePhase(p Phase, event string) error {
	if e.sess.Phase != p {
		return e.violation("%s in phase %s, want %s", event, e.sess.Phase, p)
	}
	return nil
}

// OnGetFile observes a GetFile exchange during the initial load. It is
// valid only in WaitLoadStatus, counts against the expected fetch count,
// and resets the unsaved-data detection for the fresh cycle.
func (e *Engine) OnGetFile(ctx context.Context) error {
	if err := e.requirePhase(PhaseWaitLoadStatus, "GetFile"); err != nil {
		return err
	}

	e.sess.GetFileCount++
	if e.sess.ExpectedGetFile >= 0 && e.sess.GetFileCount > e.sess.ExpectedGetFile {
		return e.violation("GetFile count %d exceeds expected %d",
			e.sess.GetFileCount, e.sess.ExpectedGetFile)
	}

	e.sess.UnsavedDataDetected = false
	e.log.Info(ctx, "GetFile observed", "count", e.sess.GetFileCount)
	return nil
}

// OnLoaded transitions the session out of WaitLoadStatus once the
// document is fully loaded.
func (e *Engine) OnLoaded(ctx context.Context) error {
	next, err := transition(e.sess.Phase, PhaseWaitModifiedStatus)
	if err != nil {
		return err
	}
	e.sess.Phase = next
	e.log.Info(ctx, "Document loaded")
	return nil
}

// OnModified reacts to a document-modified notification: the session is
// marked modified, advances to WaitDocClose, and the policy decides the
// reaction.
func (e *Engine) OnModified(ctx context.Context, message string) error {
	if err := e.requirePhase(PhaseWaitModifiedStatus, "modification"); err != nil {
		return err
	}

	rules := e.sess.Policy.rules()
	if rules.modifiedIsViolation {
		return e.violation("unexpected modification %q under %s", message, e.sess.Policy)
	}

	e.sess.Modified = true
	e.sess.EverModified = true

	next, err := transition(e.sess.Phase, PhaseWaitDocClose)
	if err != nil {
		return err
	}
	e.sess.Phase = next

	if rules.disconnectOnModified {
		e.log.Info(ctx, "Disconnecting session transport")
		e.disc.Disconnect(ctx)
		return nil
	}

	e.log.Info(ctx, "Reacting to modification", "command", rules.onModified)
	return e.sender.SendCommand(ctx, rules.onModified)
}

// OnClosing notes that the document began closing. Sessions that never
// saw a modification advance to WaitDocClose here; sessions already in
// WaitDocClose stay put.
func (e *Engine) OnClosing(ctx context.Context) error {
	switch e.sess.Phase {
	case PhaseWaitDocClose:
		return nil
	case PhaseWaitModifiedStatus:
		next, err := transition(e.sess.Phase, PhaseWaitDocClose)
		if err != nil {
			return err
		}
		e.sess.Phase = next
		e.log.Info(ctx, "Closing unmodified document")
		return nil
	default:
		return e.violation("close in phase %s", e.sess.Phase)
	}
}

// OnPutFile observes an upload attempt before it is issued. Uploads are
// legal only in WaitDocClose and must stay within the expected budget.
func (e *Engine) OnPutFile(ctx context.Context) error {
	if err := e.requirePhase(PhaseWaitDocClose, "PutFile"); err != nil {
		return err
	}

	e.sess.PutFileCount++
	if e.sess.ExpectedPutFile >= 0 && e.sess.PutFileCount > e.sess.ExpectedPutFile {
		return e.violation("PutFile count %d exceeds expected %d",
			e.sess.PutFileCount, e.sess.ExpectedPutFile)
	}

	e.log.Info(ctx, "PutFile observed", "count", e.sess.PutFileCount)
	return nil
}

// OnPutFileResult consumes the outcome of an upload attempt. Accepted
// uploads are recorded for final content verification; the
// force-overwrite policy finalizes with a close once an outcome has been
// seen.
func (e *Engine) OnPutFileResult(ctx context.Context, res *storage.PutResult, content []byte) error {
	if res.Status == storage.PutAccepted {
		e.lastAccepted = append([]byte(nil), content...)
		e.sess.UploadSucceeded = true
	}

	if e.sess.Policy.rules().closeAfterPutResult {
		e.log.Info(ctx, "Finalizing after upload attempt", "status", res.Status.String())
		return e.sender.SendCommand(ctx, channel.CmdCloseDocument)
	}
	return nil
}

// OnError reacts to a storage error notification of the form
// "error: cmd=storage kind=<kind>". Only savefailed and documentconflict
// are legal kinds; the policy decides the reaction, and policies that
// must never see an error treat any as a violation.
func (e *Engine) OnError(ctx context.Context, message string) error {
	if err := e.requirePhase(PhaseWaitDocClose, "storage error"); err != nil {
		return err
	}

	kind, ok := channel.ParseStorageError(message)
	if !ok {
		return e.violation("malformed storage error %q", message)
	}
	if kind != channel.KindSaveFailed && kind != channel.KindDocumentConflict {
		return e.violation("unexpected storage error kind %q", kind)
	}

	rules := e.sess.Policy.rules()
	if rules.onStorageError == "" {
		return e.violation("unexpected storage error %q under %s", message, e.sess.Policy)
	}

	e.log.Info(ctx, "Reacting to storage error", "kind", kind, "command", rules.onStorageError)
	return e.sender.SendCommand(ctx, rules.onStorageError)
}

// OnUnsavedData is the unload-guard callback: the broker is discarding a
// session whose content is still modified and unsynchronized. It must
// fire in WaitDocClose with a reason beginning "Unsaved data detected".
func (e *Engine) OnUnsavedData(ctx context.Context, reason string) error {
	if !strings.HasPrefix(reason, unsavedDataPrefix) {
		return e.violation("unexpected unload reason %q", reason)
	}
	if err := e.requirePhase(PhaseWaitDocClose, "unsaved-data detection"); err != nil {
		return err
	}

	e.log.Warn(ctx, "Modified document being unloaded", "reason", reason)
	e.sess.UnsavedDataDetected = true
	return nil
}

// OnDestroy finalizes the session when the broker reports destruction.
// It enforces the exchange-count contract, the unload-guard contract for
// disconnected sessions, and verifies that the final remote content is
// the last accepted upload, or the original content when no upload ever
// succeeded.
//
// The exact PutFile count is a contract about the modification cycle, so
// it binds only sessions that saw a modification; a session closed
// without one is bounded by the per-attempt budget check alone.
func (e *Engine) OnDestroy(ctx context.Context, finalContent []byte) error {
	if err := e.requirePhase(PhaseWaitDocClose, "destroy"); err != nil {
		return err
	}

	if e.sess.ExpectedGetFile >= 0 && e.sess.GetFileCount != e.sess.ExpectedGetFile {
		return e.violation("GetFile count %d, expected %d",
			e.sess.GetFileCount, e.sess.ExpectedGetFile)
	}
	if e.sess.EverModified && e.sess.ExpectedPutFile >= 0 && e.sess.PutFileCount != e.sess.ExpectedPutFile {
		return e.violation("PutFile count %d, expected %d",
			e.sess.PutFileCount, e.sess.ExpectedPutFile)
	}

	if e.sess.Policy == PolicyDisconnect && e.sess.EverModified && !e.sess.UnsavedDataDetected {
		return e.violation("modified document unloaded without unsaved-data detection")
	}

	want := e.sess.OriginalContent
	if e.sess.UploadSucceeded {
		want = e.lastAccepted
	}
	if !bytes.Equal(finalContent, want) {
		return e.violation("unexpected contents in storage: got %d bytes, want %d bytes",
			len(finalContent), len(want))
	}

	next, err := transition(e.sess.Phase, PhaseClosed)
	if err != nil {
		return err
	}
	e.sess.Phase = next
	e.log.Info(ctx, "Session closed", "putfile_count", e.sess.PutFileCount)
	return nil
}
