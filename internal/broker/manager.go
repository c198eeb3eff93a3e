// Package broker hosts the document manager and the service assembly.
// The manager is the registry of open documents; each document gets one
// worker goroutine that serializes every event it sees. The App wires
// configuration, logger, storage backend, repositories, manager and the
// session-channel server together with graceful shutdown.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/docbroker/internal/broker/channel"
	"github.com/dmitrijs2005/docbroker/internal/broker/document"
	"github.com/dmitrijs2005/docbroker/internal/broker/repositories/attempts"
	"github.com/dmitrijs2005/docbroker/internal/broker/session"
	"github.com/dmitrijs2005/docbroker/internal/common"
	"github.com/dmitrijs2005/docbroker/internal/logging"
	"github.com/dmitrijs2005/docbroker/internal/storage"
	"github.com/google/uuid"
)

const workerInboxSize = 64

// task is one unit of work on a document's serialized event stream.
type task struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// worker owns the event stream of a single document. Every broker method
// runs on it, so the broker itself never needs locking.
type worker struct {
	broker *document.Broker
	tasks  chan task

	// stopped marks the inbox as closed; guarded by Manager.mu.
	stopped bool
}

// ManagerOptions configures the document manager.
type ManagerOptions struct {
	Store              storage.Client
	Attempts           attempts.Repository
	Logger             logging.Logger
	LimitStoreFailures int
	AlwaysSaveOnExit   bool
}

// Manager opens documents, routes session commands to them and shuts
// them down. It implements channel.CommandHandler.
type Manager struct {
	store            storage.Client
	attempts         attempts.Repository
	logger           logging.Logger
	limit            int
	alwaysSaveOnExit bool

	notifier document.Notifier

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup
}

func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		store:            opts.Store,
		attempts:         opts.Attempts,
		logger:           opts.Logger.With("module", "manager"),
		limit:            opts.LimitStoreFailures,
		alwaysSaveOnExit: opts.AlwaysSaveOnExit,
		workers:          make(map[string]*worker),
	}
}

// SetNotifier wires the outbound notification fan-out. The channel server
// needs the manager as its command handler and the manager needs the
// server as its notifier, so one side is wired after construction.
func (m *Manager) SetNotifier(n document.Notifier) {
	m.notifier = n
}

// Open creates a document broker for docKey and performs the initial
// load. An empty docKey gets a generated one; the chosen key is returned.
func (m *Manager) Open(ctx context.Context, docKey string, policy session.Policy) (string, error) {
	if docKey == "" {
		docKey = uuid.New().String()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", errors.New("manager is closed")
	}
	if _, exists := m.workers[docKey]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("document %q is already open", docKey)
	}

	b := document.Open(document.Options{
		DocKey:             docKey,
		Policy:             policy,
		LimitStoreFailures: m.limit,
		AlwaysSaveOnExit:   m.alwaysSaveOnExit,
		Store:              m.store,
		Attempts:           m.attempts,
		Notifier:           m.notifier,
		Logger:             m.logger,
		OnDestroyed: func(key string) {
			m.drop(key)
			m.logger.Info(context.Background(), "Document destroyed", "dockey", key)
		},
	})
	w := &worker{broker: b, tasks: make(chan task, workerInboxSize)}
	m.workers[docKey] = w
	m.wg.Add(1)
	go m.runWorker(w)
	m.mu.Unlock()

	m.logger.Info(ctx, "Document opened", "dockey", docKey, "policy", policy.String())

	if err := m.do(ctx, docKey, b.Load); err != nil {
		m.drop(docKey)
		return "", fmt.Errorf("open %q: %w", docKey, err)
	}
	return docKey, nil
}

// Broker returns the broker for docKey while the document is open;
// destroyed documents are gone from the registry.
func (m *Manager) Broker(docKey string) (*document.Broker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[docKey]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", docKey, common.ErrorNotFound)
	}
	return w.broker, nil
}

// HandleCommand implements channel.CommandHandler. The open and edit
// commands are handled by the manager itself; everything else is routed
// onto the document's serialized event stream.
func (m *Manager) HandleCommand(ctx context.Context, docKey, line string) error {
	cmd, err := channel.ParseCommand(line)
	if err != nil {
		return err
	}

	switch cmd.Name {
	case channel.CommandOpen:
		policy, err := session.ParsePolicy(cmd.Args["policy"])
		if err != nil {
			return err
		}
		_, err = m.Open(ctx, docKey, policy)
		return err

	case channel.CommandEdit:
		b, err := m.Broker(docKey)
		if err != nil {
			return err
		}
		content := []byte(cmd.Args["content"])
		return m.do(ctx, docKey, func(ctx context.Context) error {
			return b.Edit(ctx, content)
		})

	default:
		b, err := m.Broker(docKey)
		if err != nil {
			return err
		}
		return m.do(ctx, docKey, func(ctx context.Context) error {
			return b.HandleCommand(ctx, line)
		})
	}
}

// do runs fn on the document's worker and waits for the outcome. Tasks
// never enqueue further tasks: command loopbacks happen inside the broker
// on the same stream.
func (m *Manager) do(ctx context.Context, docKey string, fn func(ctx context.Context) error) error {
	t := task{ctx: ctx, run: fn, done: make(chan error, 1)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("manager is closed")
	}
	w, ok := m.workers[docKey]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("document %q: %w", docKey, common.ErrorNotFound)
	}
	// Non-blocking send: nothing may block on a worker inbox while
	// holding the manager lock, or a worker dropping itself after a
	// destroy would deadlock against a full inbox.
	select {
	case w.tasks <- t:
	default:
		m.mu.Unlock()
		return fmt.Errorf("document %q: inbox full", docKey)
	}
	m.mu.Unlock()

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) runWorker(w *worker) {
	defer m.wg.Done()
	for t := range w.tasks {
		t.done <- t.run(t.ctx)
	}
}

// drop removes a document from the registry and closes its inbox. It is
// called for failed loads and for destroyed documents; in the latter case
// it runs on the document's own worker, which then drains the remaining
// buffered tasks as post-destroy no-ops and exits.
func (m *Manager) drop(docKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[docKey]
	if !ok {
		return
	}
	delete(m.workers, docKey)
	if !w.stopped {
		w.stopped = true
		close(w.tasks)
	}
}

// Close unloads every open document and stops the workers. Each document
// receives a final closedocument so the exit-time save logic runs.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for docKey, w := range m.workers {
		b := w.broker
		t := task{ctx: ctx, run: func(ctx context.Context) error {
			return b.HandleCommand(ctx, channel.CmdCloseDocument)
		}, done: make(chan error, 1)}
		select {
		case w.tasks <- t:
		default:
			m.logger.Warn(ctx, "Inbox full at shutdown, skipping final close", "dockey", docKey)
		}
		w.stopped = true
		close(w.tasks)
		delete(m.workers, docKey)
	}
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		m.logger.Info(ctx, "All documents unloaded")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
