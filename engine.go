package docsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/logging"
	"github.com/c0deZ3R0/go-docsync/schema"
)

// DefaultDrainInterval is the pause between queue drain cycles.
const DefaultDrainInterval = 2 * time.Second

// Options configures an Engine.
type Options struct {
	// DrainInterval is the pause between the end of one queue drain cycle
	// and the start of the next. Defaults to DefaultDrainInterval.
	DrainInterval time.Duration

	// Logger for engine and background-component logging. Defaults to the
	// package default logger.
	Logger *logging.Logger

	// Metrics for observability hooks (optional).
	Metrics MetricsCollector
}

// Engine coordinates the sync lifecycle: the one-shot reconcilers at
// session start and the two background processes that run until sign-out.
type Engine struct {
	schema *schema.Schema
	local  LocalStore
	remote RemoteStore
	opts   Options
	logger *logging.Logger

	mu       sync.Mutex
	starting bool
	session  *Session
}

// New creates an Engine over the given schema and stores.
func New(sc *schema.Schema, local LocalStore, remote RemoteStore, opts *Options) *Engine {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.DrainInterval <= 0 {
		o.DrainInterval = DefaultDrainInterval
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Metrics == nil {
		o.Metrics = &NoOpMetricsCollector{}
	}
	return &Engine{
		schema: sc,
		local:  local,
		remote: remote,
		opts:   o,
		logger: o.Logger.WithComponent(logging.Component("engine")),
	}
}

// Session is the ephemeral per-owner sync state: the stop handles for the
// queue consumer and the listener bridge. At most one session is active
// per engine.
type Session struct {
	ownerID string

	// stop halts the queue consumer between cycles; cancel tears down the
	// listener subscriptions immediately.
	stop     chan struct{}
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     sync.WaitGroup
}

// OwnerID returns the owner this session synchronizes for.
func (s *Session) OwnerID() string { return s.ownerID }

// Stop halts both background processes. The queue consumer finishes any
// in-flight drain cycle; listener subscriptions are cancelled immediately.
// Safe to call multiple times.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancel()
	})
}

// Wait blocks until both background processes have exited.
func (s *Session) Wait() { s.done.Wait() }

// Start runs the sign-in sequence for ownerID: upload reconciler, then
// download reconciler, then the queue consumer and the realtime listener
// bridge concurrently. It returns the session whose Stop handle tears the
// background processes down.
func (e *Engine) Start(ctx context.Context, ownerID string) (*Session, error) {
	const op = errors.Op("engine.Start")

	// Claim the session slot before the reconcilers run so a concurrent
	// Start cannot pass the check and bring up a second session.
	e.mu.Lock()
	if e.session != nil || e.starting {
		e.mu.Unlock()
		return nil, errors.E(op, errors.KindInvalid, "a sync session is already active")
	}
	e.starting = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.starting = false
		e.mu.Unlock()
	}()

	if err := e.local.WaitReady(ctx); err != nil {
		return nil, errors.E(op, errors.KindStorage, err, "local store not ready")
	}

	logger := e.logger.WithOwner(ownerID)

	uploaded, err := e.ReconcileUpload(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	logger.Info("upload reconciler finished", slog.Int("uploaded", uploaded))

	if err := e.ReconcileDownload(ctx, ownerID); err != nil {
		return nil, err
	}
	logger.Info("download reconciler finished")

	listenCtx, cancel := context.WithCancel(ctx)
	sess := &Session{
		ownerID: ownerID,
		stop:    make(chan struct{}),
		cancel:  cancel,
	}

	sess.done.Add(1)
	go e.runQueueConsumer(sess, ownerID)

	if err := e.startListenerBridge(listenCtx, sess, ownerID); err != nil {
		sess.Stop()
		return nil, err
	}

	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()

	logger.Info("sync session started")
	return sess, nil
}

// Stop tears down the active session, if any.
func (e *Engine) Stop() {
	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.mu.Unlock()

	if sess != nil {
		sess.Stop()
		e.logger.Info("sync session stopped", slog.String("owner_id", sess.ownerID))
	}
}

// Run drives sessions from auth state changes: sign-in (or a restored
// session) starts a session for the emitted owner, sign-out stops it.
// Run blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, auth AuthProvider) error {
	states := make(chan string, 1)
	unsubscribe := auth.OnAuthStateChanged(func(ownerID string) {
		select {
		case states <- ownerID:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()
	defer e.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ownerID := <-states:
			e.Stop()
			if ownerID == "" {
				continue
			}
			if _, err := e.Start(ctx, ownerID); err != nil {
				e.logger.LogError(ctx, err, "failed to start sync session",
					slog.String("owner_id", ownerID))
			}
		}
	}
}
