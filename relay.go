package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Relay repeatedly opens a scope, dequeues a batch, hands each message to a Handler
// and commits. Any failure rolls the scope back so the batch is redelivered.
//
// Several relays, in one process or many, may drain the same table concurrently;
// the storage's atomic PeekLock keeps them from sharing rows.
type Relay[Tx any] struct {
	scopes  ScopeFactory[Tx]
	storage Storage[Tx]
	handler Handler
	cfg     RelayConfig

	pendingMu sync.Mutex
	pendingAt time.Time

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// NewRelay constructs a Relay with defaults and optional settings.
func NewRelay[Tx any](scopes ScopeFactory[Tx], storage Storage[Tx], handler Handler, opts ...RelayOption) *Relay[Tx] {
	if scopes == nil {
		panic("outbox: nil ScopeFactory")
	}
	if storage == nil {
		panic("outbox: nil Storage")
	}
	if handler == nil {
		panic("outbox: nil Handler")
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Relay[Tx]{
		scopes:  scopes,
		storage: storage,
		handler: handler,
		cfg:     cfg.withDefaults(),
	}
}

// Start verifies that the store is reachable and then runs the loop in the background.
// A failed check is returned and the relay stays stopped. The loop keeps the values of ctx
// but not its cancellation; use Stop to end it.
func (r *Relay[Tx]) Start(ctx context.Context) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if r.running {
		return ErrRelayStarted
	}
	if _, err := r.Count(ctx); err != nil {
		return fmt.Errorf("outbox relay start: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	r.running = true
	r.cancel = cancel
	r.done = done
	r.runErr = nil

	go func() {
		err := r.Run(loopCtx)
		cancel()
		if err != nil {
			r.cfg.Logger.Error("outbox relay exited", "err", err)
		}
		r.stateMu.Lock()
		if r.done == done {
			r.running = false
			r.runErr = err
		}
		r.stateMu.Unlock()
		close(done)
	}()

	r.cfg.Logger.Info("outbox relay started",
		"workers", r.cfg.Workers,
		"batch_size", r.cfg.BatchSize,
		"poll_interval", r.cfg.PollInterval,
	)

	return nil
}

// Stop cancels the loop and waits for in-flight iterations to finish.
// Unprocessed rows stay in the table. If ctx ends first, Stop returns ctx.Err()
// and the loop keeps shutting down in the background; Start succeeds again once it has.
// Calling Stop on a stopped relay is a no-op.
func (r *Relay[Tx]) Stop(ctx context.Context) error {
	r.stateMu.Lock()
	if !r.running {
		r.stateMu.Unlock()

		return nil
	}
	cancel, done := r.cancel, r.done
	r.stateMu.Unlock()

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.cfg.Logger.Info("outbox relay stopped")

	return r.Err()
}

// Running reports whether the background loop started by Start is still active.
func (r *Relay[Tx]) Running() bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	return r.running
}

// Done returns a channel closed when the loop started by the latest Start exits,
// whether through Stop or a worker panic. It is nil before the first Start.
func (r *Relay[Tx]) Done() <-chan struct{} {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	return r.done
}

// Err returns the error that ended the latest loop, if any.
func (r *Relay[Tx]) Err() error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	return r.runErr
}

// Run blocks, polling with the configured number of workers until ctx is canceled.
// Iteration errors are logged and retried; only a worker panic ends Run with an error.
func (r *Relay[Tx]) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, r.cfg.Workers)
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
					r.cfg.Logger.Error("outbox worker panic", "worker", workerID, "panic", rec)
					errCh <- err
					cancel()
				}
			}()

			if err := r.runWorker(ctx, workerID); err != nil && !errors.Is(err, context.Canceled) {
				r.cfg.Logger.Error("outbox worker error", "worker", workerID, "err", err)
				errCh <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// ProcessOnce runs a single iteration and returns the number of messages relayed and committed.
// It returns 0 and a nil error when the table is empty.
func (r *Relay[Tx]) ProcessOnce(ctx context.Context) (int, error) {
	ctx, span := r.cfg.Tracer.Start(ctx, "outbox.relay.iteration",
		trace.WithAttributes(attribute.Int("outbox.batch_size", r.cfg.BatchSize)),
	)
	defer span.End()

	n, err := r.processOnce(ctx)
	span.SetAttributes(attribute.Int("outbox.messages", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return n, err
}

// Count returns the backlog size using a fresh scope that is rolled back afterwards.
func (r *Relay[Tx]) Count(ctx context.Context) (int, error) {
	scope, err := r.openScope(ctx)
	if err != nil {
		return 0, err
	}

	count, err := r.storage.Count(ctx, scope.Tx())
	if err != nil {
		return 0, r.rollbackWith(ctx, scope, fmt.Errorf("outbox count failed: %w", err))
	}
	if err := r.rollbackWith(ctx, scope, nil); err != nil {
		return 0, err
	}

	return count, nil
}

// Clear removes every row using a fresh scope.
func (r *Relay[Tx]) Clear(ctx context.Context) error {
	scope, err := r.openScope(ctx)
	if err != nil {
		return err
	}

	if err := r.storage.Clear(ctx, scope.Tx()); err != nil {
		return r.rollbackWith(ctx, scope, fmt.Errorf("outbox clear failed: %w", err))
	}
	if err := scope.Commit(ctx); err != nil {
		return r.rollbackWith(ctx, scope, fmt.Errorf("outbox commit failed: %w", err))
	}

	return nil
}

func (r *Relay[Tx]) runWorker(ctx context.Context, workerID int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.ProcessOnce(ctx)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.cfg.Logger.Error("outbox relay iteration failed", "worker", workerID, "err", err)
		case n > 0:
			r.cfg.Logger.Debug("outbox batch relayed", "worker", workerID, "count", n)
			r.maybeRecordPending(ctx)
		default:
			r.maybeRecordPending(ctx)
		}

		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (r *Relay[Tx]) processOnce(ctx context.Context) (int, error) {
	scope, err := r.openScope(ctx)
	if err != nil {
		r.reportFailure(ctx, nil, err)

		return 0, err
	}

	messages, err := r.storage.PeekLock(ctx, scope.Tx(), r.cfg.BatchSize)
	if err != nil {
		err = r.rollbackWith(ctx, scope, fmt.Errorf("outbox peek-lock failed: %w", err))
		r.reportFailure(ctx, nil, err)

		return 0, err
	}
	if len(messages) == 0 {
		return 0, r.rollbackWith(ctx, scope, nil)
	}

	start := time.Now()
	defer func() {
		r.cfg.Metrics.ObserveBatchDuration(time.Since(start))
	}()

	if err := r.handleBatch(ctx, messages); err != nil {
		err = r.rollbackWith(ctx, scope, err)
		r.cfg.Metrics.AddRedelivered(len(messages))
		r.reportFailure(ctx, messages, err)

		return 0, err
	}

	if err := scope.Commit(ctx); err != nil {
		err = r.rollbackWith(ctx, scope, fmt.Errorf("outbox commit failed: %w", err))
		r.cfg.Metrics.AddRedelivered(len(messages))
		r.reportFailure(ctx, messages, err)

		return 0, err
	}
	r.cfg.Metrics.AddProcessed(len(messages))

	return len(messages), nil
}

func (r *Relay[Tx]) handleBatch(ctx context.Context, messages []Message) error {
	for i := range messages {
		if err := r.handle(ctx, messages[i]); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			return &HandlerError{Index: i, Message: messages[i], Err: err}
		}
	}

	return nil
}

func (r *Relay[Tx]) handle(ctx context.Context, msg Message) (err error) {
	if r.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()

	return r.handler.Handle(ctx, msg)
}

func (r *Relay[Tx]) openScope(ctx context.Context) (Scope[Tx], error) {
	scope, err := r.scopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox open scope failed: %w", err)
	}
	if scope == nil {
		return nil, ErrNilScope
	}

	return scope, nil
}

// rollbackWith discards the scope and joins any rollback error with err.
// The rollback ignores cancellation of ctx so locks are released during shutdown.
func (r *Relay[Tx]) rollbackWith(ctx context.Context, scope Scope[Tx], err error) error {
	rollbackErr := scope.Rollback(context.WithoutCancel(ctx))
	if rollbackErr == nil {
		return err
	}

	return errors.Join(err, fmt.Errorf("outbox rollback failed: %w", rollbackErr))
}

func (r *Relay[Tx]) reportFailure(ctx context.Context, batch []Message, err error) {
	if ctx.Err() != nil {
		return
	}
	r.cfg.Metrics.AddFailures(1)
	if r.cfg.FailureHandler != nil {
		r.cfg.FailureHandler(ctx, batch, err)
	}
}

func (r *Relay[Tx]) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Relay[Tx]) maybeRecordPending(ctx context.Context) {
	if r.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := r.cfg.Clock.Now()
	r.pendingMu.Lock()
	nextAllowed := r.pendingAt.Add(r.cfg.PendingInterval)
	if !r.pendingAt.IsZero() && now.Before(nextAllowed) {
		r.pendingMu.Unlock()

		return
	}
	r.pendingAt = now
	r.pendingMu.Unlock()

	count, err := r.Count(ctx)
	if err != nil {
		r.cfg.Logger.Warn("outbox pending count failed", "err", err)

		return
	}

	r.cfg.Metrics.SetPending(count)
}
