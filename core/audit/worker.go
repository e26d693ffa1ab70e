package audit

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/core/queue"
)

type State int32

const (
	StateStarting State = iota
	StateRecovering
	StateDispatching
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRecovering:
		return "RECOVERING"
	case StateDispatching:
		return "DISPATCHING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Auditor verifies an item and commits its result.
type Auditor interface {
	Verify(ctx context.Context, item model.QueueItem) (bool, error)
	Commit(ctx context.Context, item model.QueueItem, result bool, reason string) error
}

type WorkerConfig struct {
	PollInterval time.Duration
}

// Worker recovers items left in its pending partition by a previous process
// and then moves items from ready through pending into final, one at a time.
type Worker struct {
	cfg     WorkerConfig
	store   queue.Store
	auditor Auditor
	log     *zap.SugaredLogger

	state    atomic.Int32
	idleStop atomic.Bool // stopped before Run
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewWorker(cfg WorkerConfig, store queue.Store, auditor Auditor, log *zap.SugaredLogger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &Worker{
		cfg:     cfg,
		store:   store,
		auditor: auditor,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.log.Infow("worker", "state", s.String())
}

// Run recovers stale pending items and then dispatches until ctx is cancelled
// or Stop is called. A *queue.StoreError halts the worker and is returned.
// Run on a worker stopped before it started returns nil without doing work.
func (w *Worker) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateStarting), int32(StateRecovering)) {
		if w.idleStop.Load() {
			return nil
		}
		return ErrWorkerStarted
	}
	w.log.Infow("worker", "state", StateRecovering.String())

	defer close(w.done)
	defer w.setState(StateStopped)

	recovered, err := w.flushStalePendingQueue(ctx)
	if err != nil {
		w.log.Errorw("worker", "status", "recovery failed", "error", err)
		return err
	}

	if !recovered {
		w.setState(StateStopping)
		return nil
	}

	w.setState(StateDispatching)
	if err := w.initDispatchQueue(ctx); err != nil {
		w.log.Errorw("worker", "status", "dispatch halted", "error", err)
		return err
	}

	return nil
}

// Stop asks the worker to finish its in-flight item and waits until it has stopped.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })

	if w.state.CompareAndSwap(int32(StateStarting), int32(StateStopped)) {
		w.idleStop.Store(true)
		w.log.Infow("worker", "state", StateStopped.String(), "status", "stopped before start")
		return
	}
	if w.idleStop.Load() {
		return
	}

	<-w.done
}

func (w *Worker) stopRequested(ctx context.Context) bool {
	select {
	case <-w.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (w *Worker) pendingQueue(ctx context.Context) iter.Seq2[model.QueueItem, error] {
	return w.store.PeekAll(ctx, queue.Pending)
}

// flushStalePendingQueue verifies and commits every item a previous process
// left in pending, then empties pending. It reports false when a stop was
// requested before the pass finished; the remaining items stay in pending.
func (w *Worker) flushStalePendingQueue(ctx context.Context) (bool, error) {
	work := context.WithoutCancel(ctx)

	flushed := 0
	for item, err := range w.pendingQueue(work) {
		if err != nil {
			return false, err
		}

		if w.stopRequested(ctx) {
			w.log.Infow("worker", "status", "recovery interrupted", "flushed", flushed)
			return false, nil
		}

		if err := w.audit(work, item); err != nil {
			return false, err
		}
		flushed++
	}

	if err := w.store.Clear(work, queue.Pending); err != nil {
		return false, err
	}

	w.log.Infow("worker", "status", "recovered stale pending items", "count", flushed)
	return true, nil
}

func (w *Worker) initDispatchQueue(ctx context.Context) error {
	work := context.WithoutCancel(ctx)

	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()

	for {
		if w.stopRequested(ctx) {
			w.setState(StateStopping)
			return nil
		}

		item, err := w.store.Move(work, queue.Ready, queue.Pending)
		if errors.Is(err, queue.ErrQueueEmpty) {
			timer.Reset(w.cfg.PollInterval)
			select {
			case <-timer.C:
			case <-w.stop:
			case <-ctx.Done():
			}
			continue
		}
		if err != nil {
			return err
		}

		if err := w.audit(work, item); err != nil {
			return err
		}

		if err := w.store.Remove(work, queue.Pending, item); err != nil {
			return err
		}
	}
}

// audit runs the verify and commit pair for one item.
func (w *Worker) audit(ctx context.Context, item model.QueueItem) error {
	result, err := w.auditor.Verify(ctx, item)

	reason := ""
	var verr *VerificationError
	switch {
	case errors.As(err, &verr):
		w.log.Warnw("audit", "status", "verification failed", "id", item.ID, "farmer", item.Farmer, "error", err)
		result = false
		reason = verr.Err.Error()
	case err != nil:
		return err
	case !result:
		reason = "proof does not match audit tree"
	}

	return w.auditor.Commit(ctx, item, result, reason)
}
