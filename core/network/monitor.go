package network

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pyropy/dsn/core/model"
)

var (
	ErrInvalidRange = errors.New("invalid range: min is greater than max")
	ErrMonitorFault = errors.New("network monitor run failed")
)

type Pinger interface {
	Ping(ctx context.Context, contact model.Contact) error
}

type Replicator interface {
	Replicate(ctx context.Context, contact model.Contact) error
}

type ContactDirectory interface {
	LeastSeen(ctx context.Context, n int) ([]model.Contact, error)
	RecordPing(ctx context.Context, id string, ts time.Time) error
	Shift(ctx context.Context, id string) (model.Contact, error)
	Subscribe(h EventHandler) func()
}

type MonitorConfig struct {
	SampleSize  int
	Threshold   time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
	PingTimeout time.Duration
}

// Monitor periodically pings the least recently seen farmers and replicates
// the shards of farmers that stayed silent past the threshold.
type Monitor struct {
	cfg        MonitorConfig
	directory  ContactDirectory
	network    Pinger
	replicator Replicator
	log        *zap.SugaredLogger
	now        func() time.Time

	replicating atomic.Int32
}

func NewMonitor(cfg MonitorConfig, directory ContactDirectory, network Pinger, replicator Replicator, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		cfg:        cfg,
		directory:  directory,
		network:    network,
		replicator: replicator,
		log:        log,
		now:        time.Now,
	}
}

// Start runs the monitor until ctx is cancelled. Cancellation is observed
// between runs only, so a replication in flight always completes first.
func (m *Monitor) Start(ctx context.Context) error {
	if _, err := randomTime(m.cfg.MinInterval, m.cfg.MaxInterval); err != nil {
		return err
	}

	unsubscribe := m.directory.Subscribe(m.onContactEvent)
	defer unsubscribe()

	m.log.Infow("monitor", "status", "started", "sampleSize", m.cfg.SampleSize, "threshold", m.cfg.Threshold)
	for ctx.Err() == nil {
		if err := m.safeRun(ctx); err != nil {
			if errors.Is(err, ErrMonitorFault) {
				return err
			}
			m.log.Errorw("monitor", "status", "run failed", "error", err)
		}

		if err := m.wait(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	}

	m.log.Infow("monitor", "status", "stopped")
	return nil
}

// Replicating reports how many replications are in flight.
func (m *Monitor) Replicating() int {
	return int(m.replicating.Load())
}

func (m *Monitor) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("monitor", "status", "run panicked", "panic", r, zap.StackSkip("stack", 1))
			err = fmt.Errorf("%w: %v", ErrMonitorFault, r)
		}
	}()

	return m.Run(context.WithoutCancel(ctx))
}

// Run pings a sample of the least recently seen contacts and replicates the
// ones that are unreachable and unseen for longer than the threshold.
func (m *Monitor) Run(ctx context.Context) error {
	contacts, err := m.directory.LeastSeen(ctx, m.cfg.SampleSize)
	if err != nil {
		return err
	}

	for _, contact := range contacts {
		now := m.now()
		if err := m.directory.RecordPing(ctx, contact.ID, now); err != nil {
			m.log.Warnw("monitor", "status", "record ping failed", "contact", contact.ID, "error", err)
		}

		stale := contact.UnseenFor(now) > m.cfg.Threshold
		if err := m.ping(ctx, contact); err != nil {
			m.log.Warnw("monitor", "status", "ping failed", "contact", contact.ID, "address", contact.Address, "error", err)
			if stale {
				m.replicate(ctx, contact)
			}
			continue
		}

		if _, err := m.directory.Shift(ctx, contact.ID); err != nil {
			m.log.Warnw("monitor", "status", "shift failed", "contact", contact.ID, "error", err)
		}
	}

	return nil
}

func (m *Monitor) ping(ctx context.Context, contact model.Contact) error {
	if m.cfg.PingTimeout <= 0 {
		return m.network.Ping(ctx, contact)
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.PingTimeout)
	defer cancel()

	return m.network.Ping(pctx, contact)
}

func (m *Monitor) replicate(ctx context.Context, contact model.Contact) {
	m.replicating.Add(1)
	defer m.replicating.Add(-1)

	m.log.Infow("replication", "status", "replicating contact", "contact", contact.ID, "lastSeen", contact.LastSeen)
	if err := m.replicator.Replicate(ctx, contact); err != nil {
		m.log.Errorw("replication", "status", "failed to create mirrors", "contact", contact.ID, "error", err)
	}
}

// wait sleeps a random interval between runs.
func (m *Monitor) wait(ctx context.Context) error {
	d, err := randomTime(m.cfg.MinInterval, m.cfg.MaxInterval)
	if err != nil {
		return err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) onContactEvent(e Event) {
	m.log.Debugw("monitor", "event", e.Type, "contact", e.Contact.ID, "lastSeen", e.Contact.LastSeen)
}

// randomTime returns a uniformly distributed duration in [min, max].
func randomTime(min, max time.Duration) (time.Duration, error) {
	if min > max {
		return 0, fmt.Errorf("%w: %s > %s", ErrInvalidRange, min, max)
	}

	return min + rand.N(max-min+1), nil
}
