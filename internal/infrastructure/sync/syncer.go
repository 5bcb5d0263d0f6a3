// Package sync runs the per-user live sync loops. While a player is logged
// in, their loop periodically loads the aggregate, derives the dashboard
// metrics and publishes the resulting snapshot to the cache and the live
// feed. Loops are started on login and hard-cancelled on logout.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/observability"
	"github.com/mathrunner-hub/mathrunner-stats-hub/pkg/retry"
)

// ErrTooManyLoops is returned when the active loop cap is reached.
var ErrTooManyLoops = errors.New("too many active sync loops")

// Config holds syncer tuning.
type Config struct {
	// Interval between passes for one user.
	Interval time.Duration

	// PassTimeout bounds a single load+compute+publish pass.
	PassTimeout time.Duration

	// MaxActiveUsers caps concurrent loops.
	MaxActiveUsers int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Second,
		PassTimeout:    3 * time.Second,
		MaxActiveUsers: 1000,
	}
}

// Syncer owns the per-user loops.
type Syncer struct {
	repo   stats.Repository
	store  stats.SnapshotStore // nil when Redis is disabled
	config Config
	logger *slog.Logger

	mu         sync.Mutex
	loops      map[string]*loop
	closed     bool
	baseCtx    context.Context
	baseCancel context.CancelFunc

	onSnapshot []func(stats.Snapshot)
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a syncer. store may be nil.
func New(repo stats.Repository, store stats.SnapshotStore, config Config, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.PassTimeout <= 0 {
		config.PassTimeout = config.Interval
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Syncer{
		repo:       repo,
		store:      store,
		config:     config,
		logger:     logger,
		loops:      make(map[string]*loop),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// OnSnapshot registers a callback invoked after every published snapshot.
// The websocket hub hangs off this. Register before starting loops.
func (s *Syncer) OnSnapshot(fn func(stats.Snapshot)) {
	s.onSnapshot = append(s.onSnapshot, fn)
}

// Start launches the loop for a user. The first pass runs immediately, not
// one interval later. Starting an already-synced user restarts their loop,
// so there is never more than one timer per user.
func (s *Syncer) Start(userID string) error {
	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return errors.New("syncer is closed")
		}
		old, ok := s.loops[userID]
		if !ok {
			break
		}
		// The lock is dropped while waiting for the old loop, so a
		// concurrent Start can install a fresh loop for the same user
		// in the meantime. Re-check until the slot is actually free,
		// otherwise that loop would leak past Stop.
		delete(s.loops, userID)
		s.mu.Unlock()
		old.stop()
		s.mu.Lock()
	}
	if s.config.MaxActiveUsers > 0 && len(s.loops) >= s.config.MaxActiveUsers {
		s.mu.Unlock()
		return ErrTooManyLoops
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	l := &loop{cancel: cancel, done: make(chan struct{})}
	s.loops[userID] = l
	s.mu.Unlock()

	observability.SyncActiveLoops.Inc()
	go s.run(ctx, userID, l)
	return nil
}

// Stop hard-cancels the loop for a user. When Stop returns, no further pass
// for that user will run. Stopping an unknown user is a no-op.
func (s *Syncer) Stop(userID string) {
	s.mu.Lock()
	l, ok := s.loops[userID]
	if ok {
		delete(s.loops, userID)
	}
	s.mu.Unlock()
	if ok {
		l.stop()
	}
}

// IsActive reports whether a loop is running for the user.
func (s *Syncer) IsActive(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[userID]
	return ok
}

// ActiveCount returns the number of running loops.
func (s *Syncer) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

// StopAll cancels every loop and waits for them to exit.
func (s *Syncer) StopAll() {
	s.mu.Lock()
	s.closed = true
	loops := make([]*loop, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l)
	}
	s.loops = make(map[string]*loop)
	s.mu.Unlock()

	s.baseCancel()
	for _, l := range loops {
		<-l.done
	}
}

func (l *loop) stop() {
	l.cancel()
	<-l.done
}

func (s *Syncer) run(ctx context.Context, userID string, l *loop) {
	defer close(l.done)
	defer observability.SyncActiveLoops.Dec()

	// Immediate first pass so the dashboard is live right after login.
	s.pass(ctx, userID)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx, userID)
		}
	}
}

func (s *Syncer) pass(parent context.Context, userID string) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, s.config.PassTimeout)
	defer cancel()

	// Loads are retried; they are idempotent and a pass without data is a
	// pass wasted.
	agg, err := retry.DoWithData(ctx, func(ctx context.Context) (*stats.UserAggregate, error) {
		return s.repo.Load(ctx, userID)
	}, retry.WithMaxAttempts(2), retry.WithShouldRetry(shared.IsRetryable))
	if err != nil {
		if parent.Err() == nil {
			observability.SyncPasses.WithLabelValues("error").Inc()
			s.logger.Warn("sync pass failed",
				slog.String("user_id", userID), slog.Any("error", err))
		}
		return
	}

	snap := stats.BuildSnapshot(agg, time.Now())

	if s.store != nil {
		if err := s.store.PutSnapshot(ctx, userID, snap); err != nil {
			s.logger.Warn("snapshot cache write failed",
				slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	for _, fn := range s.onSnapshot {
		fn(snap)
	}
	observability.SyncPasses.WithLabelValues("ok").Inc()
}
