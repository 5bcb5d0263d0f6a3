package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/persistence/memory"
)

type countingStore struct {
	mu    sync.Mutex
	puts  map[string]int
	snaps map[string]stats.Snapshot
}

func newCountingStore() *countingStore {
	return &countingStore{puts: make(map[string]int), snaps: make(map[string]stats.Snapshot)}
}

func (s *countingStore) PutSnapshot(ctx context.Context, userID string, snap stats.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts[userID]++
	s.snaps[userID] = snap
	return nil
}

func (s *countingStore) GetSnapshot(ctx context.Context, userID string) (stats.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[userID]
	return snap, ok, nil
}

func (s *countingStore) InvalidateSnapshot(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, userID)
	return nil
}

func (s *countingStore) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[userID]
}

func newTestSyncer(store stats.SnapshotStore, interval time.Duration) *Syncer {
	repo := memory.NewAggregateRepository()
	return New(repo, store, Config{Interval: interval, PassTimeout: time.Second}, nil)
}

func TestSyncer_ImmediateFirstPass(t *testing.T) {
	store := newCountingStore()
	s := newTestSyncer(store, time.Hour)
	defer s.StopAll()

	assert.NoError(t, s.Start("user1"))

	// Only the immediate pass can have run; the interval is one hour.
	assert.Eventually(t, func() bool { return store.count("user1") == 1 },
		time.Second, 5*time.Millisecond)
}

func TestSyncer_StopCancelsHard(t *testing.T) {
	store := newCountingStore()
	s := newTestSyncer(store, 50*time.Millisecond)
	defer s.StopAll()

	assert.NoError(t, s.Start("user1"))
	time.Sleep(175 * time.Millisecond)
	s.Stop("user1")

	passes := store.count("user1")
	// Immediate pass plus roughly three ticks.
	assert.GreaterOrEqual(t, passes, 3)
	assert.LessOrEqual(t, passes, 5)

	// No further passes after Stop returns.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, passes, store.count("user1"))
	assert.False(t, s.IsActive("user1"))
}

func TestSyncer_RestartKeepsSingleLoop(t *testing.T) {
	store := newCountingStore()
	s := newTestSyncer(store, 40*time.Millisecond)
	defer s.StopAll()

	assert.NoError(t, s.Start("user1"))
	assert.NoError(t, s.Start("user1"))
	assert.NoError(t, s.Start("user1"))

	assert.Equal(t, 1, s.ActiveCount())

	// With a single 40ms loop, 130ms allows at most ~4 ticks plus the
	// restart passes; duplicated timers would roughly triple that.
	time.Sleep(130 * time.Millisecond)
	s.Stop("user1")
	assert.LessOrEqual(t, store.count("user1"), 9)
}

// gatedStore blocks every snapshot write until the gate is opened, holding
// sync passes in flight.
type gatedStore struct {
	*countingStore
	gate    chan struct{}
	arrived chan struct{}
}

func (s *gatedStore) PutSnapshot(ctx context.Context, userID string, snap stats.Snapshot) error {
	select {
	case s.arrived <- struct{}{}:
	default:
	}
	<-s.gate
	return s.countingStore.PutSnapshot(ctx, userID, snap)
}

func TestSyncer_ConcurrentRestartNoLeakedLoop(t *testing.T) {
	store := &gatedStore{
		countingStore: newCountingStore(),
		gate:          make(chan struct{}),
		arrived:       make(chan struct{}, 1),
	}
	repo := memory.NewAggregateRepository()
	s := New(repo, store, Config{Interval: 25 * time.Millisecond, PassTimeout: 5 * time.Second}, nil)
	defer s.StopAll()

	// The first loop's immediate pass blocks on the gate. Wait for it to
	// arrive there before racing a restart against it; otherwise the
	// restart's cancel can win and the pass never reaches the gate.
	assert.NoError(t, s.Start("user1"))
	<-store.arrived

	// This restart blocks waiting for the first loop. While it waits it
	// holds no lock, leaving the slot open for the third Start below.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Start("user1"))
	}()
	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, s.Start("user1"))

	close(store.gate)
	wg.Wait()

	assert.Equal(t, 1, s.ActiveCount())

	s.Stop("user1")
	passes := store.count("user1")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, passes, store.count("user1"), "no pass may run after Stop returns")
	assert.False(t, s.IsActive("user1"))
}

func TestSyncer_StopAll(t *testing.T) {
	store := newCountingStore()
	s := newTestSyncer(store, 30*time.Millisecond)

	assert.NoError(t, s.Start("user1"))
	assert.NoError(t, s.Start("user2"))
	assert.Equal(t, 2, s.ActiveCount())

	s.StopAll()
	assert.Equal(t, 0, s.ActiveCount())

	counts := store.count("user1") + store.count("user2")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, counts, store.count("user1")+store.count("user2"))

	assert.Error(t, s.Start("user3"), "a closed syncer accepts no loops")
}

func TestSyncer_MaxActiveUsers(t *testing.T) {
	store := newCountingStore()
	repo := memory.NewAggregateRepository()
	s := New(repo, store, Config{Interval: time.Hour, PassTimeout: time.Second, MaxActiveUsers: 2}, nil)
	defer s.StopAll()

	assert.NoError(t, s.Start("user1"))
	assert.NoError(t, s.Start("user2"))
	assert.ErrorIs(t, s.Start("user3"), ErrTooManyLoops)
}

func TestSyncer_SnapshotCallback(t *testing.T) {
	store := newCountingStore()
	s := newTestSyncer(store, time.Hour)
	defer s.StopAll()

	var mu sync.Mutex
	var got []stats.Snapshot
	s.OnSnapshot(func(snap stats.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, snap)
	})

	assert.NoError(t, s.Start("user1"))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].UserID == "user1"
	}, time.Second, 5*time.Millisecond)
}
