// Package memory implements in-process stores used by tests and the
// database-less development mode. Semantics mirror the postgres package.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
)

// AggregateRepository implements stats.Repository in memory.
type AggregateRepository struct {
	mu         sync.RWMutex
	aggregates map[string]*stats.UserAggregate
	archive    map[string][]stats.GameSession
}

// NewAggregateRepository creates an empty repository.
func NewAggregateRepository() *AggregateRepository {
	return &AggregateRepository{
		aggregates: make(map[string]*stats.UserAggregate),
		archive:    make(map[string][]stats.GameSession),
	}
}

// Load implements stats.Repository.
func (r *AggregateRepository) Load(ctx context.Context, userID string) (*stats.UserAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.aggregates[userID]
	if !ok {
		return stats.NewUserAggregate(userID), nil
	}
	return agg.Clone(), nil
}

// Save implements stats.Repository. Clones on the way in so later caller
// mutations cannot corrupt the stored state mid-read.
func (r *AggregateRepository) Save(ctx context.Context, agg *stats.UserAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregates[agg.UserID] = agg.Clone()
	if last := agg.LastSession(); last != nil {
		history := r.archive[agg.UserID]
		if len(history) == 0 || history[0].ID != last.ID {
			r.archive[agg.UserID] = append([]stats.GameSession{last.Clone()}, history...)
		}
	}
	return nil
}

// Delete implements stats.Repository.
func (r *AggregateRepository) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.aggregates, userID)
	delete(r.archive, userID)
	return nil
}

// ActiveSince implements stats.Repository.
func (r *AggregateRepository) ActiveSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, agg := range r.aggregates {
		if agg.UpdatedAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// History returns archived sessions, newest first.
func (r *AggregateRepository) History(ctx context.Context, userID string, limit int) ([]stats.GameSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	history := r.archive[userID]
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	out := make([]stats.GameSession, len(history))
	for i, s := range history {
		out[i] = s.Clone()
	}
	return out, nil
}
