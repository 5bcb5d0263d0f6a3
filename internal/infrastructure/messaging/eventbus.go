// Package messaging implements the event bus that fans stats updates out to
// the live feed, the snapshot cache and background jobs. A single-instance
// deployment uses the in-memory bus; the Redis bus bridges instances.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// Bus dispatches domain events to registered handlers.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	async       bool
	workers     chan struct{}
	logger      *slog.Logger
	closed      bool
	wg          sync.WaitGroup

	published atomic.Int64
	failed    atomic.Int64
}

// BusConfig contains bus tuning.
type BusConfig struct {
	// Async dispatches each event on a bounded worker pool instead of the
	// publisher's goroutine. Ingestion must never block on a slow handler.
	Async bool

	// Workers is the worker pool size in async mode.
	Workers int

	Logger *slog.Logger
}

// DefaultBusConfig returns sensible defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{Async: true, Workers: 8}
}

// NewBus creates an in-memory event bus.
func NewBus(config BusConfig) *Bus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Workers <= 0 {
		config.Workers = 8
	}
	return &Bus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		async:    config.Async,
		workers:  make(chan struct{}, config.Workers),
		logger:   config.Logger,
	}
}

// Subscribe registers a handler for its declared event types.
func (b *Bus) Subscribe(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, et := range handler.EventTypes() {
		b.handlers[et] = append(b.handlers[et], handler)
	}
	return nil
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish implements shared.EventPublisher.
func (b *Bus) Publish(ctx context.Context, event shared.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	targets := make([]shared.EventHandler, 0,
		len(b.handlers[event.EventType()])+len(b.allHandlers))
	targets = append(targets, b.handlers[event.EventType()]...)
	targets = append(targets, b.allHandlers...)
	// Async dispatches are registered with the wait group before the lock
	// is released, otherwise a concurrent Close could pass wg.Wait between
	// the closed check and the dispatch.
	if b.async {
		b.wg.Add(len(targets))
	}
	b.mu.RUnlock()

	b.published.Add(1)

	for _, h := range targets {
		if b.async {
			b.dispatchAsync(h, event)
		} else if err := b.dispatch(ctx, h, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, h shared.EventHandler, event shared.Event) error {
	if err := h.Handle(ctx, event); err != nil {
		b.failed.Add(1)
		b.logger.Error("event handler failed",
			slog.String("event_type", string(event.EventType())),
			slog.String("aggregate_id", event.AggregateID()),
			slog.Any("error", err))
		return err
	}
	return nil
}

// dispatchAsync hands the event to the worker pool. The caller has already
// registered the dispatch with the wait group. The pool token is acquired on
// the spawned goroutine: concurrency stays capped at Workers, but a saturated
// pool queues the dispatch instead of blocking the publisher.
func (b *Bus) dispatchAsync(h shared.EventHandler, event shared.Event) {
	go func() {
		defer b.wg.Done()
		b.workers <- struct{}{}
		defer func() { <-b.workers }()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = b.dispatch(ctx, h, event)
	}()
}

// Close waits for in-flight async dispatches and rejects further publishes.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Stats returns published/failed counters.
func (b *Bus) Stats() (published, failed int64) {
	return b.published.Load(), b.failed.Load()
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// Bridges instances: publishes envelopes on a pub/sub channel and re-emits
// received envelopes on the local in-memory bus.
// ══════════════════════════════════════════════════════════════════════════════

// redisChannel is the pub/sub channel carrying event envelopes.
const redisChannel = "mathrunner:events"

// Envelope is the wire form of an event on the Redis channel.
// It also implements shared.Event so remote events can be re-dispatched on
// the local bus without knowing the concrete event type.
type Envelope struct {
	Type        shared.EventType       `json:"type"`
	AggregateId string                 `json:"aggregate_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"payload"`
	Source      string                 `json:"source"`
}

// EventType implements shared.Event.
func (e *Envelope) EventType() shared.EventType { return e.Type }

// OccurredAt implements shared.Event.
func (e *Envelope) OccurredAt() time.Time { return e.Timestamp }

// AggregateID implements shared.Event.
func (e *Envelope) AggregateID() string { return e.AggregateId }

// Payload implements shared.Event.
func (e *Envelope) Payload() map[string]interface{} { return e.Data }

// RedisBus publishes events across instances via Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	local  *Bus
	source string
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus creates a Redis-backed bus that also dispatches locally.
func NewRedisBus(client *redis.Client, local *Bus, instanceID string, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client: client,
		local:  local,
		source: instanceID,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Publish implements shared.EventPublisher: local dispatch plus fan-out.
func (rb *RedisBus) Publish(ctx context.Context, event shared.Event) error {
	if err := rb.local.Publish(ctx, event); err != nil {
		return err
	}

	env := Envelope{
		Type:        event.EventType(),
		AggregateId: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Data:        event.Payload(),
		Source:      rb.source,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := rb.client.Publish(ctx, redisChannel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Start subscribes to the channel and re-emits remote events locally until
// the context is cancelled.
func (rb *RedisBus) Start(ctx context.Context) {
	ctx, rb.cancel = context.WithCancel(ctx)
	sub := rb.client.Subscribe(ctx, redisChannel)

	go func() {
		defer close(rb.done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				rb.handleMessage(ctx, msg.Payload)
			}
		}
	}()
}

func (rb *RedisBus) handleMessage(ctx context.Context, payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		rb.logger.Warn("dropping malformed event envelope", slog.Any("error", err))
		return
	}
	// Skip events this instance already dispatched locally.
	if env.Source == rb.source {
		return
	}
	if err := rb.local.Publish(ctx, &env); err != nil {
		rb.logger.Error("local re-dispatch failed", slog.Any("error", err))
	}
}

// Stop cancels the subscription and waits for the reader to exit.
func (rb *RedisBus) Stop() {
	if rb.cancel != nil {
		rb.cancel()
		<-rb.done
	}
}
