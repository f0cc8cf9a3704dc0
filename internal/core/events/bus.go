package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

var ErrBusBusy = errors.New("events: too many handlers in flight")

type Event interface {
	EventType() string
	EventID() string
	OccurredAt() time.Time
	Payload() interface{}
}

type BaseEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) Payload() interface{}  { return e.Data }

type Handler func(ctx context.Context, event Event) error

// Publisher is what the settlement code depends on to emit events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

const defaultMaxInFlight = 64

// EventBus fans events out to subscribers. Asynchronous deliveries share a
// fixed number of slots so a slow subscriber (Kafka, processor balance calls)
// cannot pile up goroutines.
type EventBus struct {
	handlers map[string][]Handler
	logger   *slog.Logger
	mu       sync.RWMutex

	slots    chan struct{}
	inFlight sync.WaitGroup
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return NewEventBusWithLimit(logger, defaultMaxInFlight)
}

func NewEventBusWithLimit(logger *slog.Logger, maxInFlight int) *EventBus {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &EventBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
		slots:    make(chan struct{}, maxInFlight),
	}
}

func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Info("event handler registered",
		"event_type", eventType,
		"total_handlers", len(eb.handlers[eventType]))
}

func (eb *EventBus) handlersFor(event Event) []Handler {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.handlers[event.EventType()]
}

// Publish hands the event to every subscriber in the background. Handlers
// see a context detached from the caller's request. When all slots stay
// taken until ctx ends, the remaining deliveries are dropped and ErrBusBusy
// is returned.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	handlers := eb.handlersFor(event)
	if len(handlers) == 0 {
		eb.logger.Debug("no handlers for event type", "event_type", event.EventType())
		return nil
	}

	eb.logger.Debug("publishing event",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"handlers_count", len(handlers))

	detached := context.WithoutCancel(ctx)
	for i, handler := range handlers {
		select {
		case eb.slots <- struct{}{}:
		case <-ctx.Done():
			eb.logger.Error("event dropped, bus saturated",
				"event_type", event.EventType(),
				"event_id", event.EventID(),
				"undelivered", len(handlers)-i)
			return ErrBusBusy
		}

		eb.inFlight.Add(1)
		go func(h Handler) {
			defer func() {
				<-eb.slots
				eb.inFlight.Done()
			}()
			if err := eb.call(detached, h, event); err != nil {
				eb.logger.Error("event handler failed",
					"event_type", event.EventType(),
					"event_id", event.EventID(),
					"error", err)
			}
		}(handler)
	}

	return nil
}

// PublishSync runs subscribers in order on the caller's goroutine and stops
// at the first error.
func (eb *EventBus) PublishSync(ctx context.Context, event Event) error {
	handlers := eb.handlersFor(event)
	if len(handlers) == 0 {
		eb.logger.Debug("no handlers for event type", "event_type", event.EventType())
		return nil
	}

	for _, handler := range handlers {
		if err := eb.call(ctx, handler, event); err != nil {
			eb.logger.Error("event handler failed",
				"event_type", event.EventType(),
				"event_id", event.EventID(),
				"error", err)
			return fmt.Errorf("handler failed for event %s: %w", event.EventType(), err)
		}
	}

	return nil
}

func (eb *EventBus) call(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panicked",
				"event_type", event.EventType(),
				"stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}

// Drain waits for background deliveries to finish or ctx to end.
func (eb *EventBus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		eb.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
