// Package events emits structured phase and task lifecycle events to the
// observability collaborator. Emission is fire-and-forget: the orchestration
// pipeline never blocks on, awaits, or observes the outcome of an event.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	PhaseStart    EventType = "phase_start"
	PhaseComplete EventType = "phase_complete"
	TaskStart     EventType = "task_start"
	TaskComplete  EventType = "task_complete"
	TaskError     EventType = "task_error"
	RunError      EventType = "error"
)

// Event is one diagnostic record. Consumed purely for diagnostics; it never
// affects control flow.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"runId"`
	Phase     string         `json:"phase"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink receives events. Implementations must tolerate bursts; a failed write
// is logged and dropped, never retried.
type Sink interface {
	Write(ctx context.Context, ev Event) error
	Close() error
}

// Emitter accepts events for asynchronous delivery.
type Emitter interface {
	Emit(ev Event)
	Close()
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
func (NopEmitter) Close()     {}

// AsyncEmitter buffers events on a channel and forwards them to its sinks
// from a single background goroutine. When the buffer is full the event is
// dropped; emission never blocks the caller.
type AsyncEmitter struct {
	ch        chan Event
	sinks     []Sink
	logger    *zap.Logger
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewAsyncEmitter creates and starts an emitter. A bufferSize of 0 defaults
// to 256.
func NewAsyncEmitter(logger *zap.Logger, bufferSize int, sinks ...Sink) *AsyncEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	e := &AsyncEmitter{
		ch:     make(chan Event, bufferSize),
		sinks:  sinks,
		logger: logger.With(zap.String("component", "event_emitter")),
		done:   make(chan struct{}),
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

// Emit enqueues an event, stamping ID and timestamp when absent. Dropped
// silently when the buffer is full or the emitter is closed.
func (e *AsyncEmitter) Emit(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case e.ch <- ev:
	case <-e.done:
	default:
		e.logger.Debug("event buffer full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("run_id", ev.RunID),
		)
	}
}

func (e *AsyncEmitter) loop() {
	defer e.wg.Done()
	for {
		select {
		case ev := <-e.ch:
			e.deliver(ev)
		case <-e.done:
			// Drain what is already buffered before exiting.
			for {
				select {
				case ev := <-e.ch:
					e.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *AsyncEmitter) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sink := range e.sinks {
		if err := sink.Write(ctx, ev); err != nil {
			e.logger.Debug("event sink write failed",
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

// Close stops the delivery loop after draining buffered events and closes
// all sinks.
func (e *AsyncEmitter) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		for _, sink := range e.sinks {
			if err := sink.Close(); err != nil {
				e.logger.Debug("event sink close failed", zap.Error(err))
			}
		}
	})
}

// LogSink writes events to the logger at debug level. Useful as a default
// sink when no collector endpoint is configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Write(_ context.Context, ev Event) error {
	s.Logger.Debug("event",
		zap.String("type", string(ev.Type)),
		zap.String("run_id", ev.RunID),
		zap.String("phase", ev.Phase),
		zap.Any("payload", ev.Payload),
	)
	return nil
}

func (s LogSink) Close() error { return nil }
