package amcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/tmaxmax/go-sse"
)

// EventKind classifies monitor events. It is used as the SSE event type.
type EventKind string

// Event is a protocol event published to the Monitor.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId,omitempty"`
	Address   string    `json:"address,omitempty"`
	Command   string    `json:"command,omitempty"`
	// Channel is 1-based, zero when the event is not about a channel.
	Channel int `json:"channel,omitempty"`
	Code    int `json:"code,omitempty"`
}

// MonitorOption represents the options for the Monitor.
type MonitorOption func(*Monitor)

// Monitor fans protocol events out to HTTP clients as Server-Sent Events. It implements
// EventSink. Publishing never blocks command execution: events are dropped for subscribers that
// cannot keep up.
//
// Instances should be created using NewMonitor and shut down using Shutdown.
type Monitor struct {
	logger     *slog.Logger
	bufferSize int

	events      chan Event
	subscribers chan monitorSubscriber
	removed     chan string

	done   chan struct{}
	closed chan struct{}
}

type monitorSubscriber struct {
	id     string
	kinds  map[EventKind]bool
	events chan Event
}

// Event kinds published by the server and the protocol strategy. Subscribers filter on them with
// the kinds query parameter.
const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventCommand      EventKind = "command"
	EventLockAcquired EventKind = "lock_acquired"
	EventLockReleased EventKind = "lock_released"
	EventLockCleared  EventKind = "lock_cleared"
)

const defaultMonitorBufferSize = 64

// NewMonitor creates a Monitor and starts its distribution loop.
func NewMonitor(options ...MonitorOption) Monitor {
	m := Monitor{
		logger:      slog.Default(),
		subscribers: make(chan monitorSubscriber),
		removed:     make(chan string),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(&m)
	}
	if m.bufferSize <= 0 {
		m.bufferSize = defaultMonitorBufferSize
	}
	m.events = make(chan Event, m.bufferSize)

	go m.run()

	return m
}

// WithMonitorBufferSize sets how many events are buffered per subscriber and for publishing.
func WithMonitorBufferSize(size int) MonitorOption {
	return func(m *Monitor) {
		m.bufferSize = size
	}
}

// WithMonitorLogger sets the logger for the monitor.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "monitor"),
		)
	}
}

// Publish stamps ev with a ULID and the current time and queues it for distribution.
func (m Monitor) Publish(ev Event) {
	ev.ID = ulid.Make().String()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	select {
	case <-m.done:
	case m.events <- ev:
	default:
		m.logger.Warn("monitor queue is full, dropping event", slog.String("kind", string(ev.Kind)))
	}
}

// HandleSSE returns an http.Handler streaming events over SSE. The optional "kinds" query
// parameter restricts the stream to a comma separated list of event kinds.
func (m Monitor) HandleSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			nErr := fmt.Errorf("failed to upgrade session: %w", err)
			m.logger.Error("failed to upgrade session", slog.String("err", nErr.Error()))
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}

		sub := monitorSubscriber{
			id:     uuid.New().String(),
			kinds:  parseKinds(r.URL.Query().Get("kinds")),
			events: make(chan Event, m.bufferSize),
		}

		// Let the client know the stream is established before the first event arrives.
		hello := sse.Message{Type: sse.Type("subscribed")}
		hello.AppendData(sub.id)
		if err := sess.Send(&hello); err != nil {
			m.logger.Error("failed to write SSE greeting", slog.String("err", err.Error()))
			return
		}
		if err := sess.Flush(); err != nil {
			m.logger.Error("failed to flush SSE", slog.String("err", err.Error()))
			return
		}

		select {
		case <-m.done:
			return
		case m.subscribers <- sub:
		}

		defer func() {
			select {
			case m.removed <- sub.id:
			case <-m.done:
			}
		}()

		for {
			select {
			case <-m.done:
				return
			case <-r.Context().Done():
				return
			case ev := <-sub.events:
				if err := m.send(sess, ev); err != nil {
					m.logger.Warn("failed to send event", slog.String("err", err.Error()),
						slog.String("subscriberID", sub.id))
					return
				}
			}
		}
	})
}

// Shutdown stops the distribution loop and disconnects every subscriber.
func (m Monitor) Shutdown(ctx context.Context) error {
	close(m.done)

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close monitor: %w", ctx.Err())
	case <-m.closed:
	}
	return nil
}

func (m Monitor) run() {
	defer close(m.closed)

	subs := make(map[string]monitorSubscriber)

	for {
		select {
		case <-m.done:
			return
		case sub := <-m.subscribers:
			subs[sub.id] = sub
		case id := <-m.removed:
			delete(subs, id)
		case ev := <-m.events:
			for _, sub := range subs {
				if len(sub.kinds) > 0 && !sub.kinds[ev.Kind] {
					continue
				}
				select {
				case sub.events <- ev:
				default:
					m.logger.Warn("subscriber is too slow, dropping event", slog.String("subscriberID", sub.id))
				}
			}
		}
	}
}

func (m Monitor) send(sess *sse.Session, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := sse.Message{
		ID:   sse.ID(ev.ID),
		Type: sse.Type(string(ev.Kind)),
	}
	msg.AppendData(string(data))

	if err := sess.Send(&msg); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := sess.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	return nil
}

func parseKinds(s string) map[EventKind]bool {
	if s == "" {
		return nil
	}
	kinds := make(map[EventKind]bool)
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[EventKind(strings.ToLower(k))] = true
		}
	}
	return kinds
}
