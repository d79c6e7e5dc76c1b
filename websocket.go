package amcp

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketServer carries AMCP over websocket connections, for browser based controllers. A text
// frame may hold one or more command lines; every reply block is sent as one text frame.
//
// Instances should be created using NewWebSocketServer. Mount HandleWebSocket on any HTTP server.
type WebSocketServer struct {
	upgrader *websocket.Upgrader
	logger   *slog.Logger

	sessions chan wsSession

	done   chan struct{}
	closed chan struct{}
}

// WebSocketOption represents the options for the WebSocketServer.
type WebSocketOption func(*WebSocketServer)

type wsSession struct {
	id     string
	addr   string
	conn   *websocket.Conn
	logger *slog.Logger

	writeLock *sync.Mutex
	stopOnce  *sync.Once
	done      chan struct{}
}

const wsCloseTimeout = time.Second

// NewWebSocketServer creates a WebSocketServer. By default only same-origin requests are accepted.
func NewWebSocketServer(options ...WebSocketOption) WebSocketServer {
	w := WebSocketServer{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:   slog.Default(),
		sessions: make(chan wsSession),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(&w)
	}
	return w
}

// WithWebSocketCheckOrigin sets the origin check of the upgrader.
func WithWebSocketCheckOrigin(check func(r *http.Request) bool) WebSocketOption {
	return func(w *WebSocketServer) {
		w.upgrader.CheckOrigin = check
	}
}

// WithWebSocketLogger sets the logger for the websocket transport.
func WithWebSocketLogger(logger *slog.Logger) WebSocketOption {
	return func(w *WebSocketServer) {
		w.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "websocket"),
		)
	}
}

// HandleWebSocket returns an http.Handler that upgrades the request and hands the connection to the
// Sessions loop. The handler returns when the session stops.
func (w WebSocketServer) HandleWebSocket() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := w.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			// The upgrader already replied with an HTTP error.
			w.logger.Warn("failed to upgrade connection", slog.String("err", err.Error()))
			return
		}

		addr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		id := uuid.New().String()
		sess := wsSession{
			id:        id,
			addr:      addr,
			conn:      conn,
			logger:    w.logger.With(slog.String("sessionID", id)),
			writeLock: &sync.Mutex{},
			stopOnce:  &sync.Once{},
			done:      make(chan struct{}),
		}

		select {
		case <-w.done:
			sess.Stop()
			return
		case w.sessions <- sess:
		}

		// Block until the session is stopped, so the connection is left open.
		<-sess.done
	})
}

// Sessions implements the ServerTransport interface by yielding the sessions upgraded by
// HandleWebSocket until Shutdown is called.
func (w WebSocketServer) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(w.closed)

		for {
			select {
			case <-w.done:
				return
			case sess := <-w.sessions:
				if !yield(sess) {
					sess.Stop()
					return
				}
			}
		}
	}
}

// Shutdown implements the ServerTransport interface.
func (w WebSocketServer) Shutdown(ctx context.Context) error {
	close(w.done)

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close websocket server: %w", ctx.Err())
	case <-w.closed:
	}
	return nil
}

func (s wsSession) ID() string { return s.id }

func (s wsSession) RemoteAddr() string { return s.addr }

func (s wsSession) Send(ctx context.Context, reply string) error {
	select {
	case <-s.done:
		s.logger.Warn("session is closed while sending reply", slog.String("reply", reply))
		return ErrSessionClosed
	default:
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

func (s wsSession) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			msgType, data, err := s.conn.ReadMessage()
			if err != nil {
				select {
				case <-s.done:
				default:
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
						!errors.Is(err, net.ErrClosed) {
						s.logger.Warn("failed to read message", slog.String("err", err.Error()))
					}
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}

			for _, line := range strings.Split(string(data), "\n") {
				if line = strings.TrimRight(line, "\r"); line == "" {
					continue
				}
				if !yield(line) {
					return
				}
			}
		}
	}
}

func (s wsSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)

		s.writeLock.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseTimeout)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug("failed to write close message", slog.String("err", err.Error()))
		}
		s.writeLock.Unlock()

		if err := s.conn.Close(); err != nil {
			s.logger.Warn("failed to close connection", slog.String("err", err.Error()))
		}
	})
}
