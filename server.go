package amcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server connects a ServerTransport to a ProtocolStrategy. Every session gets its own goroutine
// that feeds its lines to the strategy one at a time and writes the replies back, so a slow
// command only delays the session that sent it. Several servers, one per transport, may share a
// strategy.
type Server struct {
	transport ServerTransport
	strategy  *ProtocolStrategy

	sendTimeout time.Duration

	logger *slog.Logger

	onClientConnected    func(string, string)
	onClientDisconnected func(string)

	// sessionsMu orders sessionsWaitGroup.Add in Serve against closing done in Shutdown.
	sessionsMu        *sync.Mutex
	sessionsWaitGroup *sync.WaitGroup
	baseCtx           context.Context
	baseCancel        context.CancelFunc

	done chan struct{}
}

type serverSession struct {
	session  Session
	client   *ClientInfo
	strategy *ProtocolStrategy
	logger   *slog.Logger

	sendTimeout time.Duration
}

var defaultServerSendTimeout = 30 * time.Second

// NewServer creates a server that serves the sessions of transport with strategy.
func NewServer(transport ServerTransport, strategy *ProtocolStrategy, options ...ServerOption) Server {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := Server{
		transport:         transport,
		strategy:          strategy,
		logger:            slog.Default(),
		sessionsMu:        &sync.Mutex{},
		sessionsWaitGroup: &sync.WaitGroup{},
		baseCtx:           baseCtx,
		baseCancel:        baseCancel,
		done:              make(chan struct{}),
	}
	for _, opt := range options {
		opt(&s)
	}
	if s.sendTimeout == 0 {
		s.sendTimeout = defaultServerSendTimeout
	}
	return s
}

// WithServerSendTimeout sets the timeout for writing a reply to a client.
func WithServerSendTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.sendTimeout = timeout
	}
}

// WithServerOnClientConnected sets the callback invoked with the session ID and remote address of
// every new client.
func WithServerOnClientConnected(onClientConnected func(string, string)) ServerOption {
	return func(s *Server) {
		s.onClientConnected = onClientConnected
	}
}

// WithServerOnClientDisconnected sets the callback invoked with the session ID of every client
// that leaves.
func WithServerOnClientDisconnected(onClientDisconnected func(string)) ServerOption {
	return func(s *Server) {
		s.onClientDisconnected = onClientDisconnected
	}
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "server"),
		)
	}
}

// Serve accepts sessions from the transport until it is shut down.
//
// Serve blocks until the server is shut down.
func (s Server) Serve() {
	// This loop would break when the transport is closed.
	for sess := range s.transport.Sessions() {
		ss := serverSession{
			session:  sess,
			client:   NewClientInfo(sess.ID(), sess.RemoteAddr()),
			strategy: s.strategy,
			logger: s.logger.With(
				slog.String("sessionID", sess.ID()),
				slog.String("remoteAddr", sess.RemoteAddr()),
			),
			sendTimeout: s.sendTimeout,
		}

		s.sessionsMu.Lock()
		select {
		case <-s.done:
			s.sessionsMu.Unlock()
			s.logger.Debug("rejected session after shutdown", slog.String("sessionID", sess.ID()))
			sess.Stop()
			continue
		default:
		}
		s.sessionsWaitGroup.Add(1)
		s.sessionsMu.Unlock()

		go func() {
			defer s.sessionsWaitGroup.Done()

			if s.onClientConnected != nil {
				s.onClientConnected(ss.client.ID, ss.client.Address)
			}

			ss.start(s.baseCtx, s.done)

			if s.onClientDisconnected != nil {
				s.onClientDisconnected(ss.client.ID)
			}
		}()
	}
}

// Shutdown gracefully shuts down the server by stopping all sessions and the transport. In-flight
// commands are cancelled through their context.
func (s Server) Shutdown(ctx context.Context) error {
	// Signal the server to shutdown and terminates all sessions
	s.sessionsMu.Lock()
	close(s.done)
	s.sessionsMu.Unlock()

	// Wait for all sessions to finish
	waited := make(chan struct{})
	go func() {
		s.sessionsWaitGroup.Wait()
		close(waited)
	}()

	select {
	case <-ctx.Done():
		s.baseCancel()
		return fmt.Errorf("failed to wait for sessions: %w", ctx.Err())
	case <-waited:
	}
	s.baseCancel()

	// Close the transport so the Sessions loop in Serve breaks.
	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}

	return nil
}

func (s serverSession) start(baseCtx context.Context, done <-chan struct{}) {
	stopped := make(chan struct{})
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(stopped)
			s.session.Stop()
		})
	}

	// Stop the session when the server shuts down, so the Lines loop below exits.
	go func() {
		select {
		case <-done:
			stop()
		case <-stopped:
		}
	}()

	s.strategy.Connected(s.client)
	s.logger.Info("client connected")

	for line := range s.session.Lines() {
		if strings.EqualFold(strings.TrimSpace(line), "BYE") {
			s.logger.Info("client said goodbye")
			break
		}

		// The context belongs to the server, so a disconnect does not cancel a running command.
		replies := s.strategy.Parse(baseCtx, s.client, line)
		if len(replies) == 0 {
			continue
		}

		if err := s.send(replies); err != nil {
			s.logger.Warn("failed to send reply", slog.String("err", err.Error()))
			break
		}
	}

	s.strategy.Forget(s.client)
	s.logger.Info("client disconnected")
	stop()
}

func (s serverSession) send(replies []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	return s.session.Send(ctx, strings.Join(replies, "\r\n")+"\r\n")
}
