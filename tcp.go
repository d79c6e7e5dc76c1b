package amcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TCPServer is the primary AMCP transport. Every accepted connection becomes a Session whose
// lines are terminated by "\n", with an optional preceding "\r".
//
// Instances should be created using ListenTCP or NewTCPServer.
type TCPServer struct {
	listener net.Listener
	logger   *slog.Logger

	done   chan struct{}
	closed chan struct{}
}

// TCPOption represents the options for the TCPServer.
type TCPOption func(*TCPServer)

type tcpSession struct {
	id     string
	addr   string
	conn   net.Conn
	logger *slog.Logger

	writeLock *sync.Mutex
	stopOnce  *sync.Once
	done      chan struct{}
}

// ListenTCP listens on addr, e.g. ":5250", and returns a TCPServer accepting from it.
func ListenTCP(addr string, options ...TCPOption) (TCPServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return TCPServer{}, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return NewTCPServer(listener, options...), nil
}

// NewTCPServer creates a TCPServer accepting connections from listener.
func NewTCPServer(listener net.Listener, options ...TCPOption) TCPServer {
	t := TCPServer{
		listener: listener,
		logger:   slog.Default(),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(&t)
	}
	return t
}

// WithTCPLogger sets the logger for the TCP transport.
func WithTCPLogger(logger *slog.Logger) TCPOption {
	return func(t *TCPServer) {
		t.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "tcp"),
		)
	}
}

// Addr returns the listener's network address.
func (t TCPServer) Addr() net.Addr {
	return t.listener.Addr()
}

// Sessions implements the ServerTransport interface by yielding one Session per accepted
// connection until Shutdown is called.
func (t TCPServer) Sessions() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		defer close(t.closed)

		for {
			conn, err := t.listener.Accept()
			if err != nil {
				select {
				case <-t.done:
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				t.logger.Warn("failed to accept connection", slog.String("err", err.Error()))
				time.Sleep(50 * time.Millisecond)
				continue
			}

			sess := newTCPSession(conn, t.logger)
			if !yield(sess) {
				sess.Stop()
				return
			}
		}
	}
}

// Shutdown implements the ServerTransport interface by closing the listener and waiting for the
// Sessions loop to end.
func (t TCPServer) Shutdown(ctx context.Context) error {
	close(t.done)

	if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close listener: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close TCP server: %w", ctx.Err())
	case <-t.closed:
	}
	return nil
}

func newTCPSession(conn net.Conn, logger *slog.Logger) tcpSession {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	id := uuid.New().String()
	return tcpSession{
		id:        id,
		addr:      addr,
		conn:      conn,
		logger:    logger.With(slog.String("sessionID", id)),
		writeLock: &sync.Mutex{},
		stopOnce:  &sync.Once{},
		done:      make(chan struct{}),
	}
}

func (s tcpSession) ID() string { return s.id }

func (s tcpSession) RemoteAddr() string { return s.addr }

func (s tcpSession) Send(ctx context.Context, reply string) error {
	select {
	case <-s.done:
		s.logger.Warn("session is closed while sending reply", slog.String("reply", reply))
		return ErrSessionClosed
	default:
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if _, err := io.WriteString(s.conn, reply); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}

func (s tcpSession) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		// Use bufio.Reader instead of bufio.Scanner to avoid max token size errors.
		reader := bufio.NewReader(s.conn)
		for {
			line, err := reader.ReadString('\n')
			if line = strings.TrimRight(line, "\r\n"); line != "" {
				if !yield(line) {
					return
				}
			}
			if err != nil {
				select {
				case <-s.done:
				default:
					if !errors.Is(err, io.EOF) {
						s.logger.Warn("failed to read line", slog.String("err", err.Error()))
					}
				}
				return
			}
		}
	}
}

func (s tcpSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("failed to close connection", slog.String("err", err.Error()))
		}
	})
}
