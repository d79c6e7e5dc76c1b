package amcp_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MegaGrindStone/go-amcp"
)

// startTCPServer serves a test strategy on a random local port and returns its address.
func startTCPServer(t *testing.T, options ...amcp.ServerOption) (string, amcp.Server) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	transport := amcp.NewTCPServer(listener)
	srv := amcp.NewServer(transport, newTestStrategy(t, nil, nil), options...)

	served := make(chan struct{})
	go func() {
		srv.Serve()
		close(served)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("failed to shutdown server: %v", err)
		}
		select {
		case <-served:
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})

	return transport.Addr().String(), srv
}

func TestServerTCP(t *testing.T) {
	connected := make(chan string, 1)
	disconnected := make(chan string, 1)
	addr, _ := startTCPServer(t,
		amcp.WithServerOnClientConnected(func(id, remoteAddr string) {
			connected <- remoteAddr
		}),
		amcp.WithServerOnClientDisconnected(func(id string) {
			disconnected <- id
		}),
	)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	select {
	case remote := <-connected:
		if remote != "127.0.0.1" {
			t.Errorf("remote address = %q, want %q", remote, "127.0.0.1")
		}
	case <-time.After(time.Second):
		t.Fatal("connected callback was not called")
	}

	reader := bufio.NewReader(conn)
	tests := []struct {
		name string
		send string
		want amcp.Response
	}{
		{
			name: "crlf terminated",
			send: "PLAY 1-10\r\n",
			want: amcp.Response{Code: 202, Header: "202 PLAY OK"},
		},
		{
			name: "lf terminated",
			send: "VERSION\n",
			want: amcp.Response{Code: 201, Header: "201 VERSION OK", Data: []string{"2.3.0"}},
		},
		{
			name: "request id",
			send: "REQ 42 PLAY 9\r\n",
			want: amcp.Response{RequestID: "42", Code: 401, Header: "401 PLAY ERROR"},
		},
		{
			name: "list",
			send: "CLS\r\n",
			want: amcp.Response{Code: 200, Header: "200 CLS OK", Data: []string{"A", "B"}},
		},
		{
			name: "blank lines are ignored",
			send: "\r\n\r\nPING\r\n",
			want: amcp.Response{Header: "PONG"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := io.WriteString(conn, tt.send); err != nil {
				t.Fatalf("failed to write: %v", err)
			}
			if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
				t.Fatalf("failed to set deadline: %v", err)
			}
			got, err := amcp.ReadResponse(reader)
			if err != nil {
				t.Fatalf("failed to read response: %v", err)
			}
			if got.String() != tt.want.String() || got.Code != tt.want.Code {
				t.Errorf("response = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := io.WriteString(conn, "BYE\r\n"); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if _, err := reader.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("read after BYE error = %v, want %v", err, io.EOF)
	}
	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Error("disconnected callback was not called")
	}
}

func TestServerSessionsAreIndependent(t *testing.T) {
	addr, _ := startTCPServer(t)

	a, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer a.Close()
	b, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer b.Close()

	ra, rb := bufio.NewReader(a), bufio.NewReader(b)

	if got := exchange(t, a, ra, "BEGIN"); got != "202 BEGIN OK" {
		t.Fatalf("BEGIN = %q", got)
	}
	if got := exchange(t, a, ra, "PLAY 1"); got != "202 PLAY QUEUED" {
		t.Errorf("queued PLAY = %q", got)
	}
	if got := exchange(t, b, rb, "PLAY 1"); got != "202 PLAY OK" {
		t.Errorf("PLAY from another session = %q, want it to run", got)
	}

	if got := exchange(t, a, ra, "LOCK 2 ACQUIRE pw"); got != "202 LOCK ACQUIRE OK" {
		t.Fatalf("LOCK = %q", got)
	}
	if got := exchange(t, b, rb, "PLAY 2"); got != "503 PLAY FAILED" {
		t.Errorf("PLAY on a locked channel = %q", got)
	}
}

func TestServerDisconnectReleasesLocks(t *testing.T) {
	addr, _ := startTCPServer(t)

	holder, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer holder.Close()
	other, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer other.Close()
	rh, ro := bufio.NewReader(holder), bufio.NewReader(other)

	if got := exchange(t, holder, rh, "LOCK 1 ACQUIRE pw"); got != "202 LOCK ACQUIRE OK" {
		t.Fatalf("LOCK = %q", got)
	}
	if got := exchange(t, other, ro, "PLAY 1"); got != "503 PLAY FAILED" {
		t.Fatalf("PLAY on a locked channel = %q", got)
	}

	if err := holder.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	// The holder's session ends asynchronously, so poll until its lock is gone.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := exchange(t, other, ro, "PLAY 1")
		if got == "202 PLAY OK" {
			break
		}
		if got != "503 PLAY FAILED" {
			t.Fatalf("PLAY = %q while waiting for the lock to be released", got)
		}
		if time.Now().After(deadline) {
			t.Fatal("lock was not released after the holder disconnected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := exchange(t, other, ro, "LOCK 1 ACQUIRE other"); got != "202 LOCK ACQUIRE OK" {
		t.Errorf("LOCK after release = %q, want the channel to be free", got)
	}
}

// exchange sends one line on conn and returns the header of the reply read from r.
func exchange(t *testing.T, conn net.Conn, r *bufio.Reader, line string) string {
	t.Helper()

	if _, err := io.WriteString(conn, line+"\r\n"); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set deadline: %v", err)
	}
	resp, err := amcp.ReadResponse(r)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp.Header
}

func TestServerShutdownClosesSessions(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	transport := amcp.NewTCPServer(listener)
	connected := make(chan struct{})
	srv := amcp.NewServer(transport, newTestStrategy(t, nil, nil),
		amcp.WithServerOnClientConnected(func(string, string) { close(connected) }),
	)
	go srv.Serve()

	conn, err := net.Dial("tcp", transport.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	<-connected

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("failed to shutdown: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set deadline: %v", err)
	}
	if _, err := bufio.NewReader(conn).ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("read after shutdown error = %v, want %v", err, io.EOF)
	}
}

// lateTransport yields one more session from inside Shutdown, after the server stopped accepting.
type lateTransport struct {
	sessions chan amcp.Session
	late     *lateSession
}

type lateSession struct {
	stopped chan struct{}
}

func (l *lateTransport) Sessions() iter.Seq[amcp.Session] {
	return func(yield func(amcp.Session) bool) {
		for sess := range l.sessions {
			if !yield(sess) {
				return
			}
		}
	}
}

func (l *lateTransport) Shutdown(context.Context) error {
	l.sessions <- l.late
	close(l.sessions)
	return nil
}

func (l *lateSession) ID() string { return "late" }

func (l *lateSession) RemoteAddr() string { return "127.0.0.1" }

func (l *lateSession) Send(context.Context, string) error { return nil }

func (l *lateSession) Lines() iter.Seq[string] {
	return func(func(string) bool) {
		<-l.stopped
	}
}

func (l *lateSession) Stop() { close(l.stopped) }

func TestServerRejectsSessionsAfterShutdown(t *testing.T) {
	transport := &lateTransport{
		sessions: make(chan amcp.Session),
		late:     &lateSession{stopped: make(chan struct{})},
	}
	var connected atomic.Int32
	srv := amcp.NewServer(transport, newTestStrategy(t, nil, nil),
		amcp.WithServerOnClientConnected(func(string, string) { connected.Add(1) }),
	)

	served := make(chan struct{})
	go func() {
		srv.Serve()
		close(served)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("failed to shutdown: %v", err)
	}

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	select {
	case <-transport.late.stopped:
	default:
		t.Error("session yielded after shutdown was not stopped")
	}
	if n := connected.Load(); n != 0 {
		t.Errorf("connected callback called %d times, want 0", n)
	}
}
