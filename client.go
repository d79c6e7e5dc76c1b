package amcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client is an AMCP client over a stream connection, usually TCP. It sends one command line at a
// time and reads the reply block that answers it. Client is safe for concurrent use; calls are
// serialized.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	lock   sync.Mutex
	queued int
}

// ClientOption represents the options for the Client.
type ClientOption func(*Client)

// Response is one parsed reply block.
type Response struct {
	// RequestID is the id of a "RES <id>" prefix, empty when the command had no REQ id.
	RequestID string
	// Code is the numeric reply code, zero for replies without one such as PONG.
	Code int
	// Header is the first line without the RES prefix, e.g. "202 PLAY OK".
	Header string
	// Data holds the payload lines.
	Data []string
}

var errEmptyResponse = errors.New("empty response")

// Dial connects to an AMCP server at addr.
func Dial(ctx context.Context, addr string, options ...ClientOption) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return NewClient(conn, options...), nil
}

// NewClient creates a Client over an established connection.
func NewClient(conn net.Conn, options ...ClientOption) *Client {
	c := &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "client"),
		)
	}
}

// Do sends line and reads one reply block.
func (c *Client) Do(ctx context.Context, line string) (Response, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	resps, err := c.exchange(ctx, line, 1)
	if err != nil {
		return Response{}, err
	}
	return resps[0], nil
}

// Commit sends COMMIT and reads the replies of every command queued since BEGIN. requestID may be
// empty.
func (c *Client) Commit(ctx context.Context, requestID string) ([]Response, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	line := "COMMIT"
	if requestID != "" {
		line = "REQ " + requestID + " COMMIT"
	}
	n := max(c.queued, 1)
	c.queued = 0
	return c.exchange(ctx, line, n)
}

// Close says goodbye to the server and closes the connection.
func (c *Client) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(time.Second)); err == nil {
		if _, err := io.WriteString(c.conn, "BYE\r\n"); err != nil {
			c.logger.Debug("failed to say goodbye", slog.String("err", err.Error()))
		}
	}
	return c.conn.Close()
}

// OK reports whether the reply has a 2xx code.
func (r Response) OK() bool {
	return r.Code >= 200 && r.Code < 300
}

// Status returns the last word of the header: OK, ERROR, FAILED or QUEUED.
func (r Response) Status() string {
	fields := strings.Fields(r.Header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func (r Response) String() string {
	var sb strings.Builder
	if r.RequestID != "" {
		sb.WriteString("RES " + r.RequestID + " ")
	}
	sb.WriteString(r.Header)
	for _, d := range r.Data {
		sb.WriteString("\n")
		sb.WriteString(d)
	}
	return sb.String()
}

func (c *Client) exchange(ctx context.Context, line string, n int) ([]Response, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		return nil, fmt.Errorf("failed to write command: %w", err)
	}

	resps := make([]Response, 0, n)
	for range n {
		resp, err := ReadResponse(c.reader)
		if err != nil {
			return resps, fmt.Errorf("failed to read response: %w", err)
		}
		resps = append(resps, resp)
	}

	c.track(resps)

	return resps, nil
}

func (c *Client) track(resps []Response) {
	for _, resp := range resps {
		switch {
		case resp.Status() == "QUEUED":
			c.queued++
		case strings.HasSuffix(resp.Header, "BEGIN OK"), strings.HasSuffix(resp.Header, "DISCARD OK"):
			c.queued = 0
		}
	}
}

// ReadResponse reads one reply block from r. A 200 reply runs until a blank line, 201 and 400
// replies carry one payload line and every other reply is a single line.
func ReadResponse(r *bufio.Reader) (Response, error) {
	header, err := readLine(r)
	if err != nil {
		return Response{}, err
	}
	if header == "" {
		return Response{}, errEmptyResponse
	}

	var resp Response
	if rest, ok := strings.CutPrefix(header, "RES "); ok {
		id, h, found := strings.Cut(rest, " ")
		if found {
			resp.RequestID = id
			header = h
		}
	}
	resp.Header = header

	head, _, _ := strings.Cut(header, " ")
	if code, err := strconv.Atoi(head); err == nil {
		resp.Code = code
	}

	switch resp.Code {
	case 200:
		for {
			line, err := readLine(r)
			if err != nil {
				return resp, err
			}
			if line == "" {
				break
			}
			resp.Data = append(resp.Data, line)
		}
	case 201, 400:
		line, err := readLine(r)
		if err != nil {
			return resp, err
		}
		resp.Data = append(resp.Data, line)
	}

	return resp, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
