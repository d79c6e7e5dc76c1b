package amcp

import (
	"context"
	"fmt"
	"strings"
)

// Result is the value a Handler produces: either an Immediate reply or a Deferred step the
// protocol strategy runs before replying.
type Result interface {
	result()
}

// Immediate is a reply block that is ready to send, e.g. "202 PLAY OK\r\n".
type Immediate string

// Deferred is a commit step that produces the reply once it completes.
type Deferred func(ctx context.Context) (string, error)

func (Immediate) result() {}

func (Deferred) result() {}

// OK formats a success reply block. Each payload entry becomes one line after the header.
func OK(code int, command string, payload ...string) Immediate {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %s OK\r\n", code, command)
	for _, p := range payload {
		sb.WriteString(p)
		sb.WriteString("\r\n")
	}
	return Immediate(sb.String())
}

// List formats a 200 reply block: a header, one line per item and a terminating blank line.
func List(command string, items []string) Immediate {
	var sb strings.Builder
	fmt.Fprintf(&sb, "200 %s OK\r\n", command)
	for _, item := range items {
		sb.WriteString(item)
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")
	return Immediate(sb.String())
}

// splitReply turns a reply block into its lines without terminators. A trailing blank line that
// terminates a list reply is kept.
func splitReply(reply string) []string {
	if reply == "" {
		return nil
	}
	lines := strings.Split(reply, "\r\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
