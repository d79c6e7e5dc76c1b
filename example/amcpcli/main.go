package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ergochat/readline"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/MegaGrindStone/go-amcp"
)

const (
	historyFileName = ".amcpcli_history"
	historySize     = 500
)

// lineEditor reads commands with line editing and history on a terminal and falls back to plain
// line reading when stdin is piped.
type lineEditor struct {
	rl      *readline.Instance
	scanner *bufio.Scanner
}

func main() {
	var (
		addr    string
		timeout time.Duration
		command string
	)
	flag.StringVarP(&addr, "addr", "a", "localhost:5250", "AMCP server <host:port>")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Timeout of one command")
	flag.StringVarP(&command, "command", "c", "", "Send one command and exit")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	client, err := amcp.Dial(ctx, addr)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Close()

	if command != "" {
		if !send(client, timeout, command) {
			os.Exit(1)
		}
		return
	}

	editor := newLineEditor()
	defer editor.close()

	for {
		line, err := editor.getLine(addr + "> ")
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "BYE"), strings.EqualFold(line, "EXIT"):
			return
		}
		send(client, timeout, line)
	}
}

// send runs one command and prints its replies. It reports whether every reply was a success.
func send(client *amcp.Client, timeout time.Duration, line string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		resps []amcp.Response
		err   error
	)
	if requestID, ok := commitRequest(line); ok {
		resps, err = client.Commit(ctx, requestID)
	} else {
		var resp amcp.Response
		resp, err = client.Do(ctx, line)
		resps = []amcp.Response{resp}
	}

	ok := err == nil
	for _, resp := range resps {
		fmt.Println(resp)
		ok = ok && (resp.OK() || resp.Code == 0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return ok
}

// commitRequest recognizes "COMMIT" and "REQ <id> COMMIT".
func commitRequest(line string) (string, bool) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 1 && strings.EqualFold(fields[0], "COMMIT"):
		return "", true
	case len(fields) == 3 && strings.EqualFold(fields[0], "REQ") && strings.EqualFold(fields[2], "COMMIT"):
		return fields[1], true
	}
	return "", false
}

func newLineEditor() *lineEditor {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return &lineEditor{scanner: bufio.NewScanner(os.Stdin)}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            filepath.Join(home, historyFileName),
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline init failed (%v), using basic input\n", err)
		return &lineEditor{scanner: bufio.NewScanner(os.Stdin)}
	}
	return &lineEditor{rl: rl}
}

func (le *lineEditor) getLine(prompt string) (string, error) {
	if le.rl == nil {
		if !le.scanner.Scan() {
			if err := le.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return le.scanner.Text(), nil
	}

	le.rl.SetPrompt(prompt)
	line, err := le.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (le *lineEditor) close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}
