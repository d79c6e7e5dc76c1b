package amcp

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed command and selects its reply code.
type ErrorKind int

// Error is a command failure that is reported to the client as a numeric reply. Handlers may
// return an *Error to choose the reply code; any other error is reported as UnknownError.
type Error struct {
	Kind ErrorKind
	// Command is the resolved command name used in the reply, e.g. "MIXER OPACITY".
	Command string
	// Message is echoed for CommandError replies and logged for the others.
	Message string
}

// Error kinds, valued as their reply codes. Handler errors that are not an *Error, missing files
// included, are reported as UnknownError.
const (
	CommandError    ErrorKind = 400
	ChannelError    ErrorKind = 401
	ParametersError ErrorKind = 402
	UnknownError    ErrorKind = 500
	AccessError     ErrorKind = 503
)

var (
	// ErrCommandNotFound is returned by Registry.Resolve when no entry matches.
	ErrCommandNotFound = errors.New("command not found")
	// ErrNotEnoughParameters is returned by Registry.Resolve when an entry matched but the
	// invocation has fewer parameters than it requires.
	ErrNotEnoughParameters = errors.New("not enough parameters")
	// ErrBatchInProgress is returned by Batch.Begin while a batch is already collecting.
	ErrBatchInProgress = errors.New("batch already in progress")
	// ErrNoBatch is returned by Batch.Add and Batch.Finish while no batch is collecting.
	ErrNoBatch = errors.New("no batch in progress")
	// ErrSessionClosed is returned when sending to a session that has stopped.
	ErrSessionClosed = errors.New("session is closed")
)

// NewError creates an *Error of the given kind.
func NewError(kind ErrorKind, command, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Command: command,
		Message: fmt.Sprintf(format, args...),
	}
}

// Code returns the numeric reply code for k.
func (k ErrorKind) Code() int {
	return int(k)
}

func (k ErrorKind) String() string {
	switch k {
	case CommandError:
		return "command error"
	case ChannelError:
		return "channel error"
	case ParametersError:
		return "parameters error"
	case AccessError:
		return "access error"
	case UnknownError:
		return "unknown error"
	}
	return fmt.Sprintf("error %d", int(k))
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Command)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Command, e.Message)
}

// Reply formats e as a wire reply block.
func (e *Error) Reply() string {
	switch e.Kind {
	case CommandError:
		return "400 ERROR\r\n" + e.Message + "\r\n"
	case ChannelError, ParametersError:
		return fmt.Sprintf("%d %s ERROR\r\n", e.Kind.Code(), strings.ToUpper(e.Command))
	case AccessError:
		return fmt.Sprintf("%d %s FAILED\r\n", e.Kind.Code(), strings.ToUpper(e.Command))
	}
	return "500 FAILED\r\n"
}

// AsError converts err into an *Error, downgrading anything that is not one to UnknownError. The
// *Error found in err is never modified; a copy carries the command name.
func AsError(command string, err error) *Error {
	var amcpErr *Error
	if errors.As(err, &amcpErr) {
		e := *amcpErr
		if e.Command == "" {
			e.Command = command
		}
		return &e
	}
	return &Error{
		Kind:    UnknownError,
		Command: command,
		Message: err.Error(),
	}
}
