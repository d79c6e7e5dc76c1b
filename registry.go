package amcp

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
)

// Scope selects one of the two command pools of a Registry.
type Scope int

const (
	// ScopeBare holds global commands such as VERSION or DATA STORE.
	ScopeBare Scope = iota
	// ScopeChannel holds commands addressed to a channel, such as PLAY 1-10.
	ScopeChannel
)

// Handler executes one invocation against the command context.
type Handler func(ctx context.Context, cc *CommandContext, inv *Invocation) (Result, error)

// Command describes a registered command.
type Command struct {
	MinParams int
	Handler   Handler
}

// Invocation is one parsed command bound to its registry entry.
type Invocation struct {
	// Name is the resolved, upper-cased registry key, e.g. "MIXER OPACITY".
	Name          string
	ClientID      string
	ClientAddress string
	Channel       int
	Layer         int
	HasChannel    bool
	HasLayer      bool
	Parameters    []string
	RequestID     string

	command Command
}

// Registry maps command names to handlers. It is filled at start-up and read-only afterwards:
// Register panics once the registry has been sealed by a ProtocolStrategy.
type Registry struct {
	bare    map[string]Command
	channel map[string]Command
	sealed  atomic.Bool
}

func (s Scope) String() string {
	if s == ScopeChannel {
		return "channel"
	}
	return "bare"
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		bare:    make(map[string]Command),
		channel: make(map[string]Command),
	}
}

// Register adds a command under name in the given scope. Names are case-insensitive and may hold
// a subcommand, e.g. "MIXER OPACITY".
func (r *Registry) Register(scope Scope, name string, cmd Command) {
	if r.sealed.Load() {
		panic(fmt.Sprintf("amcp: register %q on a sealed registry", name))
	}
	if cmd.Handler == nil {
		panic(fmt.Sprintf("amcp: register %q without a handler", name))
	}
	r.pool(scope)[strings.ToUpper(name)] = cmd
}

// Resolve looks name up in scope, first as the compound "<name> <params[0]>" and then as name
// alone. On a compound hit params[0] is consumed. It returns the resolved key and the remaining
// parameters. ErrCommandNotFound reports a miss; ErrNotEnoughParameters reports a hit whose
// arity check failed, together with the resolved key.
func (r *Registry) Resolve(scope Scope, name string, params []string) (string, Command, []string, error) {
	pool := r.pool(scope)
	name = strings.ToUpper(name)

	key := name
	cmd, ok := Command{}, false
	if len(params) > 0 {
		compound := name + " " + strings.ToUpper(params[0])
		if cmd, ok = pool[compound]; ok {
			key = compound
			params = params[1:]
		}
	}
	if !ok {
		if cmd, ok = pool[name]; !ok {
			return "", Command{}, params, ErrCommandNotFound
		}
	}

	if len(params) < cmd.MinParams {
		return key, cmd, params, fmt.Errorf("%w: %s needs %d, got %d", ErrNotEnoughParameters, key, cmd.MinParams,
			len(params))
	}

	return key, cmd, params, nil
}

// Names returns the sorted command names registered in scope.
func (r *Registry) Names(scope Scope) []string {
	pool := r.pool(scope)
	names := make([]string, 0, len(pool))
	for name := range pool {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) seal() {
	r.sealed.Store(true)
}

func (r *Registry) pool(scope Scope) map[string]Command {
	if scope == ScopeChannel {
		return r.channel
	}
	return r.bare
}

// LayerOr returns the invocation's layer, or def when the channel spec named none.
func (inv *Invocation) LayerOr(def int) int {
	if inv.HasLayer {
		return inv.Layer
	}
	return def
}

// WireChannel returns the 1-based channel number as written by clients.
func (inv *Invocation) WireChannel() int {
	return inv.Channel + 1
}
