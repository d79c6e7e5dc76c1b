package amcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// StrategyOption represents the options for the ProtocolStrategy.
type StrategyOption func(*ProtocolStrategy)

// ProtocolStrategy turns command lines into replies. It tokenizes a line, handles PING, request
// ids, batches and LOCK itself, resolves everything else against the Registry, checks channel
// bounds and locks, and runs the handler. A single strategy is shared by every session of every
// transport; per-client state lives in ClientInfo.
type ProtocolStrategy struct {
	registry *Registry
	locks    *ChannelLocks
	cc       *CommandContext
	events   EventSink
	logger   *slog.Logger
}

// NewProtocolStrategy creates a strategy over registry and seals the registry.
func NewProtocolStrategy(registry *Registry, cc *CommandContext, options ...StrategyOption) *ProtocolStrategy {
	p := &ProtocolStrategy{
		registry: registry,
		cc:       cc,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.locks == nil {
		p.locks = NewChannelLocks(cc.Config.LockClearPhrase)
	}
	registry.seal()
	return p
}

// WithChannelLocks sets the lock table, by default a new one using the configured clear phrase.
func WithChannelLocks(locks *ChannelLocks) StrategyOption {
	return func(p *ProtocolStrategy) {
		p.locks = locks
	}
}

// WithEventSink sets the sink that receives command and lock events.
func WithEventSink(sink EventSink) StrategyOption {
	return func(p *ProtocolStrategy) {
		p.events = sink
	}
}

// WithStrategyLogger sets the logger for the strategy.
func WithStrategyLogger(logger *slog.Logger) StrategyOption {
	return func(p *ProtocolStrategy) {
		p.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "protocol"),
		)
	}
}

// Locks returns the channel lock table.
func (p *ProtocolStrategy) Locks() *ChannelLocks {
	return p.locks
}

// Parse handles one command line from client and returns the reply lines, without terminators.
// A nil result means no reply is sent.
func (p *ProtocolStrategy) Parse(ctx context.Context, client *ClientInfo, line string) []string {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return nil
	}

	if strings.EqualFold(tokens[0], "PING") {
		return []string{pong(tokens[1:])}
	}

	// Switches are reserved.
	if strings.HasPrefix(tokens[0], "/") {
		tokens = tokens[1:]
	}

	var requestID string
	if len(tokens) >= 2 && strings.EqualFold(tokens[0], "REQ") {
		requestID = tokens[1]
		tokens = tokens[2:]
	}

	if len(tokens) == 0 {
		return p.fail(client, requestID, NewError(CommandError, "", "%s", line))
	}

	name := strings.ToUpper(tokens[0])
	params := tokens[1:]

	switch name {
	case "BEGIN", "COMMIT", "DISCARD":
		return p.batchControl(ctx, client, name, requestID, line)
	case "LOCK":
		return withRequestID(requestID, splitReply(p.lock(client, params)))
	}

	inv, amcpErr := p.resolve(client, name, params, line)
	if amcpErr != nil {
		return p.fail(client, requestID, amcpErr)
	}
	inv.RequestID = requestID

	if batch := client.Batch(); batch.InProgress() {
		if err := batch.Add(inv); err != nil {
			return p.fail(client, requestID, NewError(CommandError, inv.Name, "%s", line))
		}
		p.logger.Debug("queued command",
			slog.String("sessionID", client.ID),
			slog.String("command", inv.Name),
			slog.Int("batchSize", batch.Len()),
		)
		return withRequestID(requestID, []string{fmt.Sprintf("202 %s QUEUED", inv.Name)})
	}

	return withRequestID(requestID, splitReply(p.execute(ctx, inv)))
}

// Forget releases the locks held by a disconnected client.
func (p *ProtocolStrategy) Forget(client *ClientInfo) {
	p.locks.ForgetSession(client.ID)
	p.publish(Event{Kind: EventDisconnected, SessionID: client.ID, Address: client.Address})
}

// Connected reports a new client to the event sink.
func (p *ProtocolStrategy) Connected(client *ClientInfo) {
	p.publish(Event{Kind: EventConnected, SessionID: client.ID, Address: client.Address})
}

func (p *ProtocolStrategy) resolve(client *ClientInfo, name string, params []string, line string) (*Invocation,
	*Error,
) {
	inv := &Invocation{
		ClientID:      client.ID,
		ClientAddress: client.Address,
		Channel:       -1,
		Layer:         -1,
	}

	if len(params) > 0 {
		spec, ok, err := parseChannelSpec(params[0])
		if ok || err != nil {
			key, cmd, rest, rerr := p.registry.Resolve(ScopeChannel, name, params[1:])
			switch {
			case errors.Is(rerr, ErrCommandNotFound):
				// Not a channel command, retry below as a bare command with the token kept.
			case err != nil:
				return nil, NewError(ChannelError, key, "%v", err)
			case rerr != nil:
				return nil, NewError(ParametersError, key, "%v", rerr)
			default:
				if !p.cc.ValidChannel(spec.channel) {
					return nil, NewError(ChannelError, key, "channel %d out of range", spec.channel+1)
				}
				if p.locks.IsLocked(client.ID, spec.channel) {
					return nil, NewError(AccessError, key, "channel %d is locked", spec.channel+1)
				}
				inv.Name = key
				inv.Channel = spec.channel
				inv.HasChannel = true
				inv.Layer = spec.layer
				inv.HasLayer = spec.hasLayer
				inv.Parameters = rest
				inv.command = cmd
				return inv, nil
			}
		}
	}

	key, cmd, rest, err := p.registry.Resolve(ScopeBare, name, params)
	if errors.Is(err, ErrCommandNotFound) {
		return nil, NewError(CommandError, name, "%s", line)
	}
	if err != nil {
		return nil, NewError(ParametersError, key, "%v", err)
	}

	inv.Name = key
	inv.Parameters = rest
	inv.command = cmd
	return inv, nil
}

func (p *ProtocolStrategy) execute(ctx context.Context, inv *Invocation) (reply string) {
	logger := p.logger.With(
		slog.String("sessionID", inv.ClientID),
		slog.String("command", inv.Name),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", slog.Any("panic", r))
			reply = NewError(UnknownError, inv.Name, "panic: %v", r).Reply()
		}
		code := replyCode(reply)
		logger.Debug("executed command", slog.Int("code", code), slog.Duration("took", time.Since(start)))
		p.publish(Event{
			Kind:      EventCommand,
			SessionID: inv.ClientID,
			Address:   inv.ClientAddress,
			Command:   inv.Name,
			Channel:   channelOf(inv),
			Code:      code,
		})
	}()

	res, err := inv.command.Handler(ctx, p.cc, inv)
	if err != nil {
		amcpErr := AsError(inv.Name, err)
		logger.Warn("command failed", slog.String("err", err.Error()), slog.Int("code", amcpErr.Kind.Code()))
		return amcpErr.Reply()
	}

	switch r := res.(type) {
	case Immediate:
		return string(r)
	case Deferred:
		s, err := r(ctx)
		if err != nil {
			amcpErr := AsError(inv.Name, err)
			logger.Warn("deferred command failed", slog.String("err", err.Error()),
				slog.Int("code", amcpErr.Kind.Code()))
			return amcpErr.Reply()
		}
		return s
	}

	return fmt.Sprintf("202 %s OK\r\n", inv.Name)
}

func (p *ProtocolStrategy) batchControl(ctx context.Context, client *ClientInfo, verb, requestID, line string,
) []string {
	batch := client.Batch()

	switch verb {
	case "BEGIN":
		if err := batch.Begin(requestID); err != nil {
			return p.fail(client, requestID, NewError(CommandError, verb, "%s", line))
		}
		return withRequestID(requestID, []string{"202 BEGIN OK"})
	case "DISCARD":
		batchID := batch.RequestID()
		commands, err := batch.Finish()
		if err != nil {
			return p.fail(client, requestID, NewError(CommandError, verb, "%s", line))
		}
		p.logger.Debug("discarded batch", slog.String("sessionID", client.ID), slog.Int("size", len(commands)))
		return withRequestID(firstNonEmpty(requestID, batchID), []string{"202 DISCARD OK"})
	}

	batchID := batch.RequestID()
	commands, err := batch.Finish()
	if err != nil {
		return p.fail(client, requestID, NewError(CommandError, verb, "%s", line))
	}
	if len(commands) == 0 {
		return withRequestID(firstNonEmpty(requestID, batchID), []string{"202 COMMIT OK"})
	}

	// Commands run one after another in submission order. A failing command does not stop the
	// rest and nothing already applied is rolled back.
	var lines []string
	for _, inv := range commands {
		id := firstNonEmpty(inv.RequestID, requestID, batchID)
		lines = append(lines, withRequestID(id, splitReply(p.execute(ctx, inv)))...)
	}
	return lines
}

func (p *ProtocolStrategy) lock(client *ClientInfo, params []string) string {
	if len(params) < 2 {
		return NewError(ParametersError, "LOCK", "").Reply()
	}

	spec, ok, err := parseChannelSpec(params[0])
	if !ok || err != nil || !p.cc.ValidChannel(spec.channel) {
		return NewError(ChannelError, "LOCK", "").Reply()
	}

	var phrase string
	if len(params) > 2 {
		phrase = params[2]
	}

	ev := Event{SessionID: client.ID, Address: client.Address, Channel: spec.channel + 1, Command: "LOCK"}

	switch strings.ToUpper(params[1]) {
	case "ACQUIRE":
		if phrase == "" || !p.locks.TryLock(client.ID, spec.channel, phrase) {
			return "503 LOCK ACQUIRE FAILED\r\n"
		}
		ev.Kind = EventLockAcquired
		p.publish(ev)
		return "202 LOCK ACQUIRE OK\r\n"
	case "RELEASE":
		p.locks.Release(client.ID, spec.channel)
		ev.Kind = EventLockReleased
		p.publish(ev)
		return "202 LOCK RELEASE OK\r\n"
	case "CLEAR":
		if !p.locks.ClearAll(phrase) {
			return "503 LOCK CLEAR FAILED\r\n"
		}
		ev.Kind = EventLockCleared
		p.publish(ev)
		return "202 LOCK CLEAR OK\r\n"
	}

	return NewError(ParametersError, "LOCK", "").Reply()
}

func (p *ProtocolStrategy) fail(client *ClientInfo, requestID string, err *Error) []string {
	p.logger.Info("rejected command",
		slog.String("sessionID", client.ID),
		slog.String("err", err.Error()),
	)
	p.publish(Event{
		Kind:      EventCommand,
		SessionID: client.ID,
		Address:   client.Address,
		Command:   err.Command,
		Code:      err.Kind.Code(),
	})
	return withRequestID(requestID, splitReply(err.Reply()))
}

func (p *ProtocolStrategy) publish(ev Event) {
	if p.events == nil {
		return
	}
	p.events.Publish(ev)
}

type channelSpec struct {
	channel  int
	layer    int
	hasLayer bool
}

// parseChannelSpec parses "<channel>[-<layer>]". The channel is 1-based on the wire and returned
// 0-based; the layer is returned as written. ok is false when the token does not start with an
// integer; err is set when it does but the layer part is malformed.
func parseChannelSpec(token string) (channelSpec, bool, error) {
	channelPart, layerPart, hasLayer := strings.Cut(token, "-")

	channel, err := strconv.Atoi(channelPart)
	if err != nil {
		return channelSpec{}, false, nil
	}

	spec := channelSpec{channel: channel - 1, layer: -1}
	if !hasLayer {
		return spec, true, nil
	}

	layer, err := strconv.Atoi(layerPart)
	if err != nil {
		return channelSpec{}, false, fmt.Errorf("invalid layer %q: %w", layerPart, err)
	}
	spec.layer = layer
	spec.hasLayer = true
	return spec, true, nil
}

// pong echoes the PING arguments without the last one.
func pong(args []string) string {
	if len(args) > 0 {
		args = args[:len(args)-1]
	}
	if len(args) == 0 {
		return "PONG"
	}
	return "PONG " + strings.Join(args, " ")
}

func withRequestID(requestID string, lines []string) []string {
	if requestID == "" || len(lines) == 0 {
		return lines
	}
	lines[0] = "RES " + requestID + " " + lines[0]
	return lines
}

func replyCode(reply string) int {
	head, _, _ := strings.Cut(reply, " ")
	code, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return code
}

func channelOf(inv *Invocation) int {
	if !inv.HasChannel {
		return 0
	}
	return inv.Channel + 1
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
