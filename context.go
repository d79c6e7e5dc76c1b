package amcp

import (
	"log/slog"
	"sync"
)

// ContextOption represents the options for the CommandContext.
type ContextOption func(*CommandContext)

// CommandContext is passed to every handler. It carries the configuration and the collaborators
// commands act upon. It is shared by all sessions.
type CommandContext struct {
	Config       Config
	ChannelCount int
	Version      string

	Executor Executor
	Data     DataStore
	Media    MediaLibrary
	OSC      OSCSender

	// LogLevel is the runtime level changed by LOG LEVEL.
	LogLevel *slog.LevelVar
	Logger   *slog.Logger

	shutdown func(restart bool)
	deferred *DeferredTransforms
}

// DeferredTransforms buffers mixer transforms per channel until MIXER COMMIT. Transforms from
// different sessions targeting the same channel accumulate in the same buffer.
type DeferredTransforms struct {
	mu      sync.Mutex
	pending map[int][]Transform
}

// Version is reported by the VERSION command unless overridden with WithVersion.
const Version = "2.3.0 go-amcp"

// NewCommandContext creates the shared context for handlers.
func NewCommandContext(cfg Config, executor Executor, options ...ContextOption) *CommandContext {
	cc := &CommandContext{
		Config:       cfg,
		ChannelCount: cfg.ChannelCount(),
		Version:      Version,
		Executor:     executor,
		Logger:       slog.Default(),
		deferred:     &DeferredTransforms{pending: make(map[int][]Transform)},
	}
	for _, opt := range options {
		opt(cc)
	}
	if cc.LogLevel == nil {
		cc.LogLevel = &slog.LevelVar{}
		if level, err := ParseLogLevel(cfg.LogLevel); err == nil {
			cc.LogLevel.Set(level)
		}
	}
	return cc
}

// WithDataStore sets the dataset store used by DATA and CG commands.
func WithDataStore(store DataStore) ContextOption {
	return func(cc *CommandContext) {
		cc.Data = store
	}
}

// WithMediaLibrary sets the media library used by CLS, CINF, TLS, FLS and THUMBNAIL commands.
func WithMediaLibrary(lib MediaLibrary) ContextOption {
	return func(cc *CommandContext) {
		cc.Media = lib
	}
}

// WithOSC sets the OSC subscription manager.
func WithOSC(osc OSCSender) ContextOption {
	return func(cc *CommandContext) {
		cc.OSC = osc
	}
}

// WithShutdownHook sets the function KILL and RESTART call.
func WithShutdownHook(hook func(restart bool)) ContextOption {
	return func(cc *CommandContext) {
		cc.shutdown = hook
	}
}

// WithLogLevel sets the level variable LOG LEVEL changes, usually the one the logger's handler
// reads.
func WithLogLevel(level *slog.LevelVar) ContextOption {
	return func(cc *CommandContext) {
		cc.LogLevel = level
	}
}

// WithContextLogger sets the logger handlers use.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(cc *CommandContext) {
		cc.Logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "commands"),
		)
	}
}

// WithVersion overrides the version reported by VERSION.
func WithVersion(version string) ContextOption {
	return func(cc *CommandContext) {
		cc.Version = version
	}
}

// Shutdown calls the shutdown hook. It reports false when no hook is installed.
func (cc *CommandContext) Shutdown(restart bool) bool {
	if cc.shutdown == nil {
		return false
	}
	cc.shutdown(restart)
	return true
}

// ValidChannel reports whether channel is a valid 0-based channel index.
func (cc *CommandContext) ValidChannel(channel int) bool {
	return channel >= 0 && channel < cc.ChannelCount
}

// Deferred returns the deferred transform buffer.
func (cc *CommandContext) Deferred() *DeferredTransforms {
	return cc.deferred
}

// Add appends transforms to the buffer of channel.
func (d *DeferredTransforms) Add(channel int, transforms ...Transform) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[channel] = append(d.pending[channel], transforms...)
}

// Take removes and returns the buffered transforms of channel.
func (d *DeferredTransforms) Take(channel int) []Transform {
	d.mu.Lock()
	defer d.mu.Unlock()

	transforms := d.pending[channel]
	delete(d.pending, channel)
	return transforms
}

// Len returns the number of transforms buffered for channel.
func (d *DeferredTransforms) Len(channel int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pending[channel])
}
