package amcp

import (
	"context"
	"encoding/xml"
	"errors"
	"iter"
	"time"
)

// ServerTransport provides the server-side communication layer of the AMCP protocol.
type ServerTransport interface {
	// Sessions returns an iterator that yields new client sessions as they connect. Each yielded
	// Session represents one client connection. The implementation must guarantee that session IDs
	// are unique across all active connections.
	//
	// The implementation should exit the iteration when the Shutdown method is called.
	Sessions() iter.Seq[Session]

	// Shutdown gracefully shuts down the ServerTransport. The implementations should not stop the
	// sessions it produced, the caller already did that before calling this method. The caller is
	// guaranteed to call this method only once.
	Shutdown(ctx context.Context) error
}

// Session represents one connected client.
type Session interface {
	// ID returns the unique identifier for this session.
	ID() string

	// RemoteAddr returns the client's address, without the port when the transport has one.
	RemoteAddr() string

	// Send writes a reply block to the client. The block is already framed with "\r\n".
	Send(ctx context.Context, reply string) error

	// Lines returns an iterator over the command lines received from the client, without their
	// line terminators. The implementations should exit the iteration if the session is closed.
	Lines() iter.Seq[string]

	// Stop stops the session.
	// The implementation should not call this, as the caller is guaranteed to call this method
	// once.
	Stop()
}

// Producer is an opaque media source created by the Executor.
type Producer interface {
	Name() string
}

// StageMethod names an operation applied to a channel's stage.
type StageMethod string

// StageCall describes one stage operation. Layer is -1 for operations on the whole channel.
type StageCall struct {
	Method   StageMethod
	Channel  int
	Layer    int
	Producer Producer
	// Preview shows the first frame of a loaded producer without playing it.
	Preview bool
	// Auto plays a background producer when the foreground ends.
	Auto bool
	// Params carries CALL parameters.
	Params []string
	// OtherChannel and OtherLayer address the second half of a SWAP.
	OtherChannel   int
	OtherLayer     int
	SwapTransforms bool
}

// Transform is a partial mixer change for one layer, tweened over Duration frames.
type Transform struct {
	Layer    int
	Property string
	Duration int
	Tween    string
	Apply    func(*MixerState)
}

// MixerState is the full mixer configuration of a layer.
type MixerState struct {
	Keyer           bool
	Invert          bool
	Chroma          Chroma
	BlendMode       string
	Opacity         float64
	Brightness      float64
	Saturation      float64
	Contrast        float64
	Levels          Levels
	FillTranslation [2]float64
	FillScale       [2]float64
	ClipTranslation [2]float64
	ClipScale       [2]float64
	Anchor          [2]float64
	CropUpperLeft   [2]float64
	CropLowerRight  [2]float64
	// Rotation is in radians.
	Rotation    float64
	Perspective Perspective
	Volume      float64
}

// Chroma holds chroma key settings.
type Chroma struct {
	Enable                  bool
	TargetHue               float64
	HueWidth                float64
	MinSaturation           float64
	MinBrightness           float64
	Softness                float64
	SpillSuppress           float64
	SpillSuppressSaturation float64
	ShowMask                bool
}

// Levels holds input and output level settings.
type Levels struct {
	MinInput  float64
	MaxInput  float64
	Gamma     float64
	MinOutput float64
	MaxOutput float64
}

// Perspective holds the four corners of a perspective transform.
type Perspective struct {
	UpperLeft  [2]float64
	UpperRight [2]float64
	LowerRight [2]float64
	LowerLeft  [2]float64
}

// LayerInfo describes a layer for INFO replies.
type LayerInfo struct {
	XMLName    xml.Name `xml:"layer"`
	Index      int      `xml:"index,attr"`
	Foreground string   `xml:"foreground,omitempty"`
	Background string   `xml:"background,omitempty"`
	Playing    bool     `xml:"playing"`
	Paused     bool     `xml:"paused"`
}

// ChannelInfo describes a channel for INFO replies.
type ChannelInfo struct {
	XMLName   xml.Name    `xml:"channel"`
	Index     int         `xml:"index,attr"`
	Format    string      `xml:"format"`
	Consumers []string    `xml:"consumers>consumer,omitempty"`
	Layers    []LayerInfo `xml:"stage>layer"`
}

// TemplateCall describes one CG operation on a template host layer.
type TemplateCall struct {
	Op         string
	Channel    int
	Layer      int
	CGLayer    int
	Template   string
	PlayOnLoad bool
	Label      string
	Data       string
	Method     string
}

// Executor is the playout engine that command handlers drive. Calls are atomic at the call level.
type Executor interface {
	// CreateProducer creates a producer from the load parameters, params[0] being the media name.
	// It returns an error wrapping ErrMediaNotFound when the media does not exist.
	CreateProducer(ctx context.Context, channel, layer int, params []string) (Producer, error)

	// CreateTransition wraps dest in the given transition.
	CreateTransition(ctx context.Context, channel, layer int, dest Producer, t Transition) (Producer, error)

	// Stage applies a stage method and returns its textual result, if any.
	Stage(ctx context.Context, call StageCall) (string, error)

	// ApplyTransforms applies a list of transforms to a channel at once.
	ApplyTransforms(ctx context.Context, channel int, transforms []Transform) error

	// LayerMixer returns the current mixer state of a layer.
	LayerMixer(ctx context.Context, channel, layer int) (MixerState, error)

	// ClearMixer resets the mixer of a layer, or of every layer when layer is -1.
	ClearMixer(ctx context.Context, channel, layer int) error

	AddConsumer(ctx context.Context, channel, index int, params []string) error
	RemoveConsumer(ctx context.Context, channel, index int, params []string) error

	// SetChannelFormat changes the video format of a channel. It returns an error wrapping
	// ErrInvalidFormat for unknown formats.
	SetChannelFormat(ctx context.Context, channel int, format string) error

	ChannelInfo(ctx context.Context, channel int) (ChannelInfo, error)

	// Template runs a CG operation and returns its textual result, if any.
	Template(ctx context.Context, call TemplateCall) (string, error)
}

// DataStore persists named datasets used by DATA and CG commands.
type DataStore interface {
	Store(ctx context.Context, name, data string) error
	// Retrieve returns an error wrapping ErrDataNotFound for unknown names.
	Retrieve(ctx context.Context, name string) (string, error)
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, name string) error
}

// MediaInfo describes a media file for CLS and CINF replies.
type MediaInfo struct {
	Name      string
	Type      string
	Size      int64
	Modified  time.Time
	Frames    int64
	FrameRate string
}

// FileInfo describes a template, font or thumbnail file. Name is relative to its folder and has
// no extension.
type FileInfo struct {
	Name     string
	Size     int64
	Modified time.Time
	// Type is the template host kind, e.g. "html" or "flash"; empty for other files.
	Type string
}

// MediaLibrary lists the media, templates, fonts and thumbnails available to the server.
type MediaLibrary interface {
	Media(ctx context.Context) ([]MediaInfo, error)
	// MediaInfo returns an error wrapping ErrMediaNotFound for unknown names.
	MediaInfo(ctx context.Context, name string) (MediaInfo, error)
	Templates(ctx context.Context) ([]FileInfo, error)
	Fonts(ctx context.Context) ([]string, error)
	Thumbnails(ctx context.Context) ([]FileInfo, error)
	// Thumbnail returns the encoded thumbnail image of a media file.
	Thumbnail(ctx context.Context, name string) ([]byte, error)
	GenerateThumbnail(ctx context.Context, name string) error
	GenerateAllThumbnails(ctx context.Context) error
}

// OSCSender manages OSC subscriptions of clients.
type OSCSender interface {
	Subscribe(address string, port int) error
	Unsubscribe(address string, port int) error
}

// EventSink receives protocol events, see Monitor.
type EventSink interface {
	Publish(ev Event)
}

// Stage methods, one per producer command handled by Executor.Stage.
const (
	StageLoad       StageMethod = "load"
	StageLoadBG     StageMethod = "loadbg"
	StagePlay       StageMethod = "play"
	StagePause      StageMethod = "pause"
	StageResume     StageMethod = "resume"
	StageStop       StageMethod = "stop"
	StageClear      StageMethod = "clear"
	StageInvoke     StageMethod = "call"
	StageSwapLayer  StageMethod = "swap_layer"
	StageSwapStages StageMethod = "swap_channel"
)

var (
	// ErrMediaNotFound reports a media file, template or thumbnail that does not exist.
	ErrMediaNotFound = errors.New("media not found")
	// ErrDataNotFound reports a dataset that does not exist.
	ErrDataNotFound = errors.New("dataset not found")
	// ErrInvalidFormat reports an unknown video format.
	ErrInvalidFormat = errors.New("invalid video format")
	// ErrNotSupported reports an operation the collaborator cannot perform.
	ErrNotSupported = errors.New("operation not supported")
)

// DefaultMixerState returns the mixer state of a freshly created layer.
func DefaultMixerState() MixerState {
	return MixerState{
		BlendMode:      "normal",
		Opacity:        1,
		Brightness:     1,
		Saturation:     1,
		Contrast:       1,
		Levels:         Levels{MinInput: 0, MaxInput: 1, Gamma: 1, MinOutput: 0, MaxOutput: 1},
		FillScale:      [2]float64{1, 1},
		ClipScale:      [2]float64{1, 1},
		CropLowerRight: [2]float64{1, 1},
		Perspective: Perspective{
			UpperRight: [2]float64{1, 0},
			LowerRight: [2]float64{1, 1},
			LowerLeft:  [2]float64{0, 1},
		},
		Volume: 1,
	}
}
