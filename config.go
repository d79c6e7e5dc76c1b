package amcp

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	XMLName xml.Name `xml:"configuration"`

	// Port is the TCP port of the AMCP controller.
	Port int `xml:"controllers>tcp>port"`
	// WebSocketAddr is the listen address of the websocket controller, empty to disable it.
	WebSocketAddr string `xml:"controllers>websocket>address,omitempty"`
	// MonitorAddr is the listen address of the SSE monitor, empty to disable it.
	MonitorAddr string `xml:"monitor>address,omitempty"`

	Channels        []ChannelConfig `xml:"channels>channel"`
	LockClearPhrase string          `xml:"-"`
	Paths           Paths           `xml:"paths"`
	LogLevel        string          `xml:"log-level"`

	// DataBackend selects the dataset store, "file" or "sqlite".
	DataBackend string `xml:"data>backend"`
	// DataDSN is the SQLite database path when DataBackend is "sqlite".
	DataDSN string `xml:"data>dsn,omitempty"`
}

// ChannelConfig configures one channel.
type ChannelConfig struct {
	VideoMode string `xml:"video-mode"`
}

// Paths lists the folders the server reads from and writes to.
type Paths struct {
	XMLName   xml.Name `xml:"paths"`
	Media     string   `xml:"media-path"`
	Log       string   `xml:"log-path"`
	Data      string   `xml:"data-path"`
	Template  string   `xml:"template-path"`
	Thumbnail string   `xml:"thumbnail-path"`
	Font      string   `xml:"font-path"`
}

const (
	// DefaultPort is the customary AMCP port.
	DefaultPort = 5250
	// DefaultVideoMode is the video mode of channels that do not name one.
	DefaultVideoMode = "720p5000"
)

// LevelTrace is the level below slog.LevelDebug used by LOG LEVEL trace.
const LevelTrace = slog.LevelDebug - 4

// DefaultConfig returns a configuration with one channel and paths relative to the working
// directory.
func DefaultConfig() Config {
	return Config{
		Port:     DefaultPort,
		Channels: []ChannelConfig{{VideoMode: DefaultVideoMode}},
		Paths: Paths{
			Media:     "media/",
			Log:       "log/",
			Data:      "data/",
			Template:  "template/",
			Thumbnail: "thumbnail/",
			Font:      "font/",
		},
		LogLevel:    "info",
		DataBackend: "file",
	}
}

// ApplyEnv overrides fields from AMCP_* variables found through lookup, typically os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"AMCP_WS_ADDR":        &c.WebSocketAddr,
		"AMCP_MONITOR_ADDR":   &c.MonitorAddr,
		"AMCP_LOCK_PHRASE":    &c.LockClearPhrase,
		"AMCP_MEDIA_PATH":     &c.Paths.Media,
		"AMCP_LOG_PATH":       &c.Paths.Log,
		"AMCP_DATA_PATH":      &c.Paths.Data,
		"AMCP_TEMPLATE_PATH":  &c.Paths.Template,
		"AMCP_THUMBNAIL_PATH": &c.Paths.Thumbnail,
		"AMCP_FONT_PATH":      &c.Paths.Font,
		"AMCP_LOG_LEVEL":      &c.LogLevel,
		"AMCP_DATA_BACKEND":   &c.DataBackend,
		"AMCP_DATA_DSN":       &c.DataDSN,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("AMCP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse AMCP_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v, ok := lookup("AMCP_CHANNELS"); ok {
		c.Channels = ParseChannels(v)
	}

	return c.Validate()
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	switch c.DataBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("invalid data backend %q", c.DataBackend)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ChannelCount returns the number of configured channels.
func (c Config) ChannelCount() int {
	return len(c.Channels)
}

// ParseChannels parses a comma separated list of video modes, one per channel.
func ParseChannels(s string) []ChannelConfig {
	var channels []ChannelConfig
	for _, mode := range strings.Split(s, ",") {
		mode = strings.TrimSpace(mode)
		if mode == "" {
			continue
		}
		channels = append(channels, ChannelConfig{VideoMode: mode})
	}
	return channels
}

// ParseLogLevel maps the level names accepted by LOG LEVEL to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error", "fatal":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}
