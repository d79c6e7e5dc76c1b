// Package executor provides an in-process amcp.Executor that keeps channel, layer, mixer, consumer
// and template state in memory. It renders nothing; it exists so a server can be run and its
// commands observed without a playout engine.
package executor

import (
	"cmp"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/go-amcp"
)

// Memory is an in-memory amcp.Executor. It is safe for concurrent use.
type Memory struct {
	logger *slog.Logger
	exists func(name string) bool

	mu       sync.Mutex
	channels []*channel
}

// Option represents the options for Memory.
type Option func(*Memory)

// LayerState is a snapshot of one layer.
type LayerState struct {
	Foreground string
	Background string
	Playing    bool
	Paused     bool
	Auto       bool
	// Transition is the transition attached to the background producer, if any.
	Transition *amcp.Transition
	Mixer      amcp.MixerState
	Calls      [][]string
}

type channel struct {
	format    string
	layers    map[int]*layer
	consumers map[int][]string
	templates map[int]map[int]*template
}

type layer struct {
	foreground *producer
	background *producer
	playing    bool
	paused     bool
	auto       bool
	mixer      amcp.MixerState
	calls      [][]string
}

type producer struct {
	name       string
	params     []string
	transition *amcp.Transition
}

type template struct {
	name    string
	label   string
	data    string
	playing bool
	step    int
}

// VideoFormats lists the video modes SetChannelFormat accepts.
var VideoFormats = []string{
	"PAL", "NTSC",
	"576p2500",
	"720p2398", "720p2400", "720p2500", "720p2997", "720p3000", "720p5000", "720p5994", "720p6000",
	"1080i5000", "1080i5994", "1080i6000",
	"1080p2398", "1080p2400", "1080p2500", "1080p2997", "1080p3000", "1080p5000", "1080p5994", "1080p6000",
	"2160p2398", "2160p2400", "2160p2500", "2160p2997", "2160p3000", "2160p5000", "2160p5994", "2160p6000",
}

// NewMemory creates a Memory executor with one channel per entry of formats.
func NewMemory(formats []string, options ...Option) *Memory {
	m := &Memory{
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(m)
	}
	for _, f := range formats {
		m.channels = append(m.channels, newChannel(f))
	}
	return m
}

// WithMediaCheck sets the function deciding whether a media name exists. Without it every name
// exists.
func WithMediaCheck(exists func(name string) bool) Option {
	return func(m *Memory) {
		m.exists = exists
	}
}

// WithLogger sets the logger for the executor.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Memory) {
		m.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "executor"),
		)
	}
}

func newChannel(format string) *channel {
	return &channel{
		format:    format,
		layers:    make(map[int]*layer),
		consumers: make(map[int][]string),
		templates: make(map[int]map[int]*template),
	}
}

func (p *producer) Name() string { return p.name }

// CreateProducer implements amcp.Executor.
func (m *Memory) CreateProducer(_ context.Context, ch, _ int, params []string) (amcp.Producer, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("no producer parameters")
	}
	if _, err := m.channel(ch); err != nil {
		return nil, err
	}

	name := params[0]
	isColor := strings.HasPrefix(name, "#") || strings.EqualFold(name, "EMPTY")
	if !isColor && m.exists != nil && !m.exists(name) {
		return nil, fmt.Errorf("%w: %s", amcp.ErrMediaNotFound, name)
	}

	return &producer{name: strings.ToUpper(name), params: slices.Clone(params)}, nil
}

// CreateTransition implements amcp.Executor.
func (m *Memory) CreateTransition(_ context.Context, _, _ int, dest amcp.Producer, t amcp.Transition,
) (amcp.Producer, error) {
	p, ok := dest.(*producer)
	if !ok {
		return nil, fmt.Errorf("unknown producer type %T", dest)
	}
	wrapped := *p
	wrapped.transition = &t
	return &wrapped, nil
}

// Stage implements amcp.Executor.
func (m *Memory) Stage(_ context.Context, call amcp.StageCall) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(call.Channel)
	if err != nil {
		return "", err
	}

	m.logger.Debug("stage call",
		slog.String("method", string(call.Method)),
		slog.Int("channel", call.Channel),
		slog.Int("layer", call.Layer),
	)

	switch call.Method {
	case amcp.StageLoad:
		l := c.layer(call.Layer)
		if call.Producer == nil {
			// Preview the background.
			if l.background == nil {
				return "", fmt.Errorf("no background producer on layer %d", call.Layer)
			}
			l.foreground = l.background
		} else {
			p, err := asProducer(call.Producer)
			if err != nil {
				return "", err
			}
			l.foreground = p
		}
		l.background = nil
		l.playing = false
		l.paused = true
	case amcp.StageLoadBG:
		p, err := asProducer(call.Producer)
		if err != nil {
			return "", err
		}
		l := c.layer(call.Layer)
		l.background = p
		l.auto = call.Auto
	case amcp.StagePlay:
		l := c.layer(call.Layer)
		if l.background != nil {
			l.foreground = l.background
			l.background = nil
		}
		if l.foreground == nil {
			return "", nil
		}
		l.playing = true
		l.paused = false
	case amcp.StagePause:
		c.layer(call.Layer).paused = true
	case amcp.StageResume:
		c.layer(call.Layer).paused = false
	case amcp.StageStop:
		l := c.layer(call.Layer)
		l.foreground = nil
		l.playing = false
		l.paused = false
	case amcp.StageClear:
		if call.Layer < 0 {
			clear(c.layers)
			return "", nil
		}
		delete(c.layers, call.Layer)
	case amcp.StageInvoke:
		l, ok := c.layers[call.Layer]
		if !ok || l.foreground == nil {
			return "", fmt.Errorf("no producer on layer %d", call.Layer)
		}
		l.calls = append(l.calls, slices.Clone(call.Params))
		if len(call.Params) > 0 && strings.EqualFold(call.Params[0], "NAME") {
			return l.foreground.name, nil
		}
	case amcp.StageSwapLayer:
		other, err := m.channelLocked(call.OtherChannel)
		if err != nil {
			return "", err
		}
		a, b := c.layer(call.Layer), other.layer(call.OtherLayer)
		*a, *b = *b, *a
		if !call.SwapTransforms {
			a.mixer, b.mixer = b.mixer, a.mixer
		}
	case amcp.StageSwapStages:
		other, err := m.channelLocked(call.OtherChannel)
		if err != nil {
			return "", err
		}
		c.layers, other.layers = other.layers, c.layers
		if !call.SwapTransforms {
			swapMixers(c.layers, other.layers)
		}
	default:
		return "", fmt.Errorf("%w: stage method %q", amcp.ErrNotSupported, call.Method)
	}

	return "", nil
}

// ApplyTransforms implements amcp.Executor. Tweens complete instantly.
func (m *Memory) ApplyTransforms(_ context.Context, ch int, transforms []amcp.Transform) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(ch)
	if err != nil {
		return err
	}
	for _, t := range transforms {
		if t.Apply == nil {
			continue
		}
		t.Apply(&c.layer(t.Layer).mixer)
	}
	return nil
}

// LayerMixer implements amcp.Executor.
func (m *Memory) LayerMixer(_ context.Context, ch, layerIndex int) (amcp.MixerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(ch)
	if err != nil {
		return amcp.MixerState{}, err
	}
	if l, ok := c.layers[layerIndex]; ok {
		return l.mixer, nil
	}
	return amcp.DefaultMixerState(), nil
}

// ClearMixer implements amcp.Executor.
func (m *Memory) ClearMixer(_ context.Context, ch, layerIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(ch)
	if err != nil {
		return err
	}
	for index, l := range c.layers {
		if layerIndex < 0 || index == layerIndex {
			l.mixer = amcp.DefaultMixerState()
		}
	}
	return nil
}

// AddConsumer implements amcp.Executor. A negative index picks the next free one.
func (m *Memory) AddConsumer(_ context.Context, ch, index int, params []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(ch)
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return fmt.Errorf("no consumer parameters")
	}
	if index < 0 {
		index = 0
		for {
			if _, used := c.consumers[index]; !used {
				break
			}
			index++
		}
	}
	c.consumers[index] = slices.Clone(params)
	return nil
}

// RemoveConsumer implements amcp.Executor. A negative index removes the consumer created with the
// same parameters.
func (m *Memory) RemoveConsumer(_ context.Context, ch, index int, params []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(ch)
	if err != nil {
		return err
	}
	if index >= 0 {
		if _, ok := c.consumers[index]; !ok {
			return fmt.Errorf("no consumer at index %d", index)
		}
		delete(c.consumers, index)
		return nil
	}
	for i, p := range c.consumers {
		if slices.EqualFunc(p, params, strings.EqualFold) {
			delete(c.consumers, i)
			return nil
		}
	}
	return fmt.Errorf("no consumer matching %q", strings.Join(params, " "))
}

// SetChannelFormat implements amcp.Executor.
func (m *Memory) SetChannelFormat(_ context.Context, ch int, format string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(ch)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(VideoFormats, func(f string) bool { return strings.EqualFold(f, format) })
	if idx < 0 {
		return fmt.Errorf("%w: %s", amcp.ErrInvalidFormat, format)
	}
	c.format = VideoFormats[idx]
	return nil
}

// ChannelInfo implements amcp.Executor.
func (m *Memory) ChannelInfo(_ context.Context, ch int) (amcp.ChannelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(ch)
	if err != nil {
		return amcp.ChannelInfo{}, err
	}

	info := amcp.ChannelInfo{
		Index:  ch + 1,
		Format: c.format,
	}
	for _, index := range slices.Sorted(maps.Keys(c.consumers)) {
		info.Consumers = append(info.Consumers, strings.Join(c.consumers[index], " "))
	}
	for _, index := range slices.Sorted(maps.Keys(c.layers)) {
		l := c.layers[index]
		li := amcp.LayerInfo{Index: index, Playing: l.playing, Paused: l.paused}
		if l.foreground != nil {
			li.Foreground = l.foreground.name
		}
		if l.background != nil {
			li.Background = l.background.name
		}
		info.Layers = append(info.Layers, li)
	}
	return info, nil
}

// Template implements amcp.Executor.
func (m *Memory) Template(_ context.Context, call amcp.TemplateCall) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.channelLocked(call.Channel)
	if err != nil {
		return "", err
	}

	hosts := c.templates[call.Layer]
	if hosts == nil {
		hosts = make(map[int]*template)
		c.templates[call.Layer] = hosts
	}

	op := strings.ToUpper(call.Op)
	if op == "ADD" {
		hosts[call.CGLayer] = &template{
			name:    call.Template,
			label:   call.Label,
			data:    call.Data,
			playing: call.PlayOnLoad,
		}
		return "", nil
	}
	if op == "CLEAR" {
		delete(c.templates, call.Layer)
		return "", nil
	}
	if op == "INFO" {
		return templateInfo(hosts, call.CGLayer)
	}

	t, ok := hosts[call.CGLayer]
	if !ok {
		return "", fmt.Errorf("%w: no template on cg layer %d", amcp.ErrMediaNotFound, call.CGLayer)
	}

	switch op {
	case "PLAY":
		t.playing = true
	case "STOP":
		t.playing = false
	case "NEXT":
		t.step++
	case "REMOVE":
		delete(hosts, call.CGLayer)
	case "UPDATE":
		t.data = call.Data
	case "INVOKE":
		return "", nil
	default:
		return "", fmt.Errorf("%w: template operation %q", amcp.ErrNotSupported, call.Op)
	}
	return "", nil
}

// Layer returns a snapshot of a layer. ok is false when the layer has never been used.
func (m *Memory) Layer(ch, layerIndex int) (LayerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch < 0 || ch >= len(m.channels) {
		return LayerState{}, false
	}
	l, ok := m.channels[ch].layers[layerIndex]
	if !ok {
		return LayerState{}, false
	}

	state := LayerState{
		Playing: l.playing,
		Paused:  l.paused,
		Auto:    l.auto,
		Mixer:   l.mixer,
		Calls:   slices.Clone(l.calls),
	}
	if l.foreground != nil {
		state.Foreground = l.foreground.name
	}
	if l.background != nil {
		state.Background = l.background.name
		state.Transition = l.background.transition
	}
	return state, true
}

// Consumers returns the consumer parameters of a channel by index.
func (m *Memory) Consumers(ch int) map[int][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch < 0 || ch >= len(m.channels) {
		return nil
	}
	return maps.Clone(m.channels[ch].consumers)
}

// Format returns the video format of a channel.
func (m *Memory) Format(ch int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch < 0 || ch >= len(m.channels) {
		return ""
	}
	return m.channels[ch].format
}

func (m *Memory) channel(ch int) (*channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.channelLocked(ch)
}

func (m *Memory) channelLocked(ch int) (*channel, error) {
	if ch < 0 || ch >= len(m.channels) {
		return nil, fmt.Errorf("channel %d does not exist", ch+1)
	}
	return m.channels[ch], nil
}

func (c *channel) layer(index int) *layer {
	l, ok := c.layers[index]
	if !ok {
		l = &layer{mixer: amcp.DefaultMixerState()}
		c.layers[index] = l
	}
	return l
}

func asProducer(p amcp.Producer) (*producer, error) {
	if p == nil {
		return nil, fmt.Errorf("no producer")
	}
	mp, ok := p.(*producer)
	if !ok {
		return nil, fmt.Errorf("unknown producer type %T", p)
	}
	return mp, nil
}

// swapMixers exchanges the mixer states of equally indexed layers back after a stage swap.
func swapMixers(a, b map[int]*layer) {
	for index, la := range a {
		if lb, ok := b[index]; ok {
			la.mixer, lb.mixer = lb.mixer, la.mixer
		}
	}
}

type templateXML struct {
	XMLName xml.Name `xml:"template"`
	Layer   int      `xml:"layer,attr"`
	Name    string   `xml:"name"`
	Label   string   `xml:"label,omitempty"`
	Playing bool     `xml:"playing"`
}

func templateInfo(hosts map[int]*template, cgLayer int) (string, error) {
	type templatesXML struct {
		XMLName   xml.Name      `xml:"templates"`
		Templates []templateXML `xml:"template"`
	}

	var out templatesXML
	for _, index := range slices.SortedFunc(maps.Keys(hosts), cmp.Compare[int]) {
		if cgLayer >= 0 && index != cgLayer {
			continue
		}
		t := hosts[index]
		out.Templates = append(out.Templates, templateXML{Layer: index, Name: t.name, Label: t.label, Playing: t.playing})
	}

	data, err := xml.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template info: %w", err)
	}
	return string(data), nil
}
