package commands_test

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MegaGrindStone/go-amcp"
	"github.com/MegaGrindStone/go-amcp/commands"
	"github.com/MegaGrindStone/go-amcp/executor"
)

// recordingExecutor records the template calls it forwards to the in-memory executor.
type recordingExecutor struct {
	*executor.Memory

	mu        sync.Mutex
	templates []amcp.TemplateCall
}

type memoryStore struct {
	mu   sync.Mutex
	sets map[string]string
}

type mockMedia struct {
	media      []amcp.MediaInfo
	templates  []amcp.FileInfo
	fonts      []string
	thumbnails []amcp.FileInfo
	images     map[string][]byte
	generated  []string
}

type harness struct {
	exec      *recordingExecutor
	data      *memoryStore
	media     *mockMedia
	osc       *amcp.OSCSubscriptions
	level     *slog.LevelVar
	cc        *amcp.CommandContext
	strategy  *amcp.ProtocolStrategy
	client    *amcp.ClientInfo
	shutdowns []bool
}

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// newHarness wires every command to an in-memory executor with two channels. options are applied
// after the defaults, so they can remove collaborators.
func newHarness(t *testing.T, options ...amcp.ContextOption) *harness {
	t.Helper()

	cfg := amcp.DefaultConfig()
	cfg.Channels = amcp.ParseChannels("720p5000,1080i5000")

	h := &harness{
		exec: &recordingExecutor{
			Memory: executor.NewMemory([]string{"720p5000", "1080i5000"},
				executor.WithMediaCheck(func(name string) bool {
					return !strings.HasPrefix(strings.ToUpper(name), "MISSING")
				}),
			),
		},
		data:   &memoryStore{sets: make(map[string]string)},
		media:  newMockMedia(),
		osc:    amcp.NewOSCSubscriptions(),
		level:  &slog.LevelVar{},
		client: amcp.NewClientInfo("test", "127.0.0.1"),
	}

	defaults := []amcp.ContextOption{
		amcp.WithDataStore(h.data),
		amcp.WithMediaLibrary(h.media),
		amcp.WithOSC(h.osc),
		amcp.WithLogLevel(h.level),
		amcp.WithShutdownHook(func(restart bool) {
			h.shutdowns = append(h.shutdowns, restart)
		}),
	}
	h.cc = amcp.NewCommandContext(cfg, h.exec, append(defaults, options...)...)

	registry := amcp.NewRegistry()
	commands.Register(registry)
	h.strategy = amcp.NewProtocolStrategy(registry, h.cc)

	return h
}

func (h *harness) do(line string) []string {
	return h.strategy.Parse(context.Background(), h.client, line)
}

// run sends setup lines, failing the test on any error reply.
func (h *harness) run(t *testing.T, lines ...string) {
	t.Helper()

	for _, line := range lines {
		got := h.do(line)
		if len(got) == 0 || !strings.HasPrefix(got[0], "20") {
			t.Fatalf("setup %q = %q", line, got)
		}
	}
}

func (h *harness) layer(t *testing.T, ch, layer int) executor.LayerState {
	t.Helper()

	state, ok := h.exec.Layer(ch, layer)
	if !ok {
		t.Fatalf("layer %d-%d does not exist", ch+1, layer)
	}
	return state
}

func (r *recordingExecutor) Template(ctx context.Context, call amcp.TemplateCall) (string, error) {
	r.mu.Lock()
	r.templates = append(r.templates, call)
	r.mu.Unlock()

	return r.Memory.Template(ctx, call)
}

func (r *recordingExecutor) lastTemplate() amcp.TemplateCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.templates) == 0 {
		return amcp.TemplateCall{}
	}
	return r.templates[len(r.templates)-1]
}

func (s *memoryStore) Store(_ context.Context, name, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets[strings.ToLower(name)] = data
	return nil
}

func (s *memoryStore) Retrieve(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.sets[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", amcp.ErrDataNotFound, name)
	}
	return data, nil
}

func (s *memoryStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.sets))
	for name := range s.sets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *memoryStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sets[strings.ToLower(name)]; !ok {
		return fmt.Errorf("%w: %s", amcp.ErrDataNotFound, name)
	}
	delete(s.sets, strings.ToLower(name))
	return nil
}

func newMockMedia() *mockMedia {
	return &mockMedia{
		media: []amcp.MediaInfo{
			{Name: "folder/amb", Type: "MOVIE", Size: 1024, Modified: testTime, FrameRate: "0/1"},
			{Name: "logo", Type: "STILL", Size: 10, Modified: testTime, Frames: 1, FrameRate: "0/1"},
		},
		templates: []amcp.FileInfo{
			{Name: "folder/lower-third", Size: 20, Modified: testTime, Type: "html"},
		},
		fonts: []string{"Arial.ttf", "sub/Verdana.otf"},
		thumbnails: []amcp.FileInfo{
			{Name: "folder/amb", Size: 3, Modified: testTime},
		},
		images: map[string][]byte{"folder/amb": []byte("png")},
	}
}

func (m *mockMedia) Media(context.Context) ([]amcp.MediaInfo, error) {
	return m.media, nil
}

func (m *mockMedia) MediaInfo(_ context.Context, name string) (amcp.MediaInfo, error) {
	for _, info := range m.media {
		if strings.EqualFold(info.Name, name) {
			return info, nil
		}
	}
	return amcp.MediaInfo{}, fmt.Errorf("%w: %s", amcp.ErrMediaNotFound, name)
}

func (m *mockMedia) Templates(context.Context) ([]amcp.FileInfo, error) {
	return m.templates, nil
}

func (m *mockMedia) Fonts(context.Context) ([]string, error) {
	return m.fonts, nil
}

func (m *mockMedia) Thumbnails(context.Context) ([]amcp.FileInfo, error) {
	return m.thumbnails, nil
}

func (m *mockMedia) Thumbnail(_ context.Context, name string) ([]byte, error) {
	data, ok := m.images[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", amcp.ErrMediaNotFound, name)
	}
	return data, nil
}

func (m *mockMedia) GenerateThumbnail(ctx context.Context, name string) error {
	if strings.EqualFold(name, "unsupported") {
		return amcp.ErrNotSupported
	}
	if _, err := m.MediaInfo(ctx, name); err != nil {
		return err
	}
	m.generated = append(m.generated, name)
	return nil
}

func (m *mockMedia) GenerateAllThumbnails(context.Context) error {
	for _, info := range m.media {
		m.generated = append(m.generated, info.Name)
	}
	return nil
}
