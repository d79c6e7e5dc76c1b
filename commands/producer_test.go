package commands_test

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/MegaGrindStone/go-amcp"
)

func TestLoadBG(t *testing.T) {
	tests := []struct {
		name           string
		line           string
		wantReply      []string
		wantBackground string
		wantAuto       bool
		wantBasic      amcp.BasicTransition
		wantSting      *amcp.StingTransition
	}{
		{
			name:           "plain clip",
			line:           "LOADBG 1-10 amb",
			wantReply:      []string{"202 LOADBG OK"},
			wantBackground: "AMB",
			wantBasic:      amcp.DefaultTransition(),
		},
		{
			name:           "mix with auto",
			line:           "LOADBG 1-10 AMB MIX 25 AUTO",
			wantReply:      []string{"202 LOADBG OK"},
			wantBackground: "AMB",
			wantAuto:       true,
			wantBasic: amcp.BasicTransition{
				Duration:  25,
				Type:      amcp.TransitionMix,
				Direction: amcp.DirectionFromLeft,
				Tweener:   amcp.DefaultTweener,
			},
		},
		{
			name:           "producer option value is not a duration",
			line:           "LOADBG 1-10 AMB SEEK 10",
			wantReply:      []string{"202 LOADBG OK"},
			wantBackground: "AMB",
			wantBasic:      amcp.DefaultTransition(),
		},
		{
			name:           "sting",
			line:           "LOADBG 1-10 AMB STING mask 5",
			wantReply:      []string{"202 LOADBG OK"},
			wantBackground: "AMB",
			wantBasic:      amcp.DefaultTransition(),
			wantSting:      &amcp.StingTransition{MaskFilename: "mask", TriggerPoint: 5},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)

			assert.Equal(t, h.do(tc.line), tc.wantReply)

			state := h.layer(t, 0, 10)
			assert.Equal(t, state.Background, tc.wantBackground)
			assert.Equal(t, state.Auto, tc.wantAuto)
			if state.Transition == nil {
				t.Fatal("expected a transition on the background producer")
			}
			assert.Equal(t, state.Transition.Basic, tc.wantBasic)
			assert.Equal(t, state.Transition.Sting, tc.wantSting)
		})
	}
}

func TestLoadBGMissingMedia(t *testing.T) {
	h := newHarness(t)
	h.run(t, "PLAY 1-10 AMB")

	assert.Equal(t, h.do("LOADBG 1-10 MISSING"), []string{"500 FAILED"})
	assert.Equal(t, h.layer(t, 0, 10).Foreground, "AMB")

	assert.Equal(t, h.do("LOADBG 1-10 MISSING CLEAR_ON_404"), []string{"500 FAILED"})
	_, ok := h.exec.Layer(0, 10)
	assert.Equal(t, ok, false)

	assert.Equal(t, h.do("LOADBG 1-10"), []string{"402 LOADBG ERROR"})
}

func TestStageCommands(t *testing.T) {
	tests := []struct {
		name      string
		setup     []string
		line      string
		wantReply []string
		want      func(t *testing.T, h *harness)
	}{
		{
			name:      "play promotes the background",
			setup:     []string{"LOADBG 1-10 AMB"},
			line:      "PLAY 1-10",
			wantReply: []string{"202 PLAY OK"},
			want: func(t *testing.T, h *harness) {
				state := h.layer(t, 0, 10)
				assert.Equal(t, state.Foreground, "AMB")
				assert.Equal(t, state.Background, "")
				assert.Equal(t, state.Playing, true)
			},
		},
		{
			name:      "play with a clip",
			line:      "PLAY 2 logo",
			wantReply: []string{"202 PLAY OK"},
			want: func(t *testing.T, h *harness) {
				state := h.layer(t, 1, 0)
				assert.Equal(t, state.Foreground, "LOGO")
				assert.Equal(t, state.Playing, true)
			},
		},
		{
			name:      "play missing clip",
			line:      "PLAY 1-10 MISSING",
			wantReply: []string{"500 FAILED"},
		},
		{
			name:      "load shows the first frame",
			line:      "LOAD 1-10 AMB",
			wantReply: []string{"202 LOAD OK"},
			want: func(t *testing.T, h *harness) {
				state := h.layer(t, 0, 10)
				assert.Equal(t, state.Foreground, "AMB")
				assert.Equal(t, state.Playing, false)
				assert.Equal(t, state.Paused, true)
			},
		},
		{
			name:      "load previews the background",
			setup:     []string{"LOADBG 1-10 AMB"},
			line:      "LOAD 1-10",
			wantReply: []string{"202 LOAD OK"},
			want: func(t *testing.T, h *harness) {
				state := h.layer(t, 0, 10)
				assert.Equal(t, state.Foreground, "AMB")
				assert.Equal(t, state.Background, "")
			},
		},
		{
			name:      "load without background",
			line:      "LOAD 1-10",
			wantReply: []string{"500 FAILED"},
		},
		{
			name:      "pause",
			setup:     []string{"PLAY 1-10 AMB"},
			line:      "PAUSE 1-10",
			wantReply: []string{"202 PAUSE OK"},
			want: func(t *testing.T, h *harness) {
				assert.Equal(t, h.layer(t, 0, 10).Paused, true)
			},
		},
		{
			name:      "resume",
			setup:     []string{"PLAY 1-10 AMB", "PAUSE 1-10"},
			line:      "RESUME 1-10",
			wantReply: []string{"202 RESUME OK"},
			want: func(t *testing.T, h *harness) {
				assert.Equal(t, h.layer(t, 0, 10).Paused, false)
			},
		},
		{
			name:      "stop",
			setup:     []string{"PLAY 1-10 AMB"},
			line:      "STOP 1-10",
			wantReply: []string{"202 STOP OK"},
			want: func(t *testing.T, h *harness) {
				state := h.layer(t, 0, 10)
				assert.Equal(t, state.Foreground, "")
				assert.Equal(t, state.Playing, false)
			},
		},
		{
			name:      "clear a layer",
			setup:     []string{"PLAY 1-10 AMB", "PLAY 1-20 AMB"},
			line:      "CLEAR 1-10",
			wantReply: []string{"202 CLEAR OK"},
			want: func(t *testing.T, h *harness) {
				_, ok := h.exec.Layer(0, 10)
				assert.Equal(t, ok, false)
				_, ok = h.exec.Layer(0, 20)
				assert.Equal(t, ok, true)
			},
		},
		{
			name:      "clear a channel",
			setup:     []string{"PLAY 1-10 AMB", "PLAY 1-20 AMB", "PLAY 2-10 AMB"},
			line:      "CLEAR 1",
			wantReply: []string{"202 CLEAR OK"},
			want: func(t *testing.T, h *harness) {
				_, ok := h.exec.Layer(0, 10)
				assert.Equal(t, ok, false)
				_, ok = h.exec.Layer(0, 20)
				assert.Equal(t, ok, false)
				_, ok = h.exec.Layer(1, 10)
				assert.Equal(t, ok, true)
			},
		},
		{
			name:      "clear all",
			setup:     []string{"PLAY 1-10 AMB", "PLAY 2-10 AMB"},
			line:      "CLEAR ALL",
			wantReply: []string{"202 CLEAR ALL OK"},
			want: func(t *testing.T, h *harness) {
				_, ok := h.exec.Layer(0, 10)
				assert.Equal(t, ok, false)
				_, ok = h.exec.Layer(1, 10)
				assert.Equal(t, ok, false)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.run(t, tc.setup...)

			assert.Equal(t, h.do(tc.line), tc.wantReply)
			if tc.want != nil {
				tc.want(t, h)
			}
		})
	}
}

func TestCall(t *testing.T) {
	h := newHarness(t)
	h.run(t, "PLAY 1-10 AMB")

	assert.Equal(t, h.do("CALL 1-10 NAME"), []string{"201 CALL OK", "AMB"})
	assert.Equal(t, h.do("CALL 1-10 SEEK 10"), []string{"202 CALL OK"})
	assert.Equal(t, h.layer(t, 0, 10).Calls, [][]string{{"NAME"}, {"SEEK", "10"}})

	assert.Equal(t, h.do("CALL 1-11 SEEK 10"), []string{"501 CALL FAILED"})
	assert.Equal(t, h.do("CALL 1-10"), []string{"402 CALL ERROR"})
}

func TestSwap(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantReply []string
		want      func(t *testing.T, h *harness)
	}{
		{
			name:      "layers keep their transforms",
			line:      "SWAP 1-10 2-20",
			wantReply: []string{"202 SWAP OK"},
			want: func(t *testing.T, h *harness) {
				a, b := h.layer(t, 0, 10), h.layer(t, 1, 20)
				assert.Equal(t, a.Foreground, "LOGO")
				assert.Equal(t, b.Foreground, "AMB")
				assert.Equal(t, a.Mixer.Opacity, 0.5)
				assert.Equal(t, b.Mixer.Opacity, 1.0)
			},
		},
		{
			name:      "layers with transforms",
			line:      "SWAP 1-10 2-20 TRANSFORMS",
			wantReply: []string{"202 SWAP OK"},
			want: func(t *testing.T, h *harness) {
				a, b := h.layer(t, 0, 10), h.layer(t, 1, 20)
				assert.Equal(t, a.Foreground, "LOGO")
				assert.Equal(t, a.Mixer.Opacity, 1.0)
				assert.Equal(t, b.Mixer.Opacity, 0.5)
			},
		},
		{
			name:      "channels",
			line:      "SWAP 1 2",
			wantReply: []string{"202 SWAP OK"},
			want: func(t *testing.T, h *harness) {
				_, ok := h.exec.Layer(0, 10)
				assert.Equal(t, ok, false)
				assert.Equal(t, h.layer(t, 0, 20).Foreground, "LOGO")
				assert.Equal(t, h.layer(t, 1, 10).Foreground, "AMB")
			},
		},
		{
			name:      "unknown channel",
			line:      "SWAP 1 3",
			wantReply: []string{"401 SWAP ERROR"},
		},
		{
			name:      "malformed channel",
			line:      "SWAP 1-10 x-20",
			wantReply: []string{"401 SWAP ERROR"},
		},
		{
			name:      "layer with channel",
			line:      "SWAP 1-10 2",
			wantReply: []string{"402 SWAP ERROR"},
		},
		{
			name:      "malformed layer",
			line:      "SWAP 1-10 2-x",
			wantReply: []string{"402 SWAP ERROR"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.run(t, "PLAY 1-10 AMB", "PLAY 2-20 LOGO", "MIXER 1-10 OPACITY 0.5")

			assert.Equal(t, h.do(tc.line), tc.wantReply)
			if tc.want != nil {
				tc.want(t, h)
			}
		})
	}
}

func TestConsumers(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, h.do("ADD 1 STREAM udp://<CLIENT_IP_ADDRESS>:9250"), []string{"202 ADD OK"})
	assert.Equal(t, h.do("ADD 1-5 SCREEN"), []string{"202 ADD OK"})
	assert.Equal(t, h.do("PRINT 1"), []string{"202 PRINT OK"})
	assert.Equal(t, h.exec.Consumers(0), map[int][]string{
		0: {"STREAM", "udp://127.0.0.1:9250"},
		1: {"IMAGE"},
		5: {"SCREEN"},
	})

	assert.Equal(t, h.do("REMOVE 1 STREAM udp://<CLIENT_IP_ADDRESS>:9250"), []string{"202 REMOVE OK"})
	assert.Equal(t, h.do("REMOVE 1-5"), []string{"202 REMOVE OK"})
	assert.Equal(t, h.exec.Consumers(0), map[int][]string{1: {"IMAGE"}})

	assert.Equal(t, h.do("REMOVE 1"), []string{"402 REMOVE ERROR"})
	assert.Equal(t, h.do("REMOVE 1-7"), []string{"500 FAILED"})
	assert.Equal(t, h.do("ADD 1"), []string{"402 ADD ERROR"})
}

func TestSetMode(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, h.do("SET 2 MODE 1080p5000"), []string{"202 SET MODE OK"})
	assert.Equal(t, h.exec.Format(1), "1080p5000")

	assert.Equal(t, h.do("SET 2 MODE 4k"), []string{"402 SET MODE ERROR"})
	assert.Equal(t, h.exec.Format(1), "1080p5000")
}
