package amcp_test

import (
	"testing"

	"github.com/MegaGrindStone/go-amcp"
)

func TestMatchBasicTransition(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		want   amcp.BasicTransition
	}{
		{
			name:   "no params",
			params: nil,
			want:   amcp.DefaultTransition(),
		},
		{
			name:   "mix with duration",
			params: []string{"MIX", "25"},
			want: amcp.BasicTransition{
				Duration:  25,
				Type:      amcp.TransitionMix,
				Direction: amcp.DirectionFromLeft,
				Tweener:   amcp.DefaultTweener,
			},
		},
		{
			name:   "duration alone is a timed cut",
			params: []string{"10"},
			want: amcp.BasicTransition{
				Duration:  10,
				Type:      amcp.TransitionCut,
				Direction: amcp.DirectionFromLeft,
				Tweener:   amcp.DefaultTweener,
			},
		},
		{
			name:   "tween and direction",
			params: []string{"push", "20", "EASEINSINE", "LEFT"},
			want: amcp.BasicTransition{
				Duration:  20,
				Type:      amcp.TransitionPush,
				Direction: amcp.DirectionFromRight,
				Tweener:   "easeinsine",
			},
		},
		{
			name:   "direction without tween",
			params: []string{"WIPE", "10", "FROMRIGHT"},
			want: amcp.BasicTransition{
				Duration:  10,
				Type:      amcp.TransitionWipe,
				Direction: amcp.DirectionFromRight,
				Tweener:   amcp.DefaultTweener,
			},
		},
		{
			name:   "right travels from the left",
			params: []string{"SLIDE", "5", "RIGHT"},
			want: amcp.BasicTransition{
				Duration:  5,
				Type:      amcp.TransitionSlide,
				Direction: amcp.DirectionFromLeft,
				Tweener:   amcp.DefaultTweener,
			},
		},
		{
			name:   "leading unrelated words",
			params: []string{"LOOP", "MIX", "12"},
			want: amcp.BasicTransition{
				Duration:  12,
				Type:      amcp.TransitionMix,
				Direction: amcp.DirectionFromLeft,
				Tweener:   amcp.DefaultTweener,
			},
		},
		{
			name:   "type without duration",
			params: []string{"MIX"},
			want:   amcp.DefaultTransition(),
		},
		{
			name:   "zero duration",
			params: []string{"MIX", "0", "LINEAR"},
			want:   amcp.DefaultTransition(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := amcp.MatchBasicTransition(tt.params)
			if got != tt.want {
				t.Errorf("MatchBasicTransition(%q) = %+v, want %+v", tt.params, got, tt.want)
			}
		})
	}
}

func TestMatchStingTransition(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		want   amcp.StingTransition
		wantOK bool
	}{
		{
			name:   "parameter list",
			params: []string{"STING", "(MASK=mask TRIGGER_POINT=10 OVERLAY=over AUDIO_FADE_START=2 AUDIO_FADE_DURATION=8)"},
			want: amcp.StingTransition{
				MaskFilename:      "mask",
				OverlayFilename:   "over",
				TriggerPoint:      10,
				AudioFadeStart:    2,
				AudioFadeDuration: 8,
			},
			wantOK: true,
		},
		{
			name:   "positional",
			params: []string{"sting", "mask", "15", "over"},
			want: amcp.StingTransition{
				MaskFilename:    "mask",
				OverlayFilename: "over",
				TriggerPoint:    15,
			},
			wantOK: true,
		},
		{
			name:   "mask only",
			params: []string{"STING", "mask"},
			want:   amcp.StingTransition{MaskFilename: "mask"},
			wantOK: true,
		},
		{
			name:   "marker without argument",
			params: []string{"STING"},
			wantOK: false,
		},
		{
			name:   "list without mask",
			params: []string{"STING", "(TRIGGER_POINT=1)"},
			wantOK: false,
		},
		{
			name:   "no marker",
			params: []string{"MIX", "10"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := amcp.MatchStingTransition(tt.params)
			if ok != tt.wantOK {
				t.Fatalf("MatchStingTransition(%q) ok = %v, want %v", tt.params, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("MatchStingTransition(%q) = %+v, want %+v", tt.params, got, tt.want)
			}
		})
	}
}
