package amcp

import (
	"strconv"
	"strings"
)

// TransitionType names a basic layer transition.
type TransitionType string

// TransitionDirection is the side a transition enters from.
type TransitionDirection string

// Transition types and directions accepted by LOAD, LOADBG and PLAY.
const (
	TransitionCut   TransitionType = "cut"
	TransitionMix   TransitionType = "mix"
	TransitionPush  TransitionType = "push"
	TransitionSlide TransitionType = "slide"
	TransitionWipe  TransitionType = "wipe"

	DirectionFromLeft  TransitionDirection = "from_left"
	DirectionFromRight TransitionDirection = "from_right"

	// DefaultTweener is used when a transition names no tween.
	DefaultTweener = "linear"
)

// BasicTransition describes a cut/mix/push/slide/wipe transition.
type BasicTransition struct {
	Duration  int
	Type      TransitionType
	Direction TransitionDirection
	Tweener   string
}

// StingTransition describes a transition driven by a mask clip and an optional overlay.
type StingTransition struct {
	MaskFilename      string
	OverlayFilename   string
	TriggerPoint      int
	AudioFadeStart    int
	AudioFadeDuration int
}

// Transition is the transition applied when a background producer is promoted. Sting takes
// precedence over Basic when set.
type Transition struct {
	Basic BasicTransition
	Sting *StingTransition
}

// DefaultTransition returns the all-defaults transition, an immediate cut.
func DefaultTransition() BasicTransition {
	return BasicTransition{
		Duration:  0,
		Type:      TransitionCut,
		Direction: DirectionFromLeft,
		Tweener:   DefaultTweener,
	}
}

// MatchStingTransition looks for a STING marker in params. The token following the marker is
// either a parameter list with MASK, TRIGGER_POINT, OVERLAY, AUDIO_FADE_START and
// AUDIO_FADE_DURATION keys, or the positional form mask [trigger_point] [overlay]. It returns
// false when there is no marker or no mask could be resolved.
func MatchStingTransition(params []string) (StingTransition, bool) {
	idx := -1
	for i, p := range params {
		if strings.EqualFold(p, "STING") {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(params) {
		return StingTransition{}, false
	}

	rest := params[idx+1:]

	var sting StingTransition
	if strings.HasPrefix(rest[0], "(") {
		args := ParseArgs(rest[0])
		sting.MaskFilename = args["MASK"]
		sting.OverlayFilename = args["OVERLAY"]
		sting.TriggerPoint = atoiOrZero(args["TRIGGER_POINT"])
		sting.AudioFadeStart = atoiOrZero(args["AUDIO_FADE_START"])
		sting.AudioFadeDuration = atoiOrZero(args["AUDIO_FADE_DURATION"])
	} else {
		sting.MaskFilename = rest[0]
		if len(rest) > 1 {
			sting.TriggerPoint = atoiOrZero(rest[1])
		}
		if len(rest) > 2 {
			sting.OverlayFilename = rest[2]
		}
	}

	if sting.MaskFilename == "" {
		return StingTransition{}, false
	}

	return sting, true
}

// MatchBasicTransition scans params for the sequence [type] duration [tween] [direction], in that
// order. The duration gates the match: when the first candidate sequence has no positive duration,
// or no sequence is found, DefaultTransition is returned.
func MatchBasicTransition(params []string) BasicTransition {
	for i := range params {
		j := i

		typ := TransitionCut
		if t, ok := parseTransitionType(params[j]); ok {
			typ = t
			j++
		}
		if j >= len(params) {
			continue
		}

		duration, err := strconv.Atoi(params[j])
		if err != nil {
			continue
		}
		j++

		if duration <= 0 {
			return DefaultTransition()
		}

		tr := BasicTransition{
			Duration:  duration,
			Type:      typ,
			Direction: DirectionFromLeft,
			Tweener:   DefaultTweener,
		}

		if j < len(params) && isTweenName(params[j]) {
			tr.Tweener = strings.ToLower(params[j])
			j++
		}
		if j < len(params) {
			if d, ok := parseTransitionDirection(params[j]); ok {
				tr.Direction = d
			}
		}

		return tr
	}

	return DefaultTransition()
}

func parseTransitionType(s string) (TransitionType, bool) {
	switch strings.ToUpper(s) {
	case "CUT":
		return TransitionCut, true
	case "MIX":
		return TransitionMix, true
	case "PUSH":
		return TransitionPush, true
	case "SLIDE":
		return TransitionSlide, true
	case "WIPE":
		return TransitionWipe, true
	}
	return "", false
}

// LEFT and RIGHT name the direction of travel, so they enter from the opposite side.
func parseTransitionDirection(s string) (TransitionDirection, bool) {
	switch strings.ToUpper(s) {
	case "FROMLEFT", "RIGHT":
		return DirectionFromLeft, true
	case "FROMRIGHT", "LEFT":
		return DirectionFromRight, true
	}
	return "", false
}

func isTweenName(s string) bool {
	u := strings.ToUpper(s)
	return u == "LINEAR" || strings.HasPrefix(u, "EASE")
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
