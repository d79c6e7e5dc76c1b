package commands

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

// mixerProperty describes a numeric mixer property: how many values it takes and how they map to
// the layer's mixer state. Boolean properties use 0 and 1.
type mixerProperty struct {
	name  string
	count int
	get   func(amcp.MixerState) []float64
	set   func(*amcp.MixerState, []float64)
}

// BlendModes lists the names MIXER BLEND accepts.
var BlendModes = []string{
	"normal", "lighten", "darken", "multiply", "average", "add", "subtract", "difference",
	"negation", "exclusion", "screen", "overlay", "soft_light", "hard_light", "color_dodge",
	"color_burn", "linear_dodge", "linear_burn", "linear_light", "vivid_light", "pin_light",
	"hard_mix", "reflect", "glow", "phoenix", "contrast", "saturation", "color", "luminosity",
}

var mixerProperties = []mixerProperty{
	{
		name:  "KEYER",
		count: 1,
		get:   func(m amcp.MixerState) []float64 { return []float64{boolValue(m.Keyer)} },
		set:   func(m *amcp.MixerState, v []float64) { m.Keyer = v[0] != 0 },
	},
	{
		name:  "INVERT",
		count: 1,
		get:   func(m amcp.MixerState) []float64 { return []float64{boolValue(m.Invert)} },
		set:   func(m *amcp.MixerState, v []float64) { m.Invert = v[0] != 0 },
	},
	{
		name:  "OPACITY",
		count: 1,
		get:   func(m amcp.MixerState) []float64 { return []float64{m.Opacity} },
		set:   func(m *amcp.MixerState, v []float64) { m.Opacity = v[0] },
	},
	{
		name:  "BRIGHTNESS",
		count: 1,
		get:   func(m amcp.MixerState) []float64 { return []float64{m.Brightness} },
		set:   func(m *amcp.MixerState, v []float64) { m.Brightness = v[0] },
	},
	{
		name:  "SATURATION",
		count: 1,
		get:   func(m amcp.MixerState) []float64 { return []float64{m.Saturation} },
		set:   func(m *amcp.MixerState, v []float64) { m.Saturation = v[0] },
	},
	{
		name:  "CONTRAST",
		count: 1,
		get:   func(m amcp.MixerState) []float64 { return []float64{m.Contrast} },
		set:   func(m *amcp.MixerState, v []float64) { m.Contrast = v[0] },
	},
	{
		name:  "VOLUME",
		count: 1,
		get:   func(m amcp.MixerState) []float64 { return []float64{m.Volume} },
		set:   func(m *amcp.MixerState, v []float64) { m.Volume = v[0] },
	},
	{
		name:  "LEVELS",
		count: 5,
		get: func(m amcp.MixerState) []float64 {
			l := m.Levels
			return []float64{l.MinInput, l.MaxInput, l.Gamma, l.MinOutput, l.MaxOutput}
		},
		set: func(m *amcp.MixerState, v []float64) {
			m.Levels = amcp.Levels{MinInput: v[0], MaxInput: v[1], Gamma: v[2], MinOutput: v[3], MaxOutput: v[4]}
		},
	},
	{
		name:  "FILL",
		count: 4,
		get: func(m amcp.MixerState) []float64 {
			return []float64{m.FillTranslation[0], m.FillTranslation[1], m.FillScale[0], m.FillScale[1]}
		},
		set: func(m *amcp.MixerState, v []float64) {
			m.FillTranslation = [2]float64{v[0], v[1]}
			m.FillScale = [2]float64{v[2], v[3]}
		},
	},
	{
		name:  "CLIP",
		count: 4,
		get: func(m amcp.MixerState) []float64 {
			return []float64{m.ClipTranslation[0], m.ClipTranslation[1], m.ClipScale[0], m.ClipScale[1]}
		},
		set: func(m *amcp.MixerState, v []float64) {
			m.ClipTranslation = [2]float64{v[0], v[1]}
			m.ClipScale = [2]float64{v[2], v[3]}
		},
	},
	{
		name:  "ANCHOR",
		count: 2,
		get:   func(m amcp.MixerState) []float64 { return []float64{m.Anchor[0], m.Anchor[1]} },
		set:   func(m *amcp.MixerState, v []float64) { m.Anchor = [2]float64{v[0], v[1]} },
	},
	{
		name:  "CROP",
		count: 4,
		get: func(m amcp.MixerState) []float64 {
			return []float64{m.CropUpperLeft[0], m.CropUpperLeft[1], m.CropLowerRight[0], m.CropLowerRight[1]}
		},
		set: func(m *amcp.MixerState, v []float64) {
			m.CropUpperLeft = [2]float64{v[0], v[1]}
			m.CropLowerRight = [2]float64{v[2], v[3]}
		},
	},
	{
		name:  "PERSPECTIVE",
		count: 8,
		get: func(m amcp.MixerState) []float64 {
			p := m.Perspective
			return []float64{
				p.UpperLeft[0], p.UpperLeft[1], p.UpperRight[0], p.UpperRight[1],
				p.LowerRight[0], p.LowerRight[1], p.LowerLeft[0], p.LowerLeft[1],
			}
		},
		set: func(m *amcp.MixerState, v []float64) {
			m.Perspective = amcp.Perspective{
				UpperLeft:  [2]float64{v[0], v[1]},
				UpperRight: [2]float64{v[2], v[3]},
				LowerRight: [2]float64{v[4], v[5]},
				LowerLeft:  [2]float64{v[6], v[7]},
			}
		},
	},
	{
		// Degrees on the wire.
		name:  "ROTATION",
		count: 1,
		get:   func(m amcp.MixerState) []float64 { return []float64{m.Rotation * 180 / math.Pi} },
		set:   func(m *amcp.MixerState, v []float64) { m.Rotation = v[0] * math.Pi / 180 },
	},
}

// RegisterMixer installs the MIXER subcommands.
func RegisterMixer(r *amcp.Registry) {
	for _, prop := range mixerProperties {
		r.Register(amcp.ScopeChannel, "MIXER "+prop.name, amcp.Command{Handler: mixerValues(prop)})
	}
	r.Register(amcp.ScopeChannel, "MIXER BLEND", amcp.Command{Handler: mixerBlend})
	r.Register(amcp.ScopeChannel, "MIXER CHROMA", amcp.Command{Handler: mixerChroma})
	r.Register(amcp.ScopeChannel, "MIXER GRID", amcp.Command{MinParams: 1, Handler: mixerGrid})
	r.Register(amcp.ScopeChannel, "MIXER COMMIT", amcp.Command{Handler: mixerCommit})
	r.Register(amcp.ScopeChannel, "MIXER CLEAR", amcp.Command{Handler: mixerClear})
}

func mixerValues(prop mixerProperty) amcp.Handler {
	return func(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
		layer := inv.LayerOr(DefaultLayer)
		params, deferred := popDefer(inv.Parameters)

		if len(params) == 0 && !deferred {
			state, err := cc.Executor.LayerMixer(ctx, inv.Channel, layer)
			if err != nil {
				return nil, err
			}
			values := prop.get(state)
			out := make([]string, len(values))
			for i, v := range values {
				out[i] = formatFloat(v)
			}
			return amcp.OK(201, "MIXER", strings.Join(out, " ")), nil
		}

		if len(params) < prop.count {
			return nil, amcp.NewError(amcp.ParametersError, inv.Name, "%s needs %d values", prop.name, prop.count)
		}
		values, err := parseFloats(inv.Name, params[:prop.count])
		if err != nil {
			return nil, err
		}

		duration, tween, err := parseTween(inv.Name, params[prop.count:])
		if err != nil {
			return nil, err
		}

		t := amcp.Transform{
			Layer:    layer,
			Property: strings.ToLower(prop.name),
			Duration: duration,
			Tween:    tween,
			Apply:    func(m *amcp.MixerState) { prop.set(m, values) },
		}
		return applyTransforms(ctx, cc, inv.Channel, deferred, t)
	}
}

func mixerBlend(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	layer := inv.LayerOr(DefaultLayer)
	params, deferred := popDefer(inv.Parameters)

	if len(params) == 0 {
		state, err := cc.Executor.LayerMixer(ctx, inv.Channel, layer)
		if err != nil {
			return nil, err
		}
		return amcp.OK(201, "MIXER", state.BlendMode), nil
	}

	mode := strings.ToLower(params[0])
	if !slices.Contains(BlendModes, mode) {
		return nil, amcp.NewError(amcp.ParametersError, inv.Name, "unknown blend mode %q", params[0])
	}

	t := amcp.Transform{
		Layer:    layer,
		Property: "blend",
		Tween:    amcp.DefaultTweener,
		Apply:    func(m *amcp.MixerState) { m.BlendMode = mode },
	}
	return applyTransforms(ctx, cc, inv.Channel, deferred, t)
}

// mixerChroma accepts "0" to disable, the full form "<enable> <target_hue> <hue_width>
// <min_saturation> <min_brightness> <softness> <spill_suppress> <spill_suppress_saturation>
// <show_mask>" and the older "<GREEN|BLUE|NONE> <threshold> <softness> <spill>" form, each followed
// by an optional duration and tween.
func mixerChroma(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	layer := inv.LayerOr(DefaultLayer)
	params, deferred := popDefer(inv.Parameters)

	if len(params) == 0 {
		state, err := cc.Executor.LayerMixer(ctx, inv.Channel, layer)
		if err != nil {
			return nil, err
		}
		c := state.Chroma
		values := []float64{
			boolValue(c.Enable), c.TargetHue, c.HueWidth, c.MinSaturation, c.MinBrightness, c.Softness,
			c.SpillSuppress, c.SpillSuppressSaturation, boolValue(c.ShowMask),
		}
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = formatFloat(v)
		}
		return amcp.OK(201, "MIXER", strings.Join(out, " ")), nil
	}

	var (
		chroma amcp.Chroma
		rest   []string
	)
	switch key := strings.ToUpper(params[0]); {
	case key == "GREEN" || key == "BLUE":
		if len(params) < 4 {
			return nil, amcp.NewError(amcp.ParametersError, inv.Name, "legacy chroma needs 4 values")
		}
		values, err := parseFloats(inv.Name, params[1:4])
		if err != nil {
			return nil, err
		}
		chroma = amcp.Chroma{
			Enable:        true,
			TargetHue:     120,
			HueWidth:      0.1,
			MinSaturation: values[0],
			MinBrightness: values[0],
			Softness:      values[1],
			SpillSuppress: values[2],
		}
		if key == "BLUE" {
			chroma.TargetHue = 240
		}
		rest = params[4:]
	case key == "NONE" || (key == "0" && len(params) < 9):
		rest = params[1:]
	default:
		if len(params) < 9 {
			return nil, amcp.NewError(amcp.ParametersError, inv.Name, "chroma needs 9 values")
		}
		values, err := parseFloats(inv.Name, params[:9])
		if err != nil {
			return nil, err
		}
		chroma = amcp.Chroma{
			Enable:                  values[0] != 0,
			TargetHue:               values[1],
			HueWidth:                values[2],
			MinSaturation:           values[3],
			MinBrightness:           values[4],
			Softness:                values[5],
			SpillSuppress:           values[6],
			SpillSuppressSaturation: values[7],
			ShowMask:                values[8] != 0,
		}
		rest = params[9:]
	}

	duration, tween, err := parseTween(inv.Name, rest)
	if err != nil {
		return nil, err
	}

	t := amcp.Transform{
		Layer:    layer,
		Property: "chroma",
		Duration: duration,
		Tween:    tween,
		Apply:    func(m *amcp.MixerState) { m.Chroma = chroma },
	}
	return applyTransforms(ctx, cc, inv.Channel, deferred, t)
}

// mixerGrid splits the channel into n by n cells and fills layers 1 to n*n, row by row.
func mixerGrid(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	params, deferred := popDefer(inv.Parameters)
	if len(params) == 0 {
		return nil, amcp.NewError(amcp.ParametersError, inv.Name, "grid size required")
	}

	n, err := parseInt(inv.Name, params[0])
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, amcp.NewError(amcp.ParametersError, inv.Name, "invalid grid size %d", n)
	}

	duration, tween, err := parseTween(inv.Name, params[1:])
	if err != nil {
		return nil, err
	}

	delta := 1 / float64(n)
	transforms := make([]amcp.Transform, 0, n*n)
	for y := range n {
		for x := range n {
			translation := [2]float64{float64(x) * delta, float64(y) * delta}
			transforms = append(transforms, amcp.Transform{
				Layer:    x + y*n + 1,
				Property: "grid",
				Duration: duration,
				Tween:    tween,
				Apply: func(m *amcp.MixerState) {
					m.FillTranslation = translation
					m.FillScale = [2]float64{delta, delta}
					m.ClipTranslation = translation
					m.ClipScale = [2]float64{delta, delta}
				},
			})
		}
	}
	return applyTransforms(ctx, cc, inv.Channel, deferred, transforms...)
}

func mixerCommit(_ context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	ch := inv.Channel
	return amcp.Deferred(func(ctx context.Context) (string, error) {
		transforms := cc.Deferred().Take(ch)
		if len(transforms) > 0 {
			if err := cc.Executor.ApplyTransforms(ctx, ch, transforms); err != nil {
				return "", err
			}
		}
		return string(amcp.OK(202, "MIXER")), nil
	}), nil
}

func mixerClear(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	if err := cc.Executor.ClearMixer(ctx, inv.Channel, inv.LayerOr(-1)); err != nil {
		return nil, err
	}
	return amcp.OK(202, "MIXER"), nil
}

func applyTransforms(ctx context.Context, cc *amcp.CommandContext, ch int, deferred bool,
	transforms ...amcp.Transform,
) (amcp.Result, error) {
	if deferred {
		cc.Deferred().Add(ch, transforms...)
		return amcp.OK(202, "MIXER"), nil
	}
	if err := cc.Executor.ApplyTransforms(ctx, ch, transforms); err != nil {
		return nil, err
	}
	return amcp.OK(202, "MIXER"), nil
}

// popDefer removes a trailing DEFER keyword.
func popDefer(params []string) ([]string, bool) {
	if n := len(params); n > 0 && strings.EqualFold(params[n-1], "DEFER") {
		return params[:n-1], true
	}
	return params, false
}

// parseTween reads the optional "[duration [tween]]" that follows mixer values.
func parseTween(command string, params []string) (int, string, error) {
	duration, tween := 0, amcp.DefaultTweener
	if len(params) > 0 {
		d, err := parseInt(command, params[0])
		if err != nil {
			return 0, "", err
		}
		duration = d
	}
	if len(params) > 1 {
		tween = params[1]
	}
	return duration, tween, nil
}

func parseFloats(command string, params []string) ([]float64, error) {
	values := make([]float64, len(params))
	for i, p := range params {
		v, err := parseFloat(command, p)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
