package commands

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

// producerOptions take one value after them in LOAD/LOADBG/PLAY parameters. They are skipped
// when looking for a transition so a SEEK 10 is not read as a ten frame cut.
var producerOptions = map[string]bool{
	"SEEK":           true,
	"LENGTH":         true,
	"IN":             true,
	"OUT":            true,
	"START":          true,
	"FILTER":         true,
	"VF":             true,
	"AF":             true,
	"CHANNEL_LAYOUT": true,
}

// RegisterProducer installs the stage and consumer commands.
func RegisterProducer(r *amcp.Registry) {
	r.Register(amcp.ScopeChannel, "LOADBG", amcp.Command{MinParams: 1, Handler: loadBG})
	r.Register(amcp.ScopeChannel, "LOAD", amcp.Command{MinParams: 0, Handler: load})
	r.Register(amcp.ScopeChannel, "PLAY", amcp.Command{MinParams: 0, Handler: play})
	r.Register(amcp.ScopeChannel, "PAUSE", amcp.Command{Handler: stageMethod(amcp.StagePause, "PAUSE")})
	r.Register(amcp.ScopeChannel, "RESUME", amcp.Command{Handler: stageMethod(amcp.StageResume, "RESUME")})
	r.Register(amcp.ScopeChannel, "STOP", amcp.Command{Handler: stageMethod(amcp.StageStop, "STOP")})
	r.Register(amcp.ScopeChannel, "CLEAR", amcp.Command{Handler: clearStage})
	r.Register(amcp.ScopeChannel, "CALL", amcp.Command{MinParams: 1, Handler: call})
	r.Register(amcp.ScopeChannel, "SWAP", amcp.Command{MinParams: 1, Handler: swap})
	r.Register(amcp.ScopeChannel, "ADD", amcp.Command{MinParams: 1, Handler: addConsumer})
	r.Register(amcp.ScopeChannel, "REMOVE", amcp.Command{MinParams: 0, Handler: removeConsumer})
	r.Register(amcp.ScopeChannel, "PRINT", amcp.Command{MinParams: 0, Handler: printChannel})
	r.Register(amcp.ScopeChannel, "SET MODE", amcp.Command{MinParams: 1, Handler: setMode})
	r.Register(amcp.ScopeBare, "CLEAR ALL", amcp.Command{Handler: clearAll})
}

func loadBG(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	if err := loadBackground(ctx, cc, inv); err != nil {
		return nil, err
	}
	return amcp.OK(202, "LOADBG"), nil
}

func load(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	layer := inv.LayerOr(DefaultLayer)

	// Without parameters the loaded background is shown as a preview.
	var producer amcp.Producer
	if len(inv.Parameters) > 0 {
		p, err := createProducer(ctx, cc, inv, layer)
		if err != nil {
			return nil, err
		}
		producer = p
	}

	if _, err := cc.Executor.Stage(ctx, amcp.StageCall{
		Method:   amcp.StageLoad,
		Channel:  inv.Channel,
		Layer:    layer,
		Producer: producer,
		Preview:  true,
	}); err != nil {
		return nil, err
	}
	return amcp.OK(202, "LOAD"), nil
}

func play(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	if len(inv.Parameters) > 0 {
		if err := loadBackground(ctx, cc, inv); err != nil {
			return nil, err
		}
	}

	if _, err := cc.Executor.Stage(ctx, amcp.StageCall{
		Method:  amcp.StagePlay,
		Channel: inv.Channel,
		Layer:   inv.LayerOr(DefaultLayer),
	}); err != nil {
		return nil, err
	}
	return amcp.OK(202, "PLAY"), nil
}

func stageMethod(method amcp.StageMethod, name string) amcp.Handler {
	return func(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
		if _, err := cc.Executor.Stage(ctx, amcp.StageCall{
			Method:  method,
			Channel: inv.Channel,
			Layer:   inv.LayerOr(DefaultLayer),
		}); err != nil {
			return nil, err
		}
		return amcp.OK(202, name), nil
	}
}

func clearStage(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	if _, err := cc.Executor.Stage(ctx, amcp.StageCall{
		Method:  amcp.StageClear,
		Channel: inv.Channel,
		Layer:   inv.LayerOr(-1),
	}); err != nil {
		return nil, err
	}
	return amcp.OK(202, "CLEAR"), nil
}

func clearAll(ctx context.Context, cc *amcp.CommandContext, _ *amcp.Invocation) (amcp.Result, error) {
	for ch := range cc.ChannelCount {
		if _, err := cc.Executor.Stage(ctx, amcp.StageCall{
			Method:  amcp.StageClear,
			Channel: ch,
			Layer:   -1,
		}); err != nil {
			return nil, err
		}
	}
	return amcp.OK(202, "CLEAR ALL"), nil
}

func call(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	result, err := cc.Executor.Stage(ctx, amcp.StageCall{
		Method:  amcp.StageInvoke,
		Channel: inv.Channel,
		Layer:   inv.LayerOr(DefaultLayer),
		Params:  inv.Parameters,
	})
	if err != nil {
		cc.Logger.Warn("call failed", slog.String("err", err.Error()))
		return amcp.Immediate("501 CALL FAILED\r\n"), nil
	}
	if result == "" {
		return amcp.OK(202, "CALL"), nil
	}
	return amcp.OK(201, "CALL", result), nil
}

func swap(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	channelPart, layerPart, hasLayer := strings.Cut(inv.Parameters[0], "-")

	other, err := strconv.Atoi(channelPart)
	if err != nil || !cc.ValidChannel(other-1) {
		return nil, amcp.NewError(amcp.ChannelError, "SWAP", "invalid channel %q", inv.Parameters[0])
	}

	sc := amcp.StageCall{
		Method:         amcp.StageSwapStages,
		Channel:        inv.Channel,
		Layer:          -1,
		OtherChannel:   other - 1,
		OtherLayer:     -1,
		SwapTransforms: containsParam("TRANSFORMS", inv.Parameters[1:]),
	}

	// Layers can only be swapped with layers, channels with channels.
	if inv.HasLayer != hasLayer {
		return nil, amcp.NewError(amcp.ParametersError, "SWAP", "cannot swap a layer with a channel")
	}
	if hasLayer {
		otherLayer, err := strconv.Atoi(layerPart)
		if err != nil {
			return nil, amcp.NewError(amcp.ParametersError, "SWAP", "invalid layer %q", layerPart)
		}
		sc.Method = amcp.StageSwapLayer
		sc.Layer = inv.Layer
		sc.OtherLayer = otherLayer
	}

	if _, err := cc.Executor.Stage(ctx, sc); err != nil {
		return nil, err
	}
	return amcp.OK(202, "SWAP"), nil
}

func addConsumer(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	params := make([]string, len(inv.Parameters))
	for i, p := range inv.Parameters {
		params[i] = strings.ReplaceAll(p, "<CLIENT_IP_ADDRESS>", inv.ClientAddress)
	}

	if err := cc.Executor.AddConsumer(ctx, inv.Channel, inv.LayerOr(-1), params); err != nil {
		return nil, err
	}
	return amcp.OK(202, "ADD"), nil
}

func removeConsumer(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	index := inv.LayerOr(-1)
	if index < 0 && len(inv.Parameters) == 0 {
		return nil, amcp.NewError(amcp.ParametersError, "REMOVE", "consumer index or parameters required")
	}

	params := make([]string, len(inv.Parameters))
	for i, p := range inv.Parameters {
		params[i] = strings.ReplaceAll(p, "<CLIENT_IP_ADDRESS>", inv.ClientAddress)
	}

	if err := cc.Executor.RemoveConsumer(ctx, inv.Channel, index, params); err != nil {
		return nil, err
	}
	return amcp.OK(202, "REMOVE"), nil
}

func printChannel(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	if err := cc.Executor.AddConsumer(ctx, inv.Channel, -1, []string{"IMAGE"}); err != nil {
		return nil, err
	}
	return amcp.OK(202, "PRINT"), nil
}

func setMode(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	if err := cc.Executor.SetChannelFormat(ctx, inv.Channel, inv.Parameters[0]); err != nil {
		if errors.Is(err, amcp.ErrInvalidFormat) {
			return nil, amcp.NewError(amcp.ParametersError, inv.Name, "%v", err)
		}
		return nil, err
	}
	return amcp.OK(202, "SET MODE"), nil
}

func loadBackground(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) error {
	layer := inv.LayerOr(DefaultLayer)

	p, err := createProducer(ctx, cc, inv, layer)
	if err != nil {
		return err
	}

	p, err = cc.Executor.CreateTransition(ctx, inv.Channel, layer, p, matchTransition(inv.Parameters))
	if err != nil {
		return err
	}

	_, err = cc.Executor.Stage(ctx, amcp.StageCall{
		Method:   amcp.StageLoadBG,
		Channel:  inv.Channel,
		Layer:    layer,
		Producer: p,
		Auto:     containsParam("AUTO", inv.Parameters),
	})
	return err
}

func createProducer(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation, layer int,
) (amcp.Producer, error) {
	p, err := cc.Executor.CreateProducer(ctx, inv.Channel, layer, inv.Parameters)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, amcp.ErrMediaNotFound) {
		return nil, err
	}

	if containsParam("CLEAR_ON_404", inv.Parameters) {
		if _, cerr := cc.Executor.Stage(ctx, amcp.StageCall{
			Method:  amcp.StageClear,
			Channel: inv.Channel,
			Layer:   layer,
		}); cerr != nil {
			cc.Logger.Warn("failed to clear layer after missing media", slog.String("err", cerr.Error()))
		}
	}
	return nil, err
}

// matchTransition reads the transition from load parameters. The clip name and producer options
// are skipped; a sting wins over a basic transition.
func matchTransition(params []string) amcp.Transition {
	if len(params) < 2 {
		return amcp.Transition{Basic: amcp.DefaultTransition()}
	}

	rest := make([]string, 0, len(params)-1)
	for i := 1; i < len(params); i++ {
		if producerOptions[strings.ToUpper(params[i])] {
			i++
			continue
		}
		rest = append(rest, params[i])
	}

	if sting, ok := amcp.MatchStingTransition(rest); ok {
		return amcp.Transition{Basic: amcp.DefaultTransition(), Sting: &sting}
	}
	return amcp.Transition{Basic: amcp.MatchBasicTransition(rest)}
}
