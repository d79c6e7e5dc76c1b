package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

// RegisterCG installs the CG template commands.
func RegisterCG(r *amcp.Registry) {
	r.Register(amcp.ScopeChannel, "CG ADD", amcp.Command{MinParams: 3, Handler: cgAdd})
	r.Register(amcp.ScopeChannel, "CG PLAY", amcp.Command{MinParams: 1, Handler: cgSimple("PLAY")})
	r.Register(amcp.ScopeChannel, "CG STOP", amcp.Command{MinParams: 1, Handler: cgSimple("STOP")})
	r.Register(amcp.ScopeChannel, "CG NEXT", amcp.Command{MinParams: 1, Handler: cgSimple("NEXT")})
	r.Register(amcp.ScopeChannel, "CG REMOVE", amcp.Command{MinParams: 1, Handler: cgSimple("REMOVE")})
	r.Register(amcp.ScopeChannel, "CG CLEAR", amcp.Command{Handler: cgClear})
	r.Register(amcp.ScopeChannel, "CG UPDATE", amcp.Command{MinParams: 2, Handler: cgUpdate})
	r.Register(amcp.ScopeChannel, "CG INVOKE", amcp.Command{MinParams: 2, Handler: cgInvoke})
	r.Register(amcp.ScopeChannel, "CG INFO", amcp.Command{Handler: cgInfo})
}

// cgAdd handles "CG ADD <cg_layer> <template> [label] <play_on_load> [data]". A third parameter
// longer than one character is a start label.
func cgAdd(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	cgLayer, err := parseInt(inv.Name, inv.Parameters[0])
	if err != nil {
		return nil, err
	}

	call := amcp.TemplateCall{
		Op:       "ADD",
		Channel:  inv.Channel,
		Layer:    inv.LayerOr(DefaultCGLayer),
		CGLayer:  cgLayer,
		Template: inv.Parameters[1],
	}

	dataIndex := 3
	flag := inv.Parameters[2]
	if len(flag) > 1 {
		call.Label = flag
		flag = ""
		if len(inv.Parameters) > 3 {
			flag = inv.Parameters[3]
		}
		dataIndex++
	}
	call.PlayOnLoad = strings.HasPrefix(flag, "1")

	if len(inv.Parameters) > dataIndex {
		data, err := templateData(ctx, cc, inv.Parameters[dataIndex])
		if err != nil {
			return nil, err
		}
		call.Data = data
	}

	if _, err := cc.Executor.Template(ctx, call); err != nil {
		return nil, err
	}
	return amcp.OK(202, "CG"), nil
}

func cgSimple(op string) amcp.Handler {
	return func(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
		cgLayer, err := parseInt(inv.Name, inv.Parameters[0])
		if err != nil {
			return nil, err
		}

		if _, err := cc.Executor.Template(ctx, amcp.TemplateCall{
			Op:      op,
			Channel: inv.Channel,
			Layer:   inv.LayerOr(DefaultCGLayer),
			CGLayer: cgLayer,
		}); err != nil {
			return nil, err
		}
		return amcp.OK(202, "CG"), nil
	}
}

func cgClear(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	layer := inv.LayerOr(DefaultCGLayer)

	if _, err := cc.Executor.Template(ctx, amcp.TemplateCall{
		Op:      "CLEAR",
		Channel: inv.Channel,
		Layer:   layer,
	}); err != nil {
		return nil, err
	}
	if _, err := cc.Executor.Stage(ctx, amcp.StageCall{
		Method:  amcp.StageClear,
		Channel: inv.Channel,
		Layer:   layer,
	}); err != nil {
		return nil, err
	}
	return amcp.OK(202, "CG"), nil
}

func cgUpdate(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	cgLayer, err := parseInt(inv.Name, inv.Parameters[0])
	if err != nil {
		return nil, err
	}
	data, err := templateData(ctx, cc, inv.Parameters[1])
	if err != nil {
		return nil, err
	}

	if _, err := cc.Executor.Template(ctx, amcp.TemplateCall{
		Op:      "UPDATE",
		Channel: inv.Channel,
		Layer:   inv.LayerOr(DefaultCGLayer),
		CGLayer: cgLayer,
		Data:    data,
	}); err != nil {
		return nil, err
	}
	return amcp.OK(202, "CG"), nil
}

func cgInvoke(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	cgLayer, err := parseInt(inv.Name, inv.Parameters[0])
	if err != nil {
		return nil, err
	}

	result, err := cc.Executor.Template(ctx, amcp.TemplateCall{
		Op:      "INVOKE",
		Channel: inv.Channel,
		Layer:   inv.LayerOr(DefaultCGLayer),
		CGLayer: cgLayer,
		Method:  inv.Parameters[1],
	})
	if err != nil {
		return nil, err
	}
	return amcp.OK(201, "CG", result), nil
}

func cgInfo(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	cgLayer := -1
	if len(inv.Parameters) > 0 {
		v, err := parseInt(inv.Name, inv.Parameters[0])
		if err != nil {
			return nil, err
		}
		cgLayer = v
	}

	result, err := cc.Executor.Template(ctx, amcp.TemplateCall{
		Op:      "INFO",
		Channel: inv.Channel,
		Layer:   inv.LayerOr(DefaultCGLayer),
		CGLayer: cgLayer,
	})
	if err != nil {
		return nil, err
	}
	return amcp.OK(201, "CG", result), nil
}

// templateData returns inline XML or JSON as is and otherwise reads the named dataset. An unknown
// dataset name is passed through literally.
func templateData(ctx context.Context, cc *amcp.CommandContext, data string) (string, error) {
	if data == "" || strings.ContainsAny(data[:1], "<{[") || cc.Data == nil {
		return data, nil
	}

	stored, err := cc.Data.Retrieve(ctx, data)
	if errors.Is(err, amcp.ErrDataNotFound) {
		return data, nil
	}
	if err != nil {
		return "", err
	}
	return stored, nil
}
