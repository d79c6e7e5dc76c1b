package commands

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

// RegisterSystem installs the query, logging, OSC and process control commands.
func RegisterSystem(r *amcp.Registry) {
	r.Register(amcp.ScopeBare, "VERSION", amcp.Command{Handler: version})
	r.Register(amcp.ScopeBare, "INFO", amcp.Command{Handler: infoChannels})
	r.Register(amcp.ScopeChannel, "INFO", amcp.Command{Handler: infoChannel})
	r.Register(amcp.ScopeBare, "INFO PATHS", amcp.Command{Handler: infoPaths})
	r.Register(amcp.ScopeBare, "INFO CONFIG", amcp.Command{Handler: infoConfig})
	r.Register(amcp.ScopeBare, "DIAG", amcp.Command{Handler: diag})
	r.Register(amcp.ScopeBare, "KILL", amcp.Command{Handler: shutdown(false)})
	r.Register(amcp.ScopeBare, "RESTART", amcp.Command{Handler: shutdown(true)})
	r.Register(amcp.ScopeBare, "LOG LEVEL", amcp.Command{MinParams: 1, Handler: logLevel})
	r.Register(amcp.ScopeBare, "OSC SUBSCRIBE", amcp.Command{MinParams: 1, Handler: oscSubscription(true)})
	r.Register(amcp.ScopeBare, "OSC UNSUBSCRIBE", amcp.Command{MinParams: 1, Handler: oscSubscription(false)})
}

func version(_ context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	if len(inv.Parameters) > 0 && !strings.EqualFold(inv.Parameters[0], "SERVER") {
		return nil, amcp.NewError(amcp.ParametersError, inv.Name, "unknown component %q", inv.Parameters[0])
	}
	return amcp.OK(201, "VERSION", cc.Version), nil
}

func infoChannels(ctx context.Context, cc *amcp.CommandContext, _ *amcp.Invocation) (amcp.Result, error) {
	lines := make([]string, 0, cc.ChannelCount)
	for ch := range cc.ChannelCount {
		info, err := cc.Executor.ChannelInfo(ctx, ch)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("%d %s PLAYING", ch+1, info.Format))
	}
	return amcp.List("INFO", lines), nil
}

// infoChannel replies with the channel, or with one layer when the channel spec names it, as
// single-line XML.
func infoChannel(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	info, err := cc.Executor.ChannelInfo(ctx, inv.Channel)
	if err != nil {
		return nil, err
	}

	var v any = info
	if inv.HasLayer {
		layer := amcp.LayerInfo{Index: inv.Layer}
		for _, l := range info.Layers {
			if l.Index == inv.Layer {
				layer = l
				break
			}
		}
		v = layer
	}
	return xmlReply("INFO", v)
}

func infoPaths(_ context.Context, cc *amcp.CommandContext, _ *amcp.Invocation) (amcp.Result, error) {
	return xmlReply("INFO PATHS", cc.Config.Paths)
}

func infoConfig(_ context.Context, cc *amcp.CommandContext, _ *amcp.Invocation) (amcp.Result, error) {
	return xmlReply("INFO CONFIG", cc.Config)
}

func diag(_ context.Context, cc *amcp.CommandContext, _ *amcp.Invocation) (amcp.Result, error) {
	cc.Logger.Info("diagnostics requested",
		slog.Int("channels", cc.ChannelCount),
		slog.String("logLevel", cc.LogLevel.Level().String()),
	)
	return amcp.OK(202, "DIAG"), nil
}

func shutdown(restart bool) amcp.Handler {
	name := "KILL"
	if restart {
		name = "RESTART"
	}
	return func(_ context.Context, cc *amcp.CommandContext, _ *amcp.Invocation) (amcp.Result, error) {
		if !cc.Shutdown(restart) {
			return nil, amcp.NewError(amcp.UnknownError, name, "no shutdown hook installed")
		}
		return amcp.OK(202, name), nil
	}
}

func logLevel(_ context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	level, err := amcp.ParseLogLevel(inv.Parameters[0])
	if err != nil {
		return nil, amcp.NewError(amcp.ParametersError, "LOG", "%v", err)
	}
	cc.LogLevel.Set(level)
	cc.Logger.Info("log level changed", slog.String("level", level.String()))
	return amcp.OK(202, "LOG"), nil
}

func oscSubscription(subscribe bool) amcp.Handler {
	return func(_ context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
		if cc.OSC == nil {
			return nil, amcp.NewError(amcp.UnknownError, inv.Name, "no OSC sender configured")
		}

		port, err := parseInt(inv.Name, inv.Parameters[0])
		if err != nil {
			return nil, err
		}
		if port < 1 || port > 65535 {
			return nil, amcp.NewError(amcp.ParametersError, inv.Name, "invalid port %d", port)
		}

		if subscribe {
			err = cc.OSC.Subscribe(inv.ClientAddress, port)
		} else {
			err = cc.OSC.Unsubscribe(inv.ClientAddress, port)
		}
		if err != nil {
			return nil, err
		}
		return amcp.OK(202, inv.Name), nil
	}
}

func xmlReply(command string, v any) (amcp.Result, error) {
	data, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s reply: %w", strings.ToLower(command), err)
	}
	return amcp.OK(201, command, xml.Header[:len(xml.Header)-1]+string(data)), nil
}
