package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/sync/errgroup"

	"github.com/MegaGrindStone/go-amcp"
	"github.com/MegaGrindStone/go-amcp/commands"
	"github.com/MegaGrindStone/go-amcp/datastore"
	"github.com/MegaGrindStone/go-amcp/executor"
	"github.com/MegaGrindStone/go-amcp/medialib"
)

const usage = `AMCP server.

Options override AMCP_* environment variables, which override the defaults.

Usage:
    amcpd [--port=<port>] [--ws=<addr>] [--monitor=<addr>] [--channels=<modes>]
        [--data-backend=<backend>] [--data-dsn=<dsn>] [--lock-phrase=<phrase>]
        [--log-level=<level>] [--stdio]
    amcpd -h | --help
    amcpd --version

Options:
    -h --help                   Show this screen.
    --version                   Show version.
    -p --port=<port>            TCP port of the AMCP controller.
    --ws=<addr>                 Listen address of the websocket controller, served at /amcp.
    --monitor=<addr>            Listen address of the SSE monitor, served at /monitor.
    --channels=<modes>          Comma separated video modes, one channel each.
    --data-backend=<backend>    Dataset store, file or sqlite.
    --data-dsn=<dsn>            SQLite database path.
    --lock-phrase=<phrase>      Phrase required by LOCK CLEAR.
    --log-level=<level>         trace, debug, info, warning, error or fatal.
    --stdio                     Also accept commands on stdin.`

// restartExitCode tells a supervisor that RESTART was requested.
const restartExitCode = 5

const shutdownTimeout = 5 * time.Second

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], amcp.Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse arguments: %v\n", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	stdio, _ := opts.Bool("--stdio")

	restart, err := run(cfg, stdio)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
	if restart {
		os.Exit(restartExitCode)
	}
}

func loadConfig(opts docopt.Opts) (amcp.Config, error) {
	cfg := amcp.DefaultConfig()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if v, err := opts.String("--port"); err == nil {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid port %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v, err := opts.String("--channels"); err == nil {
		cfg.Channels = amcp.ParseChannels(v)
	}
	strs := map[string]*string{
		"--ws":           &cfg.WebSocketAddr,
		"--monitor":      &cfg.MonitorAddr,
		"--data-backend": &cfg.DataBackend,
		"--data-dsn":     &cfg.DataDSN,
		"--lock-phrase":  &cfg.LockClearPhrase,
		"--log-level":    &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v, err := opts.String(key); err == nil {
			*dst = v
		}
	}

	return cfg, cfg.Validate()
}

func run(cfg amcp.Config, stdio bool) (bool, error) {
	level := &slog.LevelVar{}
	if l, err := amcp.ParseLogLevel(cfg.LogLevel); err == nil {
		level.Set(l)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, closeStore, err := openDataStore(cfg, logger)
	if err != nil {
		return false, err
	}
	defer closeStore()

	formats := make([]string, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		formats[i] = ch.VideoMode
	}
	media := medialib.New(cfg.Paths, medialib.WithLogger(logger))
	exec := executor.NewMemory(formats, executor.WithMediaCheck(media.Exists), executor.WithLogger(logger))

	restartCh := make(chan bool, 1)
	cc := amcp.NewCommandContext(cfg, exec,
		amcp.WithDataStore(store),
		amcp.WithMediaLibrary(media),
		amcp.WithOSC(amcp.NewOSCSubscriptions(amcp.WithOSCLogger(logger))),
		amcp.WithLogLevel(level),
		amcp.WithContextLogger(logger),
		amcp.WithShutdownHook(func(restart bool) {
			select {
			case restartCh <- restart:
			default:
			}
		}),
	)

	registry := amcp.NewRegistry()
	commands.Register(registry)

	monitor := amcp.NewMonitor(amcp.WithMonitorLogger(logger))
	strategy := amcp.NewProtocolStrategy(registry, cc,
		amcp.WithEventSink(monitor),
		amcp.WithStrategyLogger(logger),
	)

	tcp, err := amcp.ListenTCP(fmt.Sprintf(":%d", cfg.Port), amcp.WithTCPLogger(logger))
	if err != nil {
		return false, err
	}
	logger.Info("amcp controller listening", slog.String("addr", tcp.Addr().String()))

	servers := []amcp.Server{amcp.NewServer(tcp, strategy, amcp.WithServerLogger(logger))}
	if stdio {
		console := amcp.NewStdIO(os.Stdin, os.Stdout, amcp.WithStdIOLogger(logger))
		servers = append(servers, amcp.NewServer(console, strategy, amcp.WithServerLogger(logger)))
	}

	muxes := make(map[string]*http.ServeMux)
	muxFor := func(addr string) *http.ServeMux {
		if mux, ok := muxes[addr]; ok {
			return mux
		}
		mux := http.NewServeMux()
		muxes[addr] = mux
		return mux
	}
	if cfg.WebSocketAddr != "" {
		ws := amcp.NewWebSocketServer(amcp.WithWebSocketLogger(logger))
		muxFor(cfg.WebSocketAddr).Handle("/amcp", ws.HandleWebSocket())
		servers = append(servers, amcp.NewServer(ws, strategy, amcp.WithServerLogger(logger)))
	}
	if cfg.MonitorAddr != "" {
		muxFor(cfg.MonitorAddr).Handle("/monitor", monitor.HandleSSE())
	}
	httpServers := make([]*http.Server, 0, len(muxes))
	for addr, mux := range muxes {
		httpServers = append(httpServers, &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			srv.Serve()
			return nil
		})
	}
	for _, srv := range httpServers {
		g.Go(func() error {
			logger.Info("http server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve http on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	var restart bool
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("shutting down")
		case restart = <-restartCh:
			logger.Info("shutdown requested", slog.Bool("restart", restart))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		for _, srv := range httpServers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown http server %s: %w", srv.Addr, err))
			}
		}
		if err := monitor.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	return restart, err
}

func openDataStore(cfg amcp.Config, logger *slog.Logger) (amcp.DataStore, func(), error) {
	if cfg.DataBackend != "sqlite" {
		return datastore.NewFile(cfg.Paths.Data, datastore.WithFileLogger(logger)), func() {}, nil
	}

	dsn := cfg.DataDSN
	if dsn == "" {
		if err := os.MkdirAll(cfg.Paths.Data, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data folder: %w", err)
		}
		dsn = filepath.Join(cfg.Paths.Data, "datasets.db")
	}
	store, err := datastore.OpenSQLite(dsn, datastore.WithSQLiteLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close data store", slog.String("err", err.Error()))
		}
	}, nil
}
