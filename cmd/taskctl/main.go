package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/edgetask/internal/dispatch"
	"github.com/danmuck/edgetask/internal/handshake"
	"github.com/danmuck/edgetask/internal/logging"
	"github.com/danmuck/edgetask/internal/observability"
	"github.com/danmuck/edgetask/internal/taskconfig"
	"github.com/danmuck/edgetask/internal/tasks/toolrun"
	"github.com/danmuck/edgetask/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath  string
	setupDir    string
	runtimePath string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("taskctl", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to the JSON task document")
	fs.StringVar(&opts.setupDir, "setup-dir", os.Getenv("EDGETASK_SETUP_DIR"), "task setup directory (overrides the document)")
	fs.StringVar(&opts.runtimePath, "runtime", "", "optional TOML runtime settings")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.configPath == "" {
		return options{}, errors.New("-config is required")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
		os.Exit(2)
	}
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	rt, err := loadRuntimeConfig(opts.runtimePath)
	if err != nil {
		return err
	}

	catalog := taskconfig.DefaultCatalog()
	cfg, err := catalog.Load(opts.configPath, opts.setupDir)
	if err != nil {
		return err
	}
	log.Info().
		Str("kind", string(cfg.Kind)).
		Str("task_id", cfg.Common().TaskID.String()).
		Str("setup_dir", cfg.Common().SetupDir).
		Str("platform", catalog.GOOS()).
		Str("version", version).
		Msg("taskctl.run loaded")

	if rt.MetricsListenAddr != "" {
		srv := observability.NewServer(cfg.Common().TaskID.String())
		if err := srv.Start(rt.MetricsListenAddr); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	registry, err := toolrun.NewRegistry(catalog)
	if err != nil {
		return err
	}
	tel := telemetry.New(telemetry.LogSink{Logger: log.Logger}, telemetry.MetricsSink{})
	d := dispatch.New(registry, tel, dispatch.Config{
		Version:   version,
		Handshake: handshake.Options{Timeout: rt.HandshakeTimeout},
		Options:   rt.Tasks,
	})
	return d.Run(ctx, cfg)
}
