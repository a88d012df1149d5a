package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/droid2api/droidproxy/internal/app"
	"github.com/droid2api/droidproxy/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	return newRootCommand(version, commit).Run(ctx, args)
}

func newRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "droidproxy",
		Usage:   "OpenAI-compatible gateway for Factory-hosted models",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars(app.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error), overrides the config file",
				Value: slog.LevelInfo.String(),
			},
		},
		Commands: []*cli.Command{
			proxyStartCommand(version),
			authCommand(),
		},
	}
}

func proxyStartCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Starts the proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "listen host, overrides the config file",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "listen port, overrides the config file",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (none|stdout|otlp-http|otlp-grpc)",
				Value: observability.ExporterNone,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return proxyStartAction(ctx, cmd, version)
		},
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command, version string) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}

	// Set up observability before creating app
	shutdownTelemetry, err := observability.Instrument(ctx, observability.Options{
		Level:    level,
		Format:   cfg.Log.Format,
		Exporter: cfg.Log.Exporter,
		Output:   os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
		}
	}()

	application, err := app.New(cfg, app.WithVersion(version))
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting", "addr", cfg.Addr(), "version", version)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
