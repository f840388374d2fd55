package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/loopbacklabs/authflow/internal/app"
	"github.com/loopbacklabs/authflow/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "authflow",
		Usage:   "OAuth2 authorization-code login helper",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel)",
				Value: string(app.DefaultConfigLogFormat),
			},
		},
		Commands: []*cli.Command{
			authCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setup loads configuration and installs the logging pipeline for a command.
// The returned shutdown function flushes buffered telemetry.
func setup(ctx context.Context, cmd *cli.Command) (*app.Config, func(context.Context) error, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, shutdown, nil
}
