// Package cli implements the command-line interface for the remctl tool.
//
// # Overview
//
// The remctl CLI drives the remediation pipeline: rendering individual
// rules, generating combined per-control artifacts, listing the macro
// library, and migrating generated scripts into the shared catalog.
//
// # Commands
//
// render - Render a single rule (debugging aid):
//
//	remctl render --registry reg.yaml --templates ./templates --rule sshd_banner --format shell
//
// generate - Generate the combined artifact for one control:
//
//	remctl generate --registry reg.yaml --templates ./templates --control AC-3 --format shell
//	remctl generate -R reg.yaml -T ./templates --control au-2 --format automation -o play.yml
//
// macros - List the macro library:
//
//	remctl macros
//	remctl macros --format shell
//
// migrate - Batch-generate and merge scripts into the catalog:
//
//	remctl migrate -R reg.yaml -T ./templates --catalog catalog.json --tag scriptmigration
//	remctl migrate -R reg.yaml -T ./templates --catalog catalog.json --control AC-3 --strict
//
// # Global Flags
//
//	--debug     Enable debug logging
//	--log-json  Output logs in JSON format
//
// # Exit Codes
//
//	0  Success
//	1  General error (invalid arguments, execution failure)
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

// version is embedded at build time using ldflags.
var version = "dev"

// New builds the root command with every subcommand attached.
func New() *cli.Command {
	return &cli.Command{
		Name:                  "remctl",
		Usage:                 "Render, combine, and migrate compliance remediation scripts",
		Version:               version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Output logs in JSON format",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd.Bool("debug"), cmd.Bool("log-json"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			renderCmd(),
			generateCmd(),
			macrosCmd(),
			migrateCmd(),
		},
	}
}

// Run executes the CLI with the given arguments.
func Run(ctx context.Context, args []string) error {
	return New().Run(ctx, args)
}

func setupLogging(debug, logJSON bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
