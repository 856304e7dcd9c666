package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/opencomply/remedygen/pkg/catalog"
	"github.com/opencomply/remedygen/pkg/generator"
	"github.com/opencomply/remedygen/pkg/rule"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:                  "migrate",
		EnableShellCompletion: true,
		Usage:                 "Batch-generate scripts and merge them into the catalog",
		Description: `Generates artifacts for a set of controls and merges them into the
shared catalog in one transaction. Generation runs concurrently;
the catalog is written exactly once, after every artifact is ready,
so a partial batch never reaches the file.

The catalog is backed up before the write. The backup name carries the
timestamp and the --tag value, e.g.:
  catalog.backup-20260314T092653Z-scriptmigration.json

In the default lenient mode, a control that fails to generate is logged
and skipped; --strict aborts the whole batch before the catalog is
touched.

# Examples

Migrate every control in the registry:
  remctl migrate -R registry.yaml -T ./templates --catalog catalog.json

Migrate selected controls, both formats, four at a time:
  remctl migrate -R registry.yaml -T ./templates --catalog catalog.json \
    --control AC-3 --control AU-2 --concurrency 4

Abort on the first failing control:
  remctl migrate -R registry.yaml -T ./templates --catalog catalog.json --strict`,
		Flags: []cli.Flag{
			registryFlag,
			templatesFlag,
			&cli.StringFlag{
				Name:     "catalog",
				Required: true,
				Usage:    "Path to the JSON catalog file to update",
			},
			&cli.StringSliceFlag{
				Name:    "control",
				Aliases: []string{"c"},
				Usage:   "Control to migrate (can be repeated; default: all controls in the registry)",
			},
			&cli.StringSliceFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   []string{"shell", "automation"},
				Usage:   "Artifact formats to generate (can be repeated)",
			},
			platformFlag,
			&cli.StringFlag{
				Name:  "tag",
				Value: "scriptmigration",
				Usage: "Operation tag recorded in the backup name and entry metadata",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Value: 4,
				Usage: "Maximum number of controls generated in parallel",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Abort the whole batch when any control fails to generate",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			formats := make([]rule.Format, 0, len(cmd.StringSlice("format")))
			for _, f := range cmd.StringSlice("format") {
				format, ok := rule.ParseFormat(f)
				if !ok {
					return fmt.Errorf("invalid --format value %q, supported: shell, automation", f)
				}
				formats = append(formats, format)
			}
			gen, reg, err := buildGenerator(cmd)
			if err != nil {
				return err
			}

			controls, err := selectControls(ctx, reg, cmd.StringSlice("control"))
			if err != nil {
				return err
			}
			platform := cmd.String("platform")
			strict := cmd.Bool("strict")

			// Generation fans out; the catalog write stays single-threaded
			// below.
			var (
				mu      sync.Mutex
				updates []catalog.Update
				skipped int
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(int(cmd.Int("concurrency")))
			for _, ctrl := range controls {
				g.Go(func() error {
					scripts := catalog.Scripts{platform: {}}
					for _, format := range formats {
						out, err := gen.Generate(gctx, generator.Request{
							ControlID: ctrl.ControlID,
							Platform:  platform,
							Format:    format,
							Strict:    strict,
						})
						if err != nil {
							if strict {
								return fmt.Errorf("control %q: %w", ctrl.ControlID, err)
							}
							slog.Warn("skipping format for control",
								"control", ctrl.ControlID, "format", format, "error", err)
							continue
						}
						if !out.Validation.Valid {
							if strict {
								return fmt.Errorf("control %q: artifact failed %s validation",
									ctrl.ControlID, out.Validation.Checker)
							}
							slog.Warn("skipping invalid artifact",
								"control", ctrl.ControlID, "format", format,
								"checker", out.Validation.Checker)
							continue
						}
						scripts[platform][string(format)] = out.Text
					}

					mu.Lock()
					defer mu.Unlock()
					if len(scripts[platform]) == 0 {
						skipped++
						return nil
					}
					updates = append(updates, catalog.Update{
						ControlID: ctrl.ControlID,
						Scripts:   scripts,
					})
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			if len(updates) == 0 {
				return fmt.Errorf("no control produced a usable artifact, catalog left untouched")
			}
			// Deterministic catalog diffs regardless of completion order.
			sort.Slice(updates, func(i, j int) bool {
				return updates[i].ControlID < updates[j].ControlID
			})

			updater := catalog.NewUpdater(cmd.String("catalog"))
			res, err := updater.Apply(ctx, updates, cmd.String("tag"))
			if err != nil {
				return err
			}
			slog.Info("migration committed",
				"operation", res.OperationID,
				"updated", res.Updated,
				"skipped", skipped,
				"backup", res.BackupPath,
			)
			return nil
		},
	}
}

// selectControls resolves the --control selections, defaulting to every
// control in the registry sorted by id.
func selectControls(ctx context.Context, reg *rule.FileRegistry, ids []string) ([]*rule.Control, error) {
	if len(ids) == 0 {
		controls := reg.Controls()
		sort.Slice(controls, func(i, j int) bool {
			return controls[i].ControlID < controls[j].ControlID
		})
		if len(controls) == 0 {
			return nil, fmt.Errorf("registry contains no controls")
		}
		return controls, nil
	}
	controls := make([]*rule.Control, 0, len(ids))
	for _, id := range ids {
		c, err := reg.Control(ctx, id)
		if err != nil {
			return nil, err
		}
		controls = append(controls, c)
	}
	return controls, nil
}
