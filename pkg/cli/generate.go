package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/opencomply/remedygen/pkg/generator"
	"github.com/opencomply/remedygen/pkg/serializer"
)

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:                  "generate",
		EnableShellCompletion: true,
		Usage:                 "Generate the combined remediation artifact for a control",
		Description: `Renders every rule of a control, merges the fragments of the requested
format into one artifact, validates it, and writes the result.

Validation findings are reported but do not suppress the output: an
artifact that fails validation is still written so it can be inspected.
Use --fail-on-invalid for CI pipelines that must stop on findings.

# Examples

Generate the shell remediation for a control:
  remctl generate -R registry.yaml -T ./templates --control AC-3 --format shell

Generate the automation playbook with a variable override:
  remctl generate -R registry.yaml -T ./templates --control au-2 \
    --format automation --set KEY=Banner -o play.yml

Abort on any rule failure instead of skipping:
  remctl generate -R registry.yaml -T ./templates --control CM-6 --format shell --strict`,
		Flags: []cli.Flag{
			registryFlag,
			templatesFlag,
			&cli.StringFlag{
				Name:     "control",
				Aliases:  []string{"c"},
				Required: true,
				Usage:    "Control identifier (case-insensitive, e.g., AC-3 or ac-3.3)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "shell",
				Usage:   "Artifact format (shell, automation)",
			},
			platformFlag,
			setFlag,
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Abort the control when any rule fails to render",
			},
			&cli.BoolFlag{
				Name:  "fail-on-invalid",
				Usage: "Exit non-zero when the artifact fails validation",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write the generation metadata and validation report to this file",
			},
			&cli.StringFlag{
				Name:  "report-format",
				Value: "yaml",
				Usage: "Report encoding (yaml, json)",
			},
			outputFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := parseFormat(cmd)
			if err != nil {
				return err
			}
			overrides, err := parseOverrides(cmd.StringSlice("set"))
			if err != nil {
				return err
			}
			gen, _, err := buildGenerator(cmd)
			if err != nil {
				return err
			}

			out, err := gen.Generate(ctx, generator.Request{
				ControlID: cmd.String("control"),
				Platform:  cmd.String("platform"),
				Format:    format,
				Variables: overrides,
				Strict:    cmd.Bool("strict"),
			})
			if err != nil {
				return err
			}

			for _, w := range out.Validation.Warnings {
				slog.Warn("validation finding", "checker", out.Validation.Checker, "finding", w)
			}
			for _, e := range out.Validation.Errors {
				slog.Error("validation finding", "checker", out.Validation.Checker, "finding", e)
			}

			if err := writeOutput(cmd, out.Text); err != nil {
				return err
			}
			if reportPath := cmd.String("report"); reportPath != "" {
				format := serializer.Format(cmd.String("report-format"))
				if format.IsUnknown() {
					return fmt.Errorf("unknown report format: %q, valid formats are: yaml, json", format)
				}
				ser, err := serializer.NewFileWriterOrStdout(format, reportPath)
				if err != nil {
					return err
				}
				defer func() {
					if err := ser.Close(); err != nil {
						slog.Warn("failed to close report writer", "error", err)
					}
				}()
				report := struct {
					Metadata   *generator.Metadata         `json:"metadata" yaml:"metadata"`
					Validation *generator.ValidationReport `json:"validation" yaml:"validation"`
				}{out.Metadata, out.Validation}
				if err := ser.Serialize(report); err != nil {
					return err
				}
			}
			slog.Info("artifact written",
				"control", out.Metadata.ControlID,
				"rules", out.Rules,
				"bytes", out.Metadata.SizeBytes,
				"lines", out.Metadata.LineCount,
				"valid", out.Validation.Valid,
			)
			if cmd.Bool("fail-on-invalid") && !out.Validation.Valid {
				return fmt.Errorf("artifact for control %q failed %s validation",
					out.Metadata.ControlID, out.Validation.Checker)
			}
			return nil
		},
	}
}
