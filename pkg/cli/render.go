package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/opencomply/remedygen/pkg/rule"
	"github.com/opencomply/remedygen/pkg/template"
)

func renderCmd() *cli.Command {
	return &cli.Command{
		Name:                  "render",
		EnableShellCompletion: true,
		Usage:                 "Render a single rule's remediation fragment",
		Description: `Renders one rule's template for one format and prints the fragment.
This is the debugging view of the pipeline: no combining, no validation,
no catalog interaction.

# Examples

Render the shell fragment of a rule:
  remctl render -R registry.yaml -T ./templates --rule sshd_banner --format shell

Render against a different platform with a variable override:
  remctl render -R registry.yaml -T ./templates --rule package_aide \
    --platform ubuntu2204 --set PKGNAME=aide-common --format automation`,
		Flags: []cli.Flag{
			registryFlag,
			templatesFlag,
			&cli.StringFlag{
				Name:     "rule",
				Aliases:  []string{"r"},
				Required: true,
				Usage:    "Rule identifier to render",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "shell",
				Usage:   "Artifact format (shell, automation)",
			},
			platformFlag,
			setFlag,
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
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}

			ru, err := reg.Rule(ctx, cmd.String("rule"))
			if err != nil {
				return err
			}
			if len(overrides) > 0 {
				merged := make(map[string]string, len(ru.DeclaredVariables)+len(overrides))
				for k, v := range ru.DeclaredVariables {
					merged[k] = v
				}
				for k, v := range overrides {
					merged[k] = v
				}
				clone := *ru
				clone.DeclaredVariables = merged
				ru = &clone
			}

			proc := template.New(template.WithSource(template.DirSource(cmd.String("templates"))))
			renderer := rule.NewRenderer(
				rule.WithProcessor(proc),
				rule.WithPlatform(cmd.String("platform")),
			)
			fragments, err := renderer.RenderRule(ctx, ru)
			if err != nil {
				return err
			}
			for _, f := range fragments {
				if f.Format == format {
					return writeOutput(cmd, f.Text)
				}
			}
			slog.Warn("rule rendered but not in the requested format",
				"rule", ru.ID, "format", format)
			return fmt.Errorf("rule %q has no %s fragment", ru.ID, format)
		},
	}
}
