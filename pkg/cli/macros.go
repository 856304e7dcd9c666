package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/opencomply/remedygen/pkg/macro"
)

func macrosCmd() *cli.Command {
	return &cli.Command{
		Name:                  "macros",
		EnableShellCompletion: true,
		Usage:                 "List the macro library available to templates",
		Description: `Lists every registered macro with its target format and keyword
parameters. The macro set is closed: templates may only call what this
command lists.

# Examples

List all macros:
  remctl macros

List only shell macros:
  remctl macros --format shell`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Only list macros of this format (shell, automation)",
			},
			outputFlag,
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			filter := macro.Format(cmd.String("format"))
			all := macro.Default().All()

			names := make([]string, 0, len(all))
			for name, m := range all {
				if filter != "" && m.Format != filter {
					continue
				}
				names = append(names, name)
			}
			sort.Strings(names)

			var b strings.Builder
			for _, name := range names {
				m := all[name]
				fmt.Fprintf(&b, "%s (%s)\n", displayTitle(name), m.Format)
				fmt.Fprintf(&b, "  call: %s\n", name)
				for _, p := range m.Params {
					req := "optional"
					if p.Required {
						req = "required"
					}
					fmt.Fprintf(&b, "  - %s (%s)", p.Name, req)
					if len(p.Enum) > 0 {
						fmt.Fprintf(&b, " one of: %s", strings.Join(p.Enum, ", "))
					}
					if p.Usage != "" {
						fmt.Fprintf(&b, ": %s", p.Usage)
					}
					b.WriteString("\n")
				}
				b.WriteString("\n")
			}
			return writeOutput(cmd, b.String())
		},
	}
}
