package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/opencomply/remedygen/pkg/generator"
	"github.com/opencomply/remedygen/pkg/rule"
	"github.com/opencomply/remedygen/pkg/template"
)

var (
	registryFlag = &cli.StringFlag{
		Name:     "registry",
		Aliases:  []string{"R"},
		Required: true,
		Usage:    "Path to the YAML registry file holding rules and controls",
	}
	templatesFlag = &cli.StringFlag{
		Name:     "templates",
		Aliases:  []string{"T"},
		Required: true,
		Usage:    "Directory holding template sources",
	}
	platformFlag = &cli.StringFlag{
		Name:    "platform",
		Aliases: []string{"p"},
		Value:   "rhel9",
		Usage:   "Target platform identifier (e.g., rhel9, ubuntu2204)",
	}
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output file path (default: stdout)",
	}
	setFlag = &cli.StringSliceFlag{
		Name:  "set",
		Usage: "Override a declared variable (format: NAME=value, can be repeated)",
	}
)

// loadRegistry loads the rule/control registry named by the --registry flag.
func loadRegistry(cmd *cli.Command) (*rule.FileRegistry, error) {
	reg, err := rule.NewFileRegistry(cmd.String("registry"))
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

// buildGenerator wires the generation facade from the --registry and
// --templates flags.
func buildGenerator(cmd *cli.Command) (*generator.Generator, *rule.FileRegistry, error) {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return nil, nil, err
	}
	proc := template.New(template.WithSource(template.DirSource(cmd.String("templates"))))
	return generator.New(
		generator.WithRegistry(reg),
		generator.WithProcessor(proc),
	), reg, nil
}

// parseFormat validates the --format flag against the supported artifact
// formats.
func parseFormat(cmd *cli.Command) (rule.Format, error) {
	f, ok := rule.ParseFormat(cmd.String("format"))
	if !ok {
		return "", fmt.Errorf("invalid --format value %q, supported: shell, automation", cmd.String("format"))
	}
	return f, nil
}

// parseOverrides parses repeated --set NAME=value flags.
func parseOverrides(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set value %q, expected NAME=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}

// writeOutput writes text to the --output path, or stdout when unset.
func writeOutput(cmd *cli.Command, text string) error {
	path := cmd.String("output")
	if path == "" {
		_, err := fmt.Print(text)
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

var titleCaser = cases.Title(language.English)

// displayTitle turns an identifier like "audit_syscall_rule" into a
// human-readable heading.
func displayTitle(id string) string {
	return titleCaser.String(strings.ReplaceAll(id, "_", " "))
}
