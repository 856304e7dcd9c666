// Package combine merges independently rendered per-rule fragments of one
// format into a single composite artifact that still parses as that
// format: one shared header, one delimiting marker per contributing rule,
// no duplicated boilerplate.
package combine

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opencomply/remedygen/pkg/errors"
	"github.com/opencomply/remedygen/pkg/rule"
)

// Artifact is the combined output for one control and format.
type Artifact struct {
	Format rule.Format
	Text   string
	// Rules is the number of fragments merged in.
	Rules int
}

// Options adjust the banners of a combined artifact.
type Options struct {
	// Banner is the human-readable description placed in the generated-by
	// comment, typically the control title.
	Banner string
}

const generatedBy = "remediation generator"

// Combine merges the fragments of the requested format, in their given
// order, into one artifact.
func Combine(format rule.Format, fragments []rule.Fragment, opts Options) (*Artifact, error) {
	if len(fragments) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidRequest,
			"no fragments supplied for format %q", format)
	}

	matching := make([]rule.Fragment, 0, len(fragments))
	for _, f := range fragments {
		if f.Format == format {
			matching = append(matching, f)
		}
	}
	if len(matching) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidRequest,
			"requested format %q not present in any fragment", format)
	}

	switch format {
	case rule.FormatShell:
		return combineShell(matching, opts)
	case rule.FormatAutomation:
		return combineAutomation(matching, opts)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidRequest, "unknown format %q", format)
	}
}

// shellHeader splits a fragment into its leading comment/interpreter block
// and the remaining body.
func shellHeader(text string) (header, body string) {
	lines := strings.Split(text, "\n")
	i := 0
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		break
	}
	return strings.Join(lines[:i], "\n"), strings.Join(lines[i:], "\n")
}

// combineShell merges shell fragments. The first fragment's leading
// comment block becomes the single shared header; every fragment's body is
// emitted under its own rule marker with leading header lines stripped.
func combineShell(fragments []rule.Fragment, opts Options) (*Artifact, error) {
	var b strings.Builder

	header, _ := shellHeader(fragments[0].Text)
	if strings.TrimSpace(header) == "" {
		header = "#!/usr/bin/env bash"
	}
	b.WriteString(strings.TrimRight(header, "\n"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "# Generated by %s", generatedBy)
	if opts.Banner != "" {
		fmt.Fprintf(&b, ": %s", opts.Banner)
	}
	b.WriteString("\n")

	for i, f := range fragments {
		_, body := shellHeader(f.Text)
		body = strings.TrimLeft(body, "\n")
		fmt.Fprintf(&b, "\n# Rule %d\n", i+1)
		b.WriteString(strings.TrimRight(body, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\n# End of generated remediation\n")
	return &Artifact{Format: rule.FormatShell, Text: b.String(), Rules: len(fragments)}, nil
}

var ruleMarkerRe = regexp.MustCompile(`(?m)^# Rule \d+$`)

// SplitShell recovers the per-rule bodies from a combined shell artifact,
// in order. The inverse of combineShell modulo the shared header.
func SplitShell(text string) []string {
	marks := ruleMarkerRe.FindAllStringIndex(text, -1)
	if len(marks) == 0 {
		return nil
	}
	bodies := make([]string, 0, len(marks))
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		bodies = append(bodies, strings.Trim(text[m[1]:end], "\n"))
	}
	// The final body still carries the closing banner.
	last := len(bodies) - 1
	if idx := strings.Index(bodies[last], "# End of generated remediation"); idx >= 0 {
		bodies[last] = strings.Trim(bodies[last][:idx], "\n")
	}
	return bodies
}

// extractTasks returns the task lines of an automation fragment and the
// number of tasks. It parses the fragment structurally; when the fragment
// does not parse, it falls back to the line heuristic of scanning from a
// task-start marker to the next top-level non-list line.
func extractTasks(f rule.Fragment) ([]string, int, error) {
	var tasks []any
	if err := yaml.Unmarshal([]byte(f.Text), &tasks); err == nil && len(tasks) > 0 {
		lines := strings.Split(strings.Trim(f.Text, "\n"), "\n")
		return lines, len(tasks), nil
	}

	// Heuristic fallback: collect every block opened by a top-level list
	// item until a non-indented, non-list-item line ends it.
	var lines []string
	count := 0
	inTask := false
	for _, line := range strings.Split(f.Text, "\n") {
		switch {
		case strings.HasPrefix(line, "- "):
			count++
			inTask = true
			lines = append(lines, line)
		case inTask && (line == "" || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")):
			lines = append(lines, line)
		default:
			inTask = false
		}
	}
	if count == 0 {
		return nil, 0, errors.Newf(errors.ErrCodeInvalidRequest,
			"fragment for rule %q contains no extractable tasks", f.RuleID)
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, count, nil
}

// combineAutomation merges automation fragments into one playbook
// document: a single document header, then every fragment's tasks nested
// under the play's task list with a per-rule comment marker.
func combineAutomation(fragments []rule.Fragment, opts Options) (*Artifact, error) {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "# Generated by %s", generatedBy)
	if opts.Banner != "" {
		fmt.Fprintf(&b, ": %s", opts.Banner)
	}
	b.WriteString("\n")
	name := opts.Banner
	if name == "" {
		name = "Combined remediation"
	}
	fmt.Fprintf(&b, "- name: %q\n", name)
	b.WriteString("  hosts: all\n")
	b.WriteString("  become: true\n")
	b.WriteString("  tasks:\n")

	for i, f := range fragments {
		lines, _, err := extractTasks(f)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "    # Tasks from Rule %d\n", i+1)
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				b.WriteString("\n")
				continue
			}
			b.WriteString("    " + line + "\n")
		}
	}

	text := b.String()

	// The merged document must still parse as the automation format.
	var doc []map[string]any
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal,
			"combined automation artifact does not parse", err)
	}
	return &Artifact{Format: rule.FormatAutomation, Text: text, Rules: len(fragments)}, nil
}
