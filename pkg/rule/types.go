// Package rule defines the rule/control model consumed from the external
// registry and the per-rule renderer that bridges declared variables into
// the symbol namespace shared remediation templates expect.
package rule

import (
	"strings"
)

// Format identifies a remediation artifact format.
type Format string

const (
	// FormatShell is the imperative shell script format.
	FormatShell Format = "shell"
	// FormatAutomation is the declarative YAML playbook format.
	FormatAutomation Format = "automation"
)

// Formats lists the supported artifact formats in rendering order.
var Formats = []Format{FormatShell, FormatAutomation}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(s)) {
	case FormatShell:
		return FormatShell, true
	case FormatAutomation:
		return FormatAutomation, true
	}
	return "", false
}

// Rule is one remediation rule as loaded from the external registry.
// Immutable once loaded.
type Rule struct {
	// ID is the rule identifier, e.g. "audit_rules_dac_modification".
	ID string `yaml:"id" json:"id"`

	// Title is the human-readable rule title.
	Title string `yaml:"title" json:"title"`

	// TemplateName names the shared template family the rule instantiates.
	TemplateName string `yaml:"template_name" json:"template_name"`

	// DeclaredVariables maps variable names to values. Names may be
	// declared in either casing convention; the renderer canonicalizes
	// them to the uppercase symbols templates expect.
	DeclaredVariables map[string]string `yaml:"declared_variables" json:"declared_variables"`

	// TemplatePaths maps format name to the template source identifier
	// rendered for that format.
	TemplatePaths map[string]string `yaml:"template_paths" json:"template_paths"`
}

// Control is one compliance control grouping an ordered set of rules.
// Read-only input to rendering.
type Control struct {
	// ControlID is the normalized control identifier, lowercase and
	// dash-separated, with enhancements as a dot suffix (e.g. "ac-3.3").
	ControlID string `yaml:"control_id" json:"control_id"`

	Title  string `yaml:"title" json:"title"`
	Status string `yaml:"status" json:"status"`

	// RuleIDs is the ordered list of rules implementing the control.
	RuleIDs []string `yaml:"rule_ids" json:"rule_ids"`
}

// TemplateFormats returns the union of formats declared by the given
// rules, in canonical order.
func TemplateFormats(rules []*Rule) []Format {
	present := map[Format]bool{}
	for _, r := range rules {
		for name := range r.TemplatePaths {
			if f, ok := ParseFormat(name); ok {
				present[f] = true
			}
		}
	}
	out := make([]Format, 0, len(present))
	for _, f := range Formats {
		if present[f] {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeControlID canonicalizes a control identifier: lowercase,
// dash-separated, with enhancement parentheses collapsed to a dot suffix,
// so "AC-3(3)", "ac-3.3" and "AC-3.3" all normalize to "ac-3.3".
func NormalizeControlID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, " ", "")
	id = strings.ReplaceAll(id, "(", ".")
	id = strings.ReplaceAll(id, ")", "")
	id = strings.ReplaceAll(id, "_", "-")
	return id
}

// Fragment is one rendered per-rule artifact fragment. Transient: produced
// and consumed within a single pipeline run.
type Fragment struct {
	// RuleID is the rule the fragment was rendered for.
	RuleID string
	// Format is the fragment's artifact format.
	Format Format
	// Text is the rendered fragment. Free of the unexpanded-placeholder
	// marker by construction.
	Text string
}
