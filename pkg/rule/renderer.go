package rule

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/opencomply/remedygen/pkg/errors"
	"github.com/opencomply/remedygen/pkg/template"
)

// canonicalSymbols is the uppercase symbol set shared templates expect.
// Each is resolved from the rule's declared variables first by exact
// uppercase key, then by the lowercase key; unmapped symbols are omitted
// from context (templates tolerate absence through macro defaults).
var canonicalSymbols = []string{
	"PATH",
	"KEY",
	"VALUE",
	"SEP",
	"SEP_REGEX",
	"PREFIX_REGEX",
	"XCCDF_VARIABLE",
	"SYSCALLS",
	"SYSCALL_GROUPINGS",
}

// Renderer renders the per-format fragments of individual rules.
type Renderer struct {
	processor *template.Processor
	registry  Registry
	platform  string
	strict    bool
}

// RendererOption is a functional option for configuring Renderer instances.
type RendererOption func(*Renderer)

// WithProcessor sets the template processor used for rendering.
func WithProcessor(p *template.Processor) RendererOption {
	return func(r *Renderer) {
		r.processor = p
	}
}

// WithRegistry sets the rule registry used to resolve a control's rules.
func WithRegistry(reg Registry) RendererOption {
	return func(r *Renderer) {
		r.registry = reg
	}
}

// WithPlatform sets the target platform identifier influencing macro
// defaults (package manager family, init system assumptions).
func WithPlatform(platform string) RendererOption {
	return func(r *Renderer) {
		r.platform = platform
	}
}

// WithStrict controls what a rule that renders nothing usable does to its
// control: strict aborts the whole control, lenient skips the rule and
// continues.
func WithStrict(strict bool) RendererOption {
	return func(r *Renderer) {
		r.strict = strict
	}
}

// NewRenderer creates a Renderer with the provided options.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{platform: "rhel9"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// platformDefaults builds the product-wide base context for the target
// platform.
func platformDefaults(platform string) map[string]any {
	pkgManager := "dnf"
	if strings.HasPrefix(platform, "ubuntu") || strings.HasPrefix(platform, "debian") {
		pkgManager = "apt_get"
	}
	return map[string]any{
		"PRODUCT":     platform,
		"PKG_MANAGER": pkgManager,
		"INIT_SYSTEM": "systemd",
	}
}

// Context builds the rendering context for one rule: platform defaults,
// rule identity, and the canonical symbols mapped from the rule's declared
// variables.
func (r *Renderer) Context(ru *Rule) map[string]any {
	vars := platformDefaults(r.platform)
	vars["RULE_ID"] = ru.ID
	vars["RULE_TITLE"] = ru.Title

	for _, sym := range canonicalSymbols {
		if v, ok := ru.DeclaredVariables[sym]; ok {
			vars[sym] = v
			continue
		}
		if v, ok := ru.DeclaredVariables[strings.ToLower(sym)]; ok {
			vars[sym] = v
		}
	}
	return vars
}

// RenderRule renders every format the rule declares a template for.
// A failure in one format is logged and that format omitted; the rule as a
// whole fails only when no format renders cleanly.
func (r *Renderer) RenderRule(ctx context.Context, ru *Rule) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ru.TemplatePaths) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidRequest,
			"rule %q declares no templates for any format", ru.ID)
	}

	start := time.Now()
	vars := r.Context(ru)

	var fragments []Fragment
	for _, format := range Formats {
		tmplName, ok := ru.TemplatePaths[string(format)]
		if !ok {
			continue
		}
		text, err := r.processor.Render(tmplName, vars)
		if err != nil {
			// Per-format failures are downgraded: the fragment is
			// dropped, never delivered partially rendered.
			slog.Warn("rule format failed to render",
				"rule", ru.ID,
				"format", format,
				"template", tmplName,
				"error", err,
			)
			ruleRenderTotal.WithLabelValues(string(format), "error").Inc()
			continue
		}
		ruleRenderTotal.WithLabelValues(string(format), "success").Inc()
		fragments = append(fragments, Fragment{RuleID: ru.ID, Format: format, Text: text})
	}

	if len(fragments) == 0 {
		return nil, errors.Newf(errors.ErrCodeInternal,
			"rule %q produced no usable fragment in any format", ru.ID)
	}

	ruleRenderDuration.Observe(time.Since(start).Seconds())
	slog.Debug("rule rendered",
		"rule", ru.ID,
		"fragments", len(fragments),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return fragments, nil
}

// RenderControl renders all rules of a control in declared order and
// returns the fragments grouped by format, preserving rule order within
// each group. Rules that produce nothing usable are skipped or abort the
// control according to the strictness option.
func (r *Renderer) RenderControl(ctx context.Context, c *Control) (map[Format][]Fragment, error) {
	if r.registry == nil {
		return nil, errors.New(errors.ErrCodeInternal, "renderer has no registry configured")
	}
	if len(c.RuleIDs) == 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidRequest,
			"control %q has no rules", c.ControlID)
	}

	grouped := make(map[Format][]Fragment)
	var contributed int
	for _, ruleID := range c.RuleIDs {
		ru, err := r.registry.Rule(ctx, ruleID)
		if err != nil {
			if r.strict {
				return nil, err
			}
			slog.Warn("skipping unresolvable rule", "control", c.ControlID, "rule", ruleID, "error", err)
			continue
		}
		fragments, err := r.RenderRule(ctx, ru)
		if err != nil {
			if r.strict {
				return nil, errors.Wrap(errors.ErrCodeInternal,
					"control "+c.ControlID+" aborted by rule "+ruleID, err)
			}
			slog.Warn("skipping rule that rendered nothing usable",
				"control", c.ControlID, "rule", ruleID, "error", err)
			continue
		}
		contributed++
		for _, f := range fragments {
			grouped[f.Format] = append(grouped[f.Format], f)
		}
	}

	if contributed == 0 {
		return nil, errors.Newf(errors.ErrCodeInternal,
			"control %q: no rule rendered a usable fragment", c.ControlID)
	}
	return grouped, nil
}
