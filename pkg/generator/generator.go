// Package generator is the single entry point callers use to turn a
// control identifier into a validated remediation artifact. It wires the
// registry lookup, per-rule rendering, fragment combination, and output
// validation behind one call, so the CLI and batch migration share the
// exact same pipeline.
package generator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencomply/remedygen/pkg/combine"
	"github.com/opencomply/remedygen/pkg/errors"
	"github.com/opencomply/remedygen/pkg/rule"
	"github.com/opencomply/remedygen/pkg/template"
)

// Request names one artifact to generate.
type Request struct {
	// ControlID selects the control; matching is case-insensitive on the
	// normalized identifier.
	ControlID string
	// Platform is the target platform identifier, e.g. "rhel9".
	Platform string
	// Format selects the output artifact format.
	Format rule.Format
	// Variables overrides rule-declared variables by name. Overrides
	// apply to every rule of the control.
	Variables map[string]string
	// Strict aborts the whole control when any rule fails to render.
	Strict bool
}

// Metadata describes a generated artifact.
type Metadata struct {
	RequestID   string    `json:"request_id"`
	ControlID   string    `json:"control_id"`
	Platform    string    `json:"platform"`
	Format      string    `json:"format"`
	SizeBytes   int       `json:"size_bytes"`
	LineCount   int       `json:"line_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Output is a generated artifact plus its validation verdict. Validation
// findings never suppress the text: callers decide what an invalid
// artifact means for them.
type Output struct {
	Text       string
	Rules      int
	Validation *ValidationReport
	Metadata   *Metadata
}

// Generator is the script-generation facade.
type Generator struct {
	registry  rule.Registry
	processor *template.Processor
	validator *validator
	clock     func() time.Time
}

// Option is a functional option for configuring Generator instances.
type Option func(*Generator)

// WithRegistry sets the control/rule registry.
func WithRegistry(reg rule.Registry) Option {
	return func(g *Generator) {
		g.registry = reg
	}
}

// WithProcessor sets the template processor used for rendering.
func WithProcessor(p *template.Processor) Option {
	return func(g *Generator) {
		g.processor = p
	}
}

// New creates a Generator with the provided options.
func New(opts ...Option) *Generator {
	g := &Generator{
		validator: newValidator(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.processor == nil {
		g.processor = template.New()
	}
	return g
}

// overrideRegistry wraps a Registry so every resolved rule carries the
// request's variable overrides on top of its declared variables.
type overrideRegistry struct {
	rule.Registry
	vars map[string]string
}

func (o *overrideRegistry) Rule(ctx context.Context, id string) (*rule.Rule, error) {
	r, err := o.Registry.Rule(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]string, len(r.DeclaredVariables)+len(o.vars))
	for k, v := range r.DeclaredVariables {
		merged[k] = v
	}
	for k, v := range o.vars {
		merged[k] = v
	}
	clone := *r
	clone.DeclaredVariables = merged
	return &clone, nil
}

// Generate renders, combines, and validates one artifact. An unknown
// control is a NOT_FOUND error; an artifact that renders but fails
// validation is NOT an error and is returned with Validation.Valid false.
func (g *Generator) Generate(ctx context.Context, req Request) (*Output, error) {
	if g.registry == nil {
		return nil, errors.New(errors.ErrCodeInternal, "generator has no registry configured")
	}
	if req.ControlID == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "control id is required")
	}
	if req.Format == "" {
		return nil, errors.Newf(errors.ErrCodeInvalidRequest,
			"format is required, one of: %s", formatNames())
	}

	requestID := uuid.New().String()
	start := g.clock()

	ctrl, err := g.registry.Control(ctx, req.ControlID)
	if err != nil {
		generateTotal.WithLabelValues(string(req.Format), "not_found").Inc()
		return nil, err
	}

	reg := g.registry
	if len(req.Variables) > 0 {
		reg = &overrideRegistry{Registry: g.registry, vars: req.Variables}
	}
	platform := req.Platform
	if platform == "" {
		platform = "rhel9"
	}
	renderer := rule.NewRenderer(
		rule.WithProcessor(g.processor),
		rule.WithRegistry(reg),
		rule.WithPlatform(platform),
		rule.WithStrict(req.Strict),
	)

	grouped, err := renderer.RenderControl(ctx, ctrl)
	if err != nil {
		generateTotal.WithLabelValues(string(req.Format), "render_error").Inc()
		return nil, err
	}

	art, err := combine.Combine(req.Format, grouped[req.Format], combine.Options{Banner: ctrl.Title})
	if err != nil {
		generateTotal.WithLabelValues(string(req.Format), "combine_error").Inc()
		return nil, err
	}

	report := g.validator.Validate(ctx, req.Format, art.Text)
	status := "success"
	if !report.Valid {
		status = "invalid"
	}
	generateTotal.WithLabelValues(string(req.Format), status).Inc()
	generateDuration.Observe(time.Since(start).Seconds())

	out := &Output{
		Text:       art.Text,
		Rules:      art.Rules,
		Validation: report,
		Metadata: &Metadata{
			RequestID:   requestID,
			ControlID:   ctrl.ControlID,
			Platform:    platform,
			Format:      string(req.Format),
			SizeBytes:   len(art.Text),
			LineCount:   strings.Count(art.Text, "\n"),
			GeneratedAt: start.UTC(),
		},
	}
	slog.Info("artifact generated",
		"request", requestID,
		"control", ctrl.ControlID,
		"format", req.Format,
		"rules", art.Rules,
		"valid", report.Valid,
		"checker", report.Checker,
		"bytes", out.Metadata.SizeBytes,
	)
	return out, nil
}

func formatNames() string {
	names := make([]string, 0, len(rule.Formats))
	for _, f := range rule.Formats {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
