// Package template renders remediation template sources. A template is
// ordinary text with macro-extended actions delimited by triple braces:
//
//	{{{ audit_syscall_rule (dict "tool" "augenrules" "syscalls" .SYSCALLS "key" .KEY) }}}
//
// The macro library is bound as in-scope callables and the merged variable
// context is bound as the dot. Rendering is strict: an unknown macro, a
// variable absent from context, or any residual triple-brace marker in the
// output is a rendering failure, never silently-partial output.
package template

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"

	"github.com/opencomply/remedygen/pkg/errors"
	"github.com/opencomply/remedygen/pkg/macro"
)

// Marker is the unexpanded-placeholder sequence that must never survive a
// successful render.
const Marker = "{{{"

const closeMarker = "}}}"

// SourceFunc retrieves template source text by identifier.
type SourceFunc func(name string) (string, bool)

// MapSource creates a SourceFunc from a map of template names to content.
func MapSource(sources map[string]string) SourceFunc {
	return func(name string) (string, bool) {
		src, ok := sources[name]
		return src, ok
	}
}

// Processor renders template sources against the macro library.
type Processor struct {
	source   SourceFunc
	registry *macro.Registry
}

// Option is a functional option for configuring Processor instances.
type Option func(*Processor)

// WithSource sets the template source lookup.
func WithSource(source SourceFunc) Option {
	return func(p *Processor) {
		p.source = source
	}
}

// WithRegistry sets the macro registry bound into templates.
func WithRegistry(r *macro.Registry) Option {
	return func(p *Processor) {
		p.registry = r
	}
}

// New creates a Processor with the provided options. The default macro
// registry is used unless overridden.
func New(opts ...Option) *Processor {
	p := &Processor{registry: macro.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var (
	unknownFuncRe = regexp.MustCompile(`function "([^"]+)" not defined`)
	missingKeyRe  = regexp.MustCompile(`map has no entry for key "([^"]+)"`)
)

// Render loads the named template, binds the macro library and the
// variable context, and returns the rendered text.
func (p *Processor) Render(name string, vars map[string]any) (string, error) {
	if p.source == nil {
		return "", errors.New(errors.ErrCodeInternal, "template processor has no source configured")
	}
	src, ok := p.source(name)
	if !ok {
		return "", errors.Newf(errors.ErrCodeNotFound, "template %q not found", name)
	}

	tmpl, err := template.New(name).
		Delims(Marker, closeMarker).
		Option("missingkey=error").
		Funcs(p.funcMap()).
		Parse(src)
	if err != nil {
		if m := unknownFuncRe.FindStringSubmatch(err.Error()); m != nil {
			// Lookup produces the "unknown macro" error with the
			// nearest-name suggestion.
			_, lookupErr := p.registry.Lookup(m[1])
			return "", errors.Wrap(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("template %q references an unknown macro", name), lookupErr)
		}
		return "", errors.Wrap(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("template %q failed to parse", name), err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		if m := missingKeyRe.FindStringSubmatch(err.Error()); m != nil {
			return "", errors.Newf(errors.ErrCodeInvalidRequest,
				"template %q references variable %q which is absent from context", name, m[1])
		}
		return "", errors.Wrap(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("template %q failed to render", name), err)
	}

	out := buf.String()
	if idx := strings.Index(out, Marker); idx >= 0 {
		// A surviving marker means a variable or macro went unmapped.
		// This is a logic error to surface, not output to deliver.
		line := 1 + strings.Count(out[:idx], "\n")
		slog.Warn("rendered output contains unexpanded placeholder",
			"template", name,
			"line", line,
		)
		return "", errors.Newf(errors.ErrCodeInternal,
			"template %q rendered with unexpanded placeholder marker at output line %d", name, line)
	}
	return out, nil
}

// funcMap exposes every registered macro as a template function, plus the
// dict helper for building keyword parameter maps.
func (p *Processor) funcMap() template.FuncMap {
	fm := template.FuncMap{
		"dict": dict,
	}
	for name, m := range p.registry.All() {
		fn := m.Fn
		fm[name] = func(args ...any) (string, error) {
			params, err := paramsFromArgs(args)
			if err != nil {
				return "", err
			}
			return fn(params)
		}
	}
	return fm
}

// paramsFromArgs converts template call arguments into macro parameters.
// Accepts a single map (built with dict) or an even-length list of
// alternating keys and values.
func paramsFromArgs(args []any) (macro.Params, error) {
	if len(args) == 1 {
		if m, ok := args[0].(map[string]any); ok {
			return macro.Params(m), nil
		}
		if m, ok := args[0].(macro.Params); ok {
			return m, nil
		}
	}
	if len(args)%2 != 0 {
		return nil, errors.New(errors.ErrCodeInvalidRequest,
			"macro call arguments must be a dict or alternating key/value pairs")
	}
	params := make(macro.Params, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidRequest,
				"macro call argument %d must be a string key, got %T", i, args[i])
		}
		params[key] = args[i+1]
	}
	return params, nil
}

// dict builds a string-keyed map from alternating key/value arguments.
func dict(args ...any) (map[string]any, error) {
	if len(args)%2 != 0 {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "dict requires an even number of arguments")
	}
	m := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidRequest,
				"dict key %d must be a string, got %T", i/2, args[i])
		}
		m[key] = args[i+1]
	}
	return m, nil
}
