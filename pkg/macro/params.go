package macro

import (
	"strings"

	"github.com/opencomply/remedygen/pkg/errors"
)

// Params holds the keyword parameters passed to a macro invocation.
// Values are strings, string lists, or bools; typed accessors validate and
// convert, failing with errors that name the offending parameter.
type Params map[string]any

// String returns a required string parameter.
func (p Params) String(macroName, name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", errors.Newf(errors.ErrCodeInvalidRequest,
			"macro %q: missing required parameter %q", macroName, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Newf(errors.ErrCodeInvalidRequest,
			"macro %q: parameter %q must be a string, got %T", macroName, name, v)
	}
	return s, nil
}

// StringDefault returns an optional string parameter, or def when absent.
func (p Params) StringDefault(name, def string) string {
	if v, ok := p[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// StringList returns a required list parameter. A plain string is accepted
// and split on whitespace, matching how rule variables declare syscall
// lists ("openat open").
func (p Params) StringList(macroName, name string) ([]string, error) {
	v, ok := p[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidRequest,
			"macro %q: missing required parameter %q", macroName, name)
	}
	switch t := v.(type) {
	case string:
		return strings.Fields(t), nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, errors.Newf(errors.ErrCodeInvalidRequest,
					"macro %q: parameter %q must contain only strings, got %T", macroName, name, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidRequest,
			"macro %q: parameter %q must be a string or list of strings, got %T", macroName, name, v)
	}
}

// StringListDefault returns an optional list parameter, or nil when absent.
func (p Params) StringListDefault(macroName, name string) ([]string, error) {
	if _, ok := p[name]; !ok {
		return nil, nil
	}
	return p.StringList(macroName, name)
}

// Bool returns an optional bool parameter, or def when absent. String
// values "true"/"false" are accepted because template variable contexts
// carry strings.
func (p Params) Bool(macroName, name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(t) {
		case "true", "yes":
			return true, nil
		case "false", "no":
			return false, nil
		}
	}
	return false, errors.Newf(errors.ErrCodeInvalidRequest,
		"macro %q: parameter %q must be a boolean, got %v", macroName, name, v)
}

// Enum returns a required string parameter constrained to the allowed set.
func (p Params) Enum(macroName, name string, allowed ...string) (string, error) {
	s, err := p.String(macroName, name)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", errors.Newf(errors.ErrCodeInvalidRequest,
		"macro %q: invalid value %q for parameter %q, valid values are: %s",
		macroName, s, name, strings.Join(allowed, ", "))
}

// shQuote single-quotes s for safe embedding in generated shell.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// yamlQuote double-quotes s for embedding in generated YAML scalars.
func yamlQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
