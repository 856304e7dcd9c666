package rule

import (
	"context"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opencomply/remedygen/pkg/errors"
)

// Registry is the external control/rule lookup this pipeline consumes.
// Implementations own the storage format; the pipeline treats results as
// read-only and reads fresh per invocation.
type Registry interface {
	// Control resolves a control by id (case-insensitive on the
	// normalized id).
	Control(ctx context.Context, id string) (*Control, error)

	// Rule resolves a rule by id.
	Rule(ctx context.Context, id string) (*Rule, error)
}

// registryFile is the on-disk shape consumed by FileRegistry.
type registryFile struct {
	Rules    []*Rule    `yaml:"rules"`
	Controls []*Control `yaml:"controls"`
}

// FileRegistry is a YAML-file-backed Registry used by the CLI. The file is
// parsed once at construction; the pipeline's no-caching contract applies
// to the catalog, not to this read-only lookup.
type FileRegistry struct {
	rules    map[string]*Rule
	controls map[string]*Control
}

// NewFileRegistry loads a registry from a YAML file holding rules and
// controls.
func NewFileRegistry(path string) (*FileRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, "registry file "+path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry builds a FileRegistry from raw YAML.
func ParseRegistry(data []byte) (*FileRegistry, error) {
	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "registry file failed to parse", err)
	}

	reg := &FileRegistry{
		rules:    make(map[string]*Rule, len(rf.Rules)),
		controls: make(map[string]*Control, len(rf.Controls)),
	}
	for _, r := range rf.Rules {
		if r.ID == "" {
			return nil, errors.New(errors.ErrCodeInvalidRequest, "registry rule with empty id")
		}
		reg.rules[r.ID] = r
	}
	for _, c := range rf.Controls {
		if c.ControlID == "" {
			return nil, errors.New(errors.ErrCodeInvalidRequest, "registry control with empty control_id")
		}
		c.ControlID = NormalizeControlID(c.ControlID)
		reg.controls[c.ControlID] = c
	}
	return reg, nil
}

// Control implements Registry.
func (f *FileRegistry) Control(_ context.Context, id string) (*Control, error) {
	c, ok := f.controls[NormalizeControlID(id)]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNotFound, "control %q not found in registry", id)
	}
	return c, nil
}

// Rule implements Registry.
func (f *FileRegistry) Rule(_ context.Context, id string) (*Rule, error) {
	r, ok := f.rules[id]
	if !ok {
		// Rule ids are conventionally lowercase; tolerate declared
		// casing differences the same way control lookup does.
		r, ok = f.rules[strings.ToLower(id)]
	}
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNotFound, "rule %q not found in registry", id)
	}
	return r, nil
}

// Controls returns every control in the registry, for batch migration.
func (f *FileRegistry) Controls() []*Control {
	out := make([]*Control, 0, len(f.controls))
	for _, c := range f.controls {
		out = append(out, c)
	}
	return out
}
