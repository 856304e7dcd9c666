package template

import (
	"os"
	"path/filepath"
)

// DirSource creates a SourceFunc backed by a directory of template files.
// A template named "audit_rules" resolves to <dir>/audit_rules.tmpl, or to
// <dir>/audit_rules when no .tmpl file exists. Lookups never escape dir.
func DirSource(dir string) SourceFunc {
	return func(name string) (string, bool) {
		base := filepath.Base(name)
		for _, candidate := range []string{base + ".tmpl", base} {
			data, err := os.ReadFile(filepath.Join(dir, candidate))
			if err == nil {
				return string(data), true
			}
		}
		return "", false
	}
}
