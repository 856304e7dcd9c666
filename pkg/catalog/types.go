// Package catalog persists the shared catalog of controls and merges
// rendered remediation scripts into it through a backup + atomic-replace
// transaction. The catalog file is the single shared mutable resource of
// the pipeline; no reader ever observes a partially written state because
// the rewritten file only becomes visible at the final rename.
package catalog

import "time"

// Scripts maps operating system identifier to format to script text.
type Scripts map[string]map[string]string

// Metadata is the provenance stamp carried by catalog entries that hold
// generated scripts.
type Metadata struct {
	HasScripts      bool      `json:"has_scripts"`
	LastUpdated     time.Time `json:"last_updated"`
	MigrationSource string    `json:"migration_source,omitempty"`
}

// Entry is one persisted control record. Entries are mutated in place by
// the updater and never deleted by this subsystem.
type Entry struct {
	ControlID             string    `json:"control_id"`
	Title                 string    `json:"title,omitempty"`
	Status                string    `json:"status,omitempty"`
	ImplementationScripts Scripts   `json:"implementation_scripts,omitempty"`
	Metadata              *Metadata `json:"metadata,omitempty"`
}

// Update carries the rendered scripts to merge into one control's entry.
type Update struct {
	ControlID string
	Scripts   Scripts
}

// Result reports a committed catalog transaction.
type Result struct {
	// OperationID identifies this invocation in logs and backups.
	OperationID string
	// BackupPath is the pre-mutation copy taken before any change.
	BackupPath string
	// Updated is the number of entries that received scripts.
	Updated int
}
