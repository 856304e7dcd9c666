package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencomply/remedygen/pkg/errors"
	"github.com/opencomply/remedygen/pkg/rule"
)

// state names the updater's transaction phases, for logs and errors.
type state string

const (
	stateLoaded    state = "loaded"
	stateValidated state = "validated"
	stateBackedUp  state = "backed_up"
	stateWritten   state = "written"
	stateVerified  state = "verified"
	stateCommitted state = "committed"
)

// Updater applies script updates to a catalog file. It owns no in-memory
// state between invocations: every Apply loads the file fresh.
type Updater struct {
	path  string
	clock func() time.Time

	// writeTemp writes the serialized catalog to a temporary file in dir
	// and returns its path. Replaceable for fault-injection tests.
	writeTemp func(dir string, data []byte) (string, error)
}

// UpdaterOption is a functional option for configuring Updater instances.
type UpdaterOption func(*Updater)

// WithClock sets the time source used for backup names and metadata
// stamps.
func WithClock(clock func() time.Time) UpdaterOption {
	return func(u *Updater) {
		u.clock = clock
	}
}

// NewUpdater creates an Updater for the catalog at path.
func NewUpdater(path string, opts ...UpdaterOption) *Updater {
	u := &Updater{
		path:      path,
		clock:     time.Now,
		writeTemp: writeTempFile,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Apply runs one catalog transaction: load, validate every target, back
// up, merge, write to a temporary file, verify, and atomically commit.
// Any failure before the backup leaves the original untouched; any
// failure after it leaves the backup in place for manual recovery and
// still never mutates the original file.
func (u *Updater) Apply(ctx context.Context, updates []Update, sourceTag string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "no catalog updates supplied")
	}

	opID := uuid.New().String()
	start := u.clock()

	// Loaded: the whole file is parsed up front; a corrupt catalog is
	// never partially processed.
	raw, err := os.ReadFile(u.path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, "catalog file "+u.path, err)
	}
	var entries []*Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		catalogUpdateTotal.WithLabelValues("parse_error").Inc()
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest,
			"catalog file "+u.path+" failed to parse", err)
	}
	slog.Debug("catalog loaded", "operation", opID, "state", stateLoaded, "entries", len(entries))

	// Validated: all-or-nothing. A single missing target aborts before
	// anything is written.
	index := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		index[rule.NormalizeControlID(e.ControlID)] = e
	}
	var missing []string
	for _, up := range updates {
		if _, ok := index[rule.NormalizeControlID(up.ControlID)]; !ok {
			missing = append(missing, up.ControlID)
		}
	}
	if len(missing) > 0 {
		catalogUpdateTotal.WithLabelValues("missing_target").Inc()
		return nil, errors.Newf(errors.ErrCodeNotFound,
			"catalog has no entry for control(s): %s", strings.Join(missing, ", "))
	}
	slog.Debug("catalog targets validated", "operation", opID, "state", stateValidated, "targets", len(updates))

	// BackedUp: timestamped copy before any mutation.
	backupPath := u.backupPath(sourceTag)
	if err := copyFile(u.path, backupPath); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "catalog backup failed", err)
	}
	slog.Debug("catalog backed up", "operation", opID, "state", stateBackedUp, "backup", backupPath)

	// Written: merge in memory, then serialize to a temp file in the
	// same directory so the final rename cannot cross filesystems.
	now := u.clock().UTC()
	for _, up := range updates {
		entry := index[rule.NormalizeControlID(up.ControlID)]
		mergeScripts(entry, up.Scripts)
		entry.Metadata = &Metadata{
			HasScripts:      true,
			LastUpdated:     now,
			MigrationSource: sourceTag,
		}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "catalog serialization failed", err)
	}
	data = append(data, '\n')

	tmpPath, err := u.writeTemp(filepath.Dir(u.path), data)
	if err != nil {
		catalogUpdateTotal.WithLabelValues("write_error").Inc()
		return nil, errors.Wrap(errors.ErrCodeInternal, "catalog write failed", err)
	}
	slog.Debug("catalog written", "operation", opID, "state", stateWritten, "temp", tmpPath)

	// Verified: the temp file must re-parse before it may replace the
	// catalog.
	verify, err := os.ReadFile(tmpPath)
	if err == nil {
		var check []*Entry
		err = json.Unmarshal(verify, &check)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		catalogUpdateTotal.WithLabelValues("verify_error").Inc()
		return nil, errors.Wrap(errors.ErrCodeInternal,
			"catalog post-write verification failed", err)
	}
	slog.Debug("catalog verified", "operation", opID, "state", stateVerified)

	// Committed: atomic replace. Readers see either the old or the new
	// catalog, never an intermediate state.
	if err := os.Rename(tmpPath, u.path); err != nil {
		_ = os.Remove(tmpPath)
		catalogUpdateTotal.WithLabelValues("commit_error").Inc()
		return nil, errors.Wrap(errors.ErrCodeInternal, "catalog commit failed", err)
	}

	catalogUpdateTotal.WithLabelValues("success").Inc()
	catalogUpdateDuration.Observe(time.Since(start).Seconds())
	slog.Info("catalog updated",
		"operation", opID,
		"state", stateCommitted,
		"targets", len(updates),
		"backup", backupPath,
	)
	return &Result{OperationID: opID, BackupPath: backupPath, Updated: len(updates)}, nil
}

// backupPath builds the timestamped backup name: the original filename
// stem plus timestamp and operation tag. Backups are additive and never
// pruned by this subsystem.
func (u *Updater) backupPath(tag string) string {
	dir := filepath.Dir(u.path)
	base := filepath.Base(u.path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	ts := u.clock().UTC().Format("20060102T150405Z")
	if tag == "" {
		tag = "update"
	}
	return filepath.Join(dir, fmt.Sprintf("%s.backup-%s-%s%s", stem, ts, tag, ext))
}

// mergeScripts merges new os/format script entries into an entry,
// preserving unrelated existing entries.
func mergeScripts(entry *Entry, scripts Scripts) {
	if entry.ImplementationScripts == nil {
		entry.ImplementationScripts = Scripts{}
	}
	for osID, formats := range scripts {
		if entry.ImplementationScripts[osID] == nil {
			entry.ImplementationScripts[osID] = map[string]string{}
		}
		for format, text := range formats {
			entry.ImplementationScripts[osID][format] = text
		}
	}
}

func writeTempFile(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
