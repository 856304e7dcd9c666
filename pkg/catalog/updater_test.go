package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	stderrors "errors"

	"github.com/opencomply/remedygen/pkg/errors"
)

func writeCatalog(t *testing.T, entries []*Entry) string {
	t.Helper()
	data, err := json.MarshalIndent(entries, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readEntries(t *testing.T, path string) []*Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []*Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func seedEntries() []*Entry {
	return []*Entry{
		{
			ControlID: "AC-3",
			Title:     "Access Enforcement",
			Status:    "planned",
			ImplementationScripts: Scripts{
				"ubuntu2204": {"shell": "echo existing"},
			},
		},
		{ControlID: "AU-2", Title: "Audit Events", Status: "planned"},
	}
}

func TestApplyMergesScripts(t *testing.T) {
	path := writeCatalog(t, seedEntries())
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	u := NewUpdater(path, WithClock(func() time.Time { return fixed }))

	res, err := u.Apply(context.Background(), []Update{
		{
			ControlID: "ac-3",
			Scripts:   Scripts{"rhel9": {"shell": "echo fix", "automation": "- name: fix"}},
		},
	}, "scriptmigration")
	require.NoError(t, err)
	require.NotEmpty(t, res.OperationID)
	require.Equal(t, 1, res.Updated)

	entries := readEntries(t, path)
	require.Len(t, entries, 2)

	ac3 := entries[0]
	require.Equal(t, "AC-3", ac3.ControlID)
	// New scripts are merged in, unrelated existing entries survive.
	require.Equal(t, "echo fix", ac3.ImplementationScripts["rhel9"]["shell"])
	require.Equal(t, "- name: fix", ac3.ImplementationScripts["rhel9"]["automation"])
	require.Equal(t, "echo existing", ac3.ImplementationScripts["ubuntu2204"]["shell"])

	require.NotNil(t, ac3.Metadata)
	require.True(t, ac3.Metadata.HasScripts)
	require.True(t, fixed.Equal(ac3.Metadata.LastUpdated))
	require.Equal(t, "scriptmigration", ac3.Metadata.MigrationSource)

	// Untouched entries are carried through unchanged.
	require.Nil(t, entries[1].Metadata)
	require.Equal(t, "AU-2", entries[1].ControlID)
}

func TestApplyBackupNaming(t *testing.T) {
	path := writeCatalog(t, seedEntries())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	u := NewUpdater(path, WithClock(func() time.Time { return fixed }))

	res, err := u.Apply(context.Background(), []Update{
		{ControlID: "AU-2", Scripts: Scripts{"rhel9": {"shell": "echo audit"}}},
	}, "scriptmigration")
	require.NoError(t, err)

	wantBase := "catalog.backup-20260314T092653Z-scriptmigration.json"
	require.Equal(t, wantBase, filepath.Base(res.BackupPath))

	// The backup holds the pre-transaction bytes exactly.
	backup, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	require.True(t, bytes.Equal(before, backup), "backup must match pre-update catalog")
}

func TestApplyMissingTargetAborts(t *testing.T) {
	path := writeCatalog(t, seedEntries())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	u := NewUpdater(path)
	_, err = u.Apply(context.Background(), []Update{
		{ControlID: "AC-3", Scripts: Scripts{"rhel9": {"shell": "echo fix"}}},
		{ControlID: "ZZ-99", Scripts: Scripts{"rhel9": {"shell": "echo nope"}}},
	}, "scriptmigration")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ZZ-99")

	var serr *errors.StructuredError
	require.True(t, stderrors.As(err, &serr))
	require.Equal(t, errors.ErrCodeNotFound, serr.Code)

	// Abort happens before backup: the catalog is byte-identical and no
	// backup file exists.
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(before, after), "aborted transaction must not touch the catalog")

	names, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range names {
		require.NotContains(t, e.Name(), ".backup-", "no backup expected on pre-backup abort")
	}
}

func TestApplyWriteFailureLeavesOriginalIntact(t *testing.T) {
	path := writeCatalog(t, seedEntries())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	u := NewUpdater(path)
	u.writeTemp = func(dir string, data []byte) (string, error) {
		return "", stderrors.New("disk full")
	}

	_, err = u.Apply(context.Background(), []Update{
		{ControlID: "AC-3", Scripts: Scripts{"rhel9": {"shell": "echo fix"}}},
	}, "scriptmigration")
	require.Error(t, err)
	require.Contains(t, err.Error(), "catalog write failed")

	// The failure happened after backup but the original never changed.
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(before, after), "failed write must not touch the catalog")

	// The backup survives for manual recovery and matches the original.
	var backup string
	names, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range names {
		if strings.Contains(e.Name(), ".backup-") {
			backup = filepath.Join(filepath.Dir(path), e.Name())
		}
	}
	require.NotEmpty(t, backup, "backup must exist after post-backup failure")
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	require.True(t, bytes.Equal(before, data))
}

func TestApplyVerifyFailureRemovesTemp(t *testing.T) {
	path := writeCatalog(t, seedEntries())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	u := NewUpdater(path)
	u.writeTemp = func(dir string, data []byte) (string, error) {
		// Corrupt the serialized form so verification must reject it.
		return writeTempFile(dir, append([]byte("{broken"), data...))
	}

	_, err = u.Apply(context.Background(), []Update{
		{ControlID: "AC-3", Scripts: Scripts{"rhel9": {"shell": "echo fix"}}},
	}, "scriptmigration")
	require.Error(t, err)
	require.Contains(t, err.Error(), "verification failed")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(before, after))

	// The rejected temp file is cleaned up.
	names, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range names {
		require.NotContains(t, e.Name(), ".catalog-", "temp file must be removed on verify failure")
	}
}

func TestApplyMissingCatalogFile(t *testing.T) {
	u := NewUpdater(filepath.Join(t.TempDir(), "nope.json"))
	_, err := u.Apply(context.Background(), []Update{
		{ControlID: "AC-3", Scripts: Scripts{"rhel9": {"shell": "x"}}},
	}, "tag")
	require.Error(t, err)

	var serr *errors.StructuredError
	require.True(t, stderrors.As(err, &serr))
	require.Equal(t, errors.ErrCodeNotFound, serr.Code)
}

func TestApplyEmptyUpdates(t *testing.T) {
	path := writeCatalog(t, seedEntries())
	u := NewUpdater(path)
	_, err := u.Apply(context.Background(), nil, "tag")
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeInvalidRequest, errors.CodeOf(err))
}
