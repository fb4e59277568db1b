package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotatingWriterShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	w, err := newRotatingWriter(AuditConfig{Path: path, MaxBackups: 2})
	require.NoError(t, err)
	w.maxSize = 16
	t.Cleanup(func() { _ = w.Close() })

	for _, line := range []string{"first-entry\n", "second-entry\n", "third-entry\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "third-entry\n", string(current))

	one, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	require.Equal(t, "second-entry\n", string(one))

	two, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	require.Equal(t, "first-entry\n", string(two))
}

func TestInitWritesAuditStream(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit", "events.log")

	require.NoError(t, Init(Config{
		Level:       "debug",
		OutputPaths: []string{"discard"},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	}))
	t.Cleanup(func() { _ = Sync() })

	Audit().Info("payment accepted", "task_id", "t-1")
	require.NoError(t, Sync())

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), `"task_id":"t-1"`))
}
