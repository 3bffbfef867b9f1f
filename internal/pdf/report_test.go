package pdf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/internal/models"
)

func sampleEntries() []models.LogEntry {
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	task := models.Task{ID: "t1", Title: "Buy milk"}
	return []models.LogEntry{
		models.NewLogEntry(models.ActionUpdated, task, at.Add(time.Minute)),
		models.NewLogEntry(models.ActionAdded, task, at),
	}
}

func TestLogReport_CoreFontFallback(t *testing.T) {
	g := NewReportGenerator(t.TempDir(), "does/not/exist.ttf")

	var buf bytes.Buffer
	require.NoError(t, g.LogReport(&buf, LogReportData{Entries: sampleEntries(), Pending: 1}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestLogReport_Empty(t *testing.T) {
	g := NewReportGenerator(t.TempDir(), "")

	var buf bytes.Buffer
	require.NoError(t, g.LogReport(&buf, LogReportData{}))
	assert.NotZero(t, buf.Len())
}

func TestSave_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	g := NewReportGenerator(dir, "")

	path, err := g.Save(LogReportData{Entries: sampleEntries(), Filename: "../../escape.pdf"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}
