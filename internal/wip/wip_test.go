package wip

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr := NewTracker(filepath.Join(t.TempDir(), "state", "WIP.md"))
	tr.now = func() time.Time {
		return time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	}
	return tr
}

func TestList_CreatesTemplate(t *testing.T) {
	tr := newTestTracker(t)
	content, err := tr.List()
	require.NoError(t, err)
	assert.Contains(t, content, headerInProgress)
	assert.Contains(t, content, headerBlocked)
	assert.Contains(t, content, headerDone)

	_, err = os.Stat(tr.Path)
	assert.NoError(t, err)
}

func TestAdd(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Add("media queue", "waiting on review"))

	content, err := tr.List()
	require.NoError(t, err)
	assert.Contains(t, content, "| media queue | waiting on review | 2026-08-30 14:30 |")

	// Row lands in the In Progress section.
	idx := strings.Index(content, headerInProgress)
	blockedIdx := strings.Index(content, headerBlocked)
	rowIdx := strings.Index(content, "| media queue |")
	assert.Greater(t, rowIdx, idx)
	assert.Less(t, rowIdx, blockedIdx)
}

func TestAdd_Duplicate(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Add("task", ""))
	err := tr.Add("task", "again")
	assert.ErrorContains(t, err, "already tracked")
}

func TestAdd_EmptyTask(t *testing.T) {
	tr := newTestTracker(t)
	assert.Error(t, tr.Add("", "note"))
}

func TestDone_MovesRow(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Add("ship it", "in progress"))
	require.NoError(t, tr.Done("ship it", "merged"))

	content, err := tr.List()
	require.NoError(t, err)
	doneIdx := strings.Index(content, headerDone)
	rowIdx := strings.Index(content, "| ship it | merged |")
	require.GreaterOrEqual(t, rowIdx, 0)
	assert.Greater(t, rowIdx, doneIdx)
	assert.NotContains(t, content, "in progress")
}

func TestDone_DefaultResult(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Add("task", ""))
	require.NoError(t, tr.Done("task", ""))

	content, err := tr.List()
	require.NoError(t, err)
	assert.Contains(t, content, "| task | 完了 |")
}

func TestDone_NotFound(t *testing.T) {
	tr := newTestTracker(t)
	err := tr.Done("ghost", "")
	assert.ErrorContains(t, err, "not found")
}

func TestBlock(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Add("deploy", ""))
	require.NoError(t, tr.Block("deploy", "waiting on token"))

	content, err := tr.List()
	require.NoError(t, err)
	blockedIdx := strings.Index(content, headerBlocked)
	doneIdx := strings.Index(content, headerDone)
	rowIdx := strings.Index(content, "| deploy | waiting on token |")
	require.GreaterOrEqual(t, rowIdx, 0)
	assert.Greater(t, rowIdx, blockedIdx)
	assert.Less(t, rowIdx, doneIdx)
}

func TestClean(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.List()
	require.NoError(t, err)

	// Seed the Done section with an old and a recent row.
	content, err := os.ReadFile(tr.Path)
	require.NoError(t, err)
	seeded := strings.Replace(string(content), headerDone,
		headerDone+"\n| old task | done | 2026-06-01 10:00 |\n| recent task | done | 2026-08-25 10:00 |", 1)
	require.NoError(t, os.WriteFile(tr.Path, []byte(seeded), 0o644))

	removed, err := tr.Clean()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	after, err := tr.List()
	require.NoError(t, err)
	assert.NotContains(t, after, "old task")
	assert.Contains(t, after, "recent task")
}

func TestClean_LeavesOtherSectionsAlone(t *testing.T) {
	tr := newTestTracker(t)
	require.NoError(t, tr.Add("current", "note"))

	removed, err := tr.Clean()
	require.NoError(t, err)
	assert.Zero(t, removed)

	content, err := tr.List()
	require.NoError(t, err)
	assert.Contains(t, content, "| current | note |")
}
