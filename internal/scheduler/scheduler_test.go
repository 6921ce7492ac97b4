package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, executor JobExecutor) *Scheduler {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "jobs.json"), executor)
	t.Cleanup(s.Stop)
	return s
}

func TestAddJob_Validation(t *testing.T) {
	s := newTestScheduler(t, nil)

	assert.Error(t, s.AddJob(&Job{Schedule: "0 22 * * *", Kind: KindGuardArm}), "missing ID")
	assert.Error(t, s.AddJob(&Job{ID: "j1", Schedule: "not cron", Kind: KindGuardArm}))
	assert.Error(t, s.AddJob(&Job{ID: "j1", Schedule: "0 22 * * *", Kind: "mystery"}))

	require.NoError(t, s.AddJob(&Job{ID: "j1", Schedule: "0 22 * * *", Kind: KindGuardArm, Enabled: true}))
	assert.Error(t, s.AddJob(&Job{ID: "j1", Schedule: "0 22 * * *", Kind: KindGuardArm}), "duplicate ID")
}

func TestAddJob_SixFieldSchedule(t *testing.T) {
	s := newTestScheduler(t, nil)
	assert.NoError(t, s.AddJob(&Job{ID: "j1", Schedule: "0 0 22 * * *", Kind: KindMemSync}))
}

func TestJobs_Persist(t *testing.T) {
	jobsFile := filepath.Join(t.TempDir(), "jobs.json")
	s := New(jobsFile, nil)
	require.NoError(t, s.AddJob(&Job{ID: "arm", Schedule: "0 22 * * *", Kind: KindGuardArm, Enabled: true}))
	require.NoError(t, s.AddJob(&Job{ID: "digest", Schedule: "30 7 * * *", Kind: KindDigest, Enabled: true}))
	s.Stop()

	data, err := os.ReadFile(jobsFile)
	require.NoError(t, err)
	var saved []*Job
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Len(t, saved, 2)

	// A fresh scheduler picks the jobs back up.
	s2 := New(jobsFile, nil)
	require.NoError(t, s2.Start())
	t.Cleanup(s2.Stop)
	assert.Len(t, s2.ListJobs(), 2)

	job, err := s2.GetJob("arm")
	require.NoError(t, err)
	assert.Equal(t, KindGuardArm, job.Kind)
	assert.NotNil(t, job.NextRun)
}

func TestRunNow(t *testing.T) {
	var runs atomic.Int32
	var gotKind atomic.Value
	s := newTestScheduler(t, func(_ context.Context, job *Job) error {
		runs.Add(1)
		gotKind.Store(job.Kind)
		return nil
	})
	require.NoError(t, s.Start())
	require.NoError(t, s.AddJob(&Job{ID: "sync", Schedule: "0 * * * *", Kind: KindMemSync, Enabled: true}))

	require.NoError(t, s.RunNow("sync"))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, KindMemSync, gotKind.Load())

	job, err := s.GetJob("sync")
	require.NoError(t, err)
	assert.Equal(t, 1, job.RunCount)
	assert.NotNil(t, job.LastRun)

	assert.Error(t, s.RunNow("missing"))
}

func TestRunNow_RecordsError(t *testing.T) {
	s := newTestScheduler(t, func(_ context.Context, _ *Job) error {
		return assert.AnError
	})
	require.NoError(t, s.AddJob(&Job{ID: "j", Schedule: "0 * * * *", Kind: KindDigest, Enabled: true}))
	require.NoError(t, s.RunNow("j"))

	require.Eventually(t, func() bool {
		job, err := s.GetJob("j")
		return err == nil && job.LastError != ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOneShotJobRemovedAfterRun(t *testing.T) {
	s := newTestScheduler(t, func(_ context.Context, _ *Job) error { return nil })
	require.NoError(t, s.AddJob(&Job{ID: "once", Schedule: "0 * * * *", Kind: KindMemSync, Enabled: true, OneShot: true}))
	require.NoError(t, s.RunNow("once"))

	require.Eventually(t, func() bool {
		_, err := s.GetJob("once")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnableDisable(t *testing.T) {
	s := newTestScheduler(t, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.AddJob(&Job{ID: "j", Schedule: "0 22 * * *", Kind: KindGuardArm, Enabled: true}))

	require.NoError(t, s.DisableJob("j"))
	job, err := s.GetJob("j")
	require.NoError(t, err)
	assert.False(t, job.Enabled)
	assert.Equal(t, 0, s.Status()["cron_entries"])

	require.NoError(t, s.EnableJob("j"))
	job, err = s.GetJob("j")
	require.NoError(t, err)
	assert.True(t, job.Enabled)
	assert.Equal(t, 1, s.Status()["cron_entries"])

	assert.Error(t, s.DisableJob("missing"))
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler(t, nil)
	require.NoError(t, s.AddJob(&Job{ID: "j", Schedule: "0 22 * * *", Kind: KindGuardDisarm, Enabled: true}))
	require.NoError(t, s.RemoveJob("j"))
	_, err := s.GetJob("j")
	assert.Error(t, err)
	assert.Error(t, s.RemoveJob("j"))
}
