// Package scheduler runs the assistant's recurring jobs in process:
// arming and disarming the overnight command guard, the morning task
// digest and periodic memory syncs. Jobs persist to a JSON file so
// edits survive restarts.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobKind names the built-in actions a job can trigger.
type JobKind string

const (
	KindGuardArm    JobKind = "guard_arm"
	KindGuardDisarm JobKind = "guard_disarm"
	KindDigest      JobKind = "digest"
	KindMemSync     JobKind = "memsync"
)

// JobExecutor is called when a job fires.
type JobExecutor func(ctx context.Context, job *Job) error

// Job is one scheduled action.
type Job struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Schedule  string     `json:"schedule"` // cron expression, 5 or 6 fields
	Kind      JobKind    `json:"kind"`
	Enabled   bool       `json:"enabled"`
	OneShot   bool       `json:"oneshot,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	RunCount  int        `json:"run_count"`
	LastError string     `json:"last_error,omitempty"`

	entryID cron.EntryID
}

// Scheduler owns the cron runner and the persisted job list.
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]*Job
	jobsFile string
	executor JobExecutor
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a scheduler persisting to jobsFile.
func New(jobsFile string, executor JobExecutor) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(),
		jobs:     make(map[string]*Job),
		jobsFile: jobsFile,
		executor: executor,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start loads persisted jobs and begins firing them.
func (s *Scheduler) Start() error {
	if err := s.loadJobs(); err != nil {
		log.Printf("[Scheduler] Warning: failed to load jobs: %v", err)
	}

	s.mu.Lock()
	for _, job := range s.jobs {
		if job.Enabled {
			if err := s.scheduleJob(job); err != nil {
				log.Printf("[Scheduler] Failed to schedule job %s: %v", job.ID, err)
			}
		}
	}
	s.mu.Unlock()

	s.cron.Start()

	// Entry.Next is only computed once the runner is started, so the
	// next-run times of reloaded jobs must be refreshed here.
	s.mu.Lock()
	for _, job := range s.jobs {
		if job.entryID != 0 {
			entry := s.cron.Entry(job.entryID)
			if !entry.Next.IsZero() {
				job.NextRun = &entry.Next
			}
		}
	}
	s.mu.Unlock()

	log.Printf("[Scheduler] Started with %d job(s)", len(s.jobs))
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("[Scheduler] Stopped")
}

// AddJob validates, schedules and persists a new job.
func (s *Scheduler) AddJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	switch job.Kind {
	case KindGuardArm, KindGuardDisarm, KindDigest, KindMemSync:
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(job.Schedule); err != nil {
			return fmt.Errorf("invalid cron expression: %v", err)
		}
	}

	job.CreatedAt = time.Now()
	if job.Enabled {
		if err := s.scheduleJob(job); err != nil {
			return err
		}
	}
	s.jobs[job.ID] = job
	return s.saveJobs()
}

// RemoveJob unschedules and forgets a job.
func (s *Scheduler) RemoveJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.entryID != 0 {
		s.cron.Remove(job.entryID)
	}
	delete(s.jobs, jobID)
	return s.saveJobs()
}

// GetJob returns a job by ID.
func (s *Scheduler) GetJob(jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

// ListJobs returns all jobs.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// EnableJob turns a disabled job back on.
func (s *Scheduler) EnableJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}
	if !job.Enabled {
		job.Enabled = true
		if err := s.scheduleJob(job); err != nil {
			return err
		}
	}
	return s.saveJobs()
}

// DisableJob stops a job from firing without deleting it.
func (s *Scheduler) DisableJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Enabled {
		job.Enabled = false
		if job.entryID != 0 {
			s.cron.Remove(job.entryID)
			job.entryID = 0
		}
	}
	return s.saveJobs()
}

// RunNow fires a job immediately, off-schedule.
func (s *Scheduler) RunNow(jobID string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}
	go s.executeJob(job)
	return nil
}

func (s *Scheduler) scheduleJob(job *Job) error {
	if job.entryID != 0 {
		s.cron.Remove(job.entryID)
	}

	entryID, err := s.cron.AddFunc(job.Schedule, func() {
		s.executeJob(job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job: %v", err)
	}
	job.entryID = entryID

	entry := s.cron.Entry(entryID)
	if !entry.Next.IsZero() {
		job.NextRun = &entry.Next
	}
	log.Printf("[Scheduler] Scheduled job: %s (%s) - next run: %v", job.ID, job.Kind, job.NextRun)
	return nil
}

func (s *Scheduler) executeJob(job *Job) {
	log.Printf("[Scheduler] Executing job: %s (%s)", job.ID, job.Kind)

	now := time.Now()
	job.LastRun = &now
	job.RunCount++

	var err error
	if s.executor != nil {
		err = s.executor(s.ctx, job)
	}
	if err != nil {
		job.LastError = err.Error()
		log.Printf("[Scheduler] Job %s failed: %v", job.ID, err)
	} else {
		job.LastError = ""
		log.Printf("[Scheduler] Job %s completed", job.ID)
	}

	if job.OneShot {
		s.mu.Lock()
		if job.entryID != 0 {
			s.cron.Remove(job.entryID)
		}
		delete(s.jobs, job.ID)
		s.saveJobs()
		s.mu.Unlock()
		log.Printf("[Scheduler] One-shot job %s removed", job.ID)
		return
	}

	if job.entryID != 0 {
		entry := s.cron.Entry(job.entryID)
		if !entry.Next.IsZero() {
			job.NextRun = &entry.Next
		}
	}

	s.mu.Lock()
	s.saveJobs()
	s.mu.Unlock()
}

func (s *Scheduler) loadJobs() error {
	data, err := os.ReadFile(s.jobsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return err
	}

	s.mu.Lock()
	for _, job := range jobs {
		s.jobs[job.ID] = job
	}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) saveJobs() error {
	if err := os.MkdirAll(filepath.Dir(s.jobsFile), 0755); err != nil {
		return err
	}

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.jobsFile, data, 0644)
}

// Status summarizes the scheduler for the status command.
func (s *Scheduler) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enabled := 0
	for _, job := range s.jobs {
		if job.Enabled {
			enabled++
		}
	}
	return map[string]interface{}{
		"total_jobs":   len(s.jobs),
		"enabled_jobs": enabled,
		"cron_entries": len(s.cron.Entries()),
	}
}
