package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service manages job scheduling and execution
type Service struct {
	jobs    map[string]*Job
	timers  map[string]*time.Timer
	options ServiceOptions
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewService creates a new scheduler service
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.StorePath == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if opts.RunJob == nil {
		return nil, fmt.Errorf("run job callback is required")
	}

	s := &Service{
		jobs:    make(map[string]*Job),
		timers:  make(map[string]*time.Timer),
		options: opts,
	}

	if err := s.loadJobs(); err != nil {
		log.Warn().Err(err).Msg("Failed to load jobs, starting with empty registry")
	}

	s.mu.Lock()
	for _, job := range s.jobs {
		if job.Enabled {
			s.scheduleJobLocked(job)
		}
	}
	s.mu.Unlock()

	log.Info().Int("jobCount", len(s.jobs)).Msg("Scheduler initialized")

	return s, nil
}

// AddJob creates a new scheduled job
func (s *Service) AddJob(params AddParams) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("service is stopped")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}

	nextRunAtMs, err := NextRun(params.Expr, params.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	now := Now()
	job := &Job{
		ID:          uuid.New().String(),
		Name:        params.Name,
		Expr:        params.Expr,
		TZ:          params.TZ,
		Enabled:     params.Enabled,
		CreatedAtMs: now,
		UpdatedAtMs: now,
		State: JobState{
			NextRunAtMs: Int64Ptr(nextRunAtMs),
		},
	}

	s.jobs[job.ID] = job

	if err := s.persistLocked(); err != nil {
		delete(s.jobs, job.ID)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if job.Enabled {
		s.scheduleJobLocked(job)
	}

	log.Info().
		Str("jobId", job.ID).
		Str("name", job.Name).
		Str("expr", job.Expr).
		Bool("enabled", job.Enabled).
		Msg("Job created")

	s.emit(Event{Action: EventActionAdded, JobID: job.ID, NextRunAtMs: job.State.NextRunAtMs})

	return job, nil
}

// UpdateJob updates an existing job
func (s *Service) UpdateJob(id string, patch JobPatch) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("service is stopped")
	}

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", id)
	}

	if patch.Expr != nil {
		job.Expr = *patch.Expr
	}
	if patch.TZ != nil {
		job.TZ = *patch.TZ
	}
	if patch.Enabled != nil {
		job.Enabled = *patch.Enabled
	}

	nextRunAtMs, err := NextRun(job.Expr, job.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	job.State.NextRunAtMs = Int64Ptr(nextRunAtMs)
	job.UpdatedAtMs = Now()

	if err := s.persistLocked(); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.cancelTimerLocked(id)
	if job.Enabled {
		s.scheduleJobLocked(job)
	}

	s.emit(Event{Action: EventActionUpdated, JobID: id, NextRunAtMs: job.State.NextRunAtMs})

	return job, nil
}

// RemoveJob deletes a job
func (s *Service) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	s.cancelTimerLocked(id)
	delete(s.jobs, id)

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist jobs: %w", err)
	}

	s.emit(Event{Action: EventActionDeleted, JobID: id})

	return nil
}

// GetJob returns a job by ID
func (s *Service) GetJob(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// FindByName returns the first job with the given name
func (s *Service) FindByName(name string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.Name == name {
			cp := *job
			return &cp, true
		}
	}
	return nil, false
}

// ListJobs returns all jobs sorted by creation time
func (s *Service) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAtMs < jobs[j].CreatedAtMs
	})
	return jobs
}

// RunNow executes a job immediately, outside its schedule
func (s *Service) RunNow(id string) error {
	s.mu.Lock()
	job, exists := s.jobs[id]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.RunningAtMs != nil {
		s.mu.Unlock()
		return fmt.Errorf("job is already running: %s", id)
	}
	s.mu.Unlock()

	s.executeJob(id)
	return nil
}

// Stop stops the scheduler and waits for in-flight jobs
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	s.mu.Unlock()

	s.wg.Wait()

	log.Info().Msg("Scheduler stopped")
}

// scheduleJobLocked arms a timer for the job's next run. Caller holds the lock.
func (s *Service) scheduleJobLocked(job *Job) {
	if job.State.NextRunAtMs == nil {
		return
	}

	delay := time.Duration(*job.State.NextRunAtMs-Now()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	id := job.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.executeJob(id)
	})
}

// cancelTimerLocked stops and removes a pending timer. Caller holds the lock.
func (s *Service) cancelTimerLocked(id string) {
	if timer, exists := s.timers[id]; exists {
		timer.Stop()
		delete(s.timers, id)
	}
}

// executeJob runs a job, records the outcome, and reschedules
func (s *Service) executeJob(id string) {
	s.mu.Lock()
	job, exists := s.jobs[id]
	if !exists || s.stopped {
		s.mu.Unlock()
		return
	}
	if job.State.RunningAtMs != nil {
		s.mu.Unlock()
		return
	}
	job.State.RunningAtMs = Int64Ptr(Now())
	cp := *job
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	start := time.Now()
	err := s.options.RunJob(&cp)
	durationMs := time.Since(start).Milliseconds()

	s.mu.Lock()
	job, exists = s.jobs[id]
	if !exists {
		s.mu.Unlock()
		return
	}

	job.State.RunningAtMs = nil
	job.State.LastRunAtMs = Int64Ptr(Now())
	job.State.LastDurationMs = Int64Ptr(durationMs)

	status := "ok"
	if err != nil {
		status = "error"
		job.State.LastStatus = "error"
		job.State.LastError = err.Error()
		job.State.ConsecutiveErrors++
	} else {
		job.State.LastStatus = "ok"
		job.State.LastError = ""
		job.State.ConsecutiveErrors = 0
	}

	if nextRunAtMs, nerr := NextRun(job.Expr, job.TZ); nerr == nil {
		job.State.NextRunAtMs = Int64Ptr(nextRunAtMs)
	} else {
		job.State.NextRunAtMs = nil
	}

	if perr := s.persistLocked(); perr != nil {
		log.Warn().Err(perr).Str("jobId", id).Msg("Failed to persist job state")
	}

	s.cancelTimerLocked(id)
	if job.Enabled && !s.stopped {
		s.scheduleJobLocked(job)
	}

	nextRun := job.State.NextRunAtMs
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("jobId", id).Int64("durationMs", durationMs).Msg("Job failed")
	} else {
		log.Info().Str("jobId", id).Int64("durationMs", durationMs).Msg("Job finished")
	}

	evt := Event{
		Action:      EventActionFinished,
		JobID:       id,
		Status:      status,
		DurationMs:  Int64Ptr(durationMs),
		NextRunAtMs: nextRun,
	}
	if err != nil {
		evt.Error = err.Error()
	}
	s.emit(evt)
}

// emit delivers an event to the optional callback
func (s *Service) emit(evt Event) {
	if s.options.OnEvent != nil {
		s.options.OnEvent(evt)
	}
}

// loadJobs restores the registry from disk
func (s *Service) loadJobs() error {
	data, err := os.ReadFile(s.options.StorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("corrupt job store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		// A run interrupted by shutdown is not still running
		job.State.RunningAtMs = nil
		if nextRunAtMs, err := NextRun(job.Expr, job.TZ); err == nil {
			job.State.NextRunAtMs = Int64Ptr(nextRunAtMs)
		}
		s.jobs[job.ID] = job
	}

	return nil
}

// persistLocked writes the registry to disk. Caller holds the lock.
func (s *Service) persistLocked() error {
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAtMs < jobs[j].CreatedAtMs
	})

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.options.StorePath), 0755); err != nil {
		return err
	}

	tmp := s.options.StorePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.options.StorePath)
}
