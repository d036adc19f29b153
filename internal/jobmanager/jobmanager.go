// Package jobmanager owns the Job lifecycle state machine: creation, start,
// pause/resume, cancel, the completion detector, and process-restart
// recovery. It binds one Dispatcher per running Job and tears it down on
// any terminal transition.
package jobmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnegrd/webcrawler/internal/crawl"
	"github.com/arnegrd/webcrawler/internal/dispatcher"
	"github.com/arnegrd/webcrawler/internal/frontier"
	"github.com/arnegrd/webcrawler/internal/progress"
)

// DispatcherFactory builds a Dispatcher for one job. Injected so tests can
// substitute a fake without touching real fetch/robots/rate-limit stacks.
type DispatcherFactory func(jobID uuid.UUID) *dispatcher.Dispatcher

// Manager drives every Job's lifecycle transition and owns the set of
// currently-running Dispatchers.
type Manager struct {
	store       crawl.Store
	frontier    *frontier.Frontier
	newDispatch DispatcherFactory
	publisher   crawl.JobEventPublisher
	progress    progress.Emitter
	logger      *zap.Logger

	mu      sync.Mutex
	running map[uuid.UUID]*runningJob
}

type runningJob struct {
	dispatcher *dispatcher.Dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
}

// New builds a Manager. publisher and emitter may both be nil to disable
// job-event publishing and progress reporting respectively.
func New(store crawl.Store, newDispatch DispatcherFactory, publisher crawl.JobEventPublisher, emitter progress.Emitter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:       store,
		frontier:    frontier.New(store),
		newDispatch: newDispatch,
		publisher:   publisher,
		progress:    emitter,
		logger:      logger,
		running:     make(map[uuid.UUID]*runningJob),
	}
}

// CreateJob validates cfg, applies defaults, and persists a new pending Job.
// It does not start dispatching; call Start for that.
func (m *Manager) CreateJob(ctx context.Context, cfg crawl.JobConfig) (crawl.Job, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return crawl.Job{}, err
	}
	job, err := m.store.CreateJob(ctx, cfg)
	if err != nil {
		return crawl.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Start transitions a pending job to running, seeds the frontier, and binds
// a fresh Dispatcher to it. It is also used by Recover to rebind a
// Dispatcher to a job already in the running state after a restart.
func (m *Manager) Start(parent context.Context, jobID uuid.UUID) error {
	job, err := m.store.GetJob(parent, jobID)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if job.Status != crawl.JobPending && job.Status != crawl.JobRunning {
		return fmt.Errorf("start job %s: %w", jobID, crawl.ErrInvalidTransition)
	}

	if job.Status == crawl.JobPending {
		if err := m.frontier.Seed(parent, job.ID, job.SeedURL); err != nil {
			return fmt.Errorf("seed frontier: %w", err)
		}
		now := time.Now().UTC()
		if err := m.store.UpdateJobStatus(parent, job.ID, crawl.JobRunning, crawl.JobPatch{StartedAt: &now}); err != nil {
			return fmt.Errorf("mark job running: %w", err)
		}
		m.emit(jobID, progress.StageJobStart, "")
	}

	m.bindDispatcher(jobID, job.Config.MaxConcurrentWorkers)
	return nil
}

func (m *Manager) emit(jobID uuid.UUID, stage progress.Stage, note string) {
	if m.progress == nil {
		return
	}
	m.progress.Emit(progress.Event{JobID: jobID, TS: time.Now().UTC(), Stage: stage, Note: note})
}

func (m *Manager) bindDispatcher(jobID uuid.UUID, concurrency int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.running[jobID]; exists {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := m.newDispatch(jobID)
	rj := &runningJob{dispatcher: d, cancel: cancel, done: make(chan struct{})}
	m.running[jobID] = rj

	go func() {
		defer close(rj.done)
		d.Run(ctx, concurrency)
		m.onDispatcherExit(jobID)
	}()
}

// onDispatcherExit runs the completion detector's one-shot evaluation the
// moment a Dispatcher's workers all drain out, so a job doesn't sit running
// until the next periodic probe if it finished quickly.
func (m *Manager) onDispatcherExit(jobID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*crawl.CompletionDetectorInterval+5*time.Second)
	defer cancel()
	if err := m.evaluateCompletion(ctx, jobID); err != nil {
		m.logger.Error("jobmanager: completion evaluation on dispatcher exit failed", zap.Error(err))
	}
}

// Pause parks a running job's Dispatcher at its next loop head without
// dropping any in-flight fetch.
func (m *Manager) Pause(ctx context.Context, jobID uuid.UUID) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != crawl.JobRunning {
		return fmt.Errorf("pause job %s: %w", jobID, crawl.ErrInvalidTransition)
	}
	if err := m.store.UpdateJobStatus(ctx, jobID, crawl.JobPaused, crawl.JobPatch{}); err != nil {
		return err
	}
	m.mu.Lock()
	rj, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		rj.dispatcher.Pause()
	}
	m.emit(jobID, progress.StageJobPause, "")
	return nil
}

// Resume un-parks a paused job's Dispatcher, rebinding one if the process
// was restarted while the job sat paused.
func (m *Manager) Resume(ctx context.Context, jobID uuid.UUID) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != crawl.JobPaused {
		return fmt.Errorf("resume job %s: %w", jobID, crawl.ErrInvalidTransition)
	}
	if err := m.store.UpdateJobStatus(ctx, jobID, crawl.JobRunning, crawl.JobPatch{}); err != nil {
		return err
	}

	m.mu.Lock()
	rj, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		rj.dispatcher.Resume()
		m.emit(jobID, progress.StageJobResume, "")
		return nil
	}
	m.bindDispatcher(jobID, job.Config.MaxConcurrentWorkers)
	m.emit(jobID, progress.StageJobResume, "")
	return nil
}

// Cancel stops a job's Dispatcher, clears its frontier, and marks it
// cancelled.
func (m *Manager) Cancel(ctx context.Context, jobID uuid.UUID) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("cancel job %s: %w", jobID, crawl.ErrInvalidTransition)
	}

	m.mu.Lock()
	rj, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		rj.dispatcher.Cancel()
		rj.cancel()
		<-rj.done
		m.mu.Lock()
		delete(m.running, jobID)
		m.mu.Unlock()
	}

	if err := m.frontier.Clear(ctx, jobID); err != nil {
		return fmt.Errorf("clear frontier: %w", err)
	}
	now := time.Now().UTC()
	if err := m.store.UpdateJobStatus(ctx, jobID, crawl.JobCancelled, crawl.JobPatch{CompletedAt: &now}); err != nil {
		return err
	}
	m.publish(ctx, jobID, crawl.JobCancelled, "")
	m.emit(jobID, progress.StageJobError, "cancelled")
	return nil
}

// Recover rebinds a fresh Dispatcher to every job this process finds in the
// running state at startup, per SPEC_FULL.md §4.6's recovery decision: no
// job is left un-owned, and resuming rather than failing loses no progress
// since the frontier and page tables already durably reflect prior work.
func (m *Manager) Recover(ctx context.Context) error {
	jobs, err := m.store.ListRunningJobs(ctx)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	for _, job := range jobs {
		m.logger.Info("jobmanager: resuming dispatch after restart", zap.String("job_id", job.ID.String()))
		m.bindDispatcher(job.ID, job.Config.MaxConcurrentWorkers)
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, jobID uuid.UUID, status crawl.JobStatus, lastError string) {
	if m.publisher == nil {
		return
	}
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	evt := crawl.JobEvent{JobID: jobID, Status: status, Counters: job.Counters, LastError: lastError, At: time.Now().UTC()}
	publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.publisher.PublishJobEvent(publishCtx, evt); err != nil {
		m.logger.Warn("jobmanager: publish job event failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}
}
