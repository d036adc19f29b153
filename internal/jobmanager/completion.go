package jobmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnegrd/webcrawler/internal/crawl"
	"github.com/arnegrd/webcrawler/internal/progress"
)

// RunCompletionDetector polls every running job at
// crawl.CompletionDetectorInterval until ctx is done. It is the long-lived
// loop a server wires up once at startup; Manager.onDispatcherExit triggers
// an extra one-shot evaluation so a job that drains quickly doesn't wait
// out a full interval.
func (m *Manager) RunCompletionDetector(ctx context.Context) {
	ticker := time.NewTicker(crawl.CompletionDetectorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAllRunning(ctx)
		}
	}
}

func (m *Manager) probeAllRunning(ctx context.Context) {
	jobs, err := m.store.ListRunningJobs(ctx)
	if err != nil {
		m.logger.Error("jobmanager: list running jobs for completion probe failed", zap.Error(err))
		return
	}
	for _, job := range jobs {
		if err := m.evaluateCompletion(ctx, job.ID); err != nil {
			m.logger.Error("jobmanager: completion evaluation failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	}
}

// evaluateCompletion checks the terminal condition once, and if it holds,
// re-checks after one detector interval before committing the transition.
// The grace period exists because claim → process → discover is not atomic
// across Store calls: a transient (pending=0, claimed=0) window can occur
// between a worker's claim succeeding and its discovered links landing
// back in the frontier, and that window must never be mistaken for
// completion.
func (m *Manager) evaluateCompletion(ctx context.Context, jobID uuid.UUID) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job.Status != crawl.JobRunning {
		return nil
	}

	done, err := m.terminalConditionHolds(ctx, job)
	if err != nil || !done {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(crawl.CompletionDetectorInterval):
	}

	job, err = m.store.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("reload job for grace check: %w", err)
	}
	if job.Status != crawl.JobRunning {
		return nil
	}
	stillDone, err := m.terminalConditionHolds(ctx, job)
	if err != nil || !stillDone {
		return err
	}

	return m.commitCompletion(ctx, job)
}

func (m *Manager) terminalConditionHolds(ctx context.Context, job crawl.Job) (bool, error) {
	if job.Counters.Crawled >= int64(job.Config.MaxPages) {
		return true, nil
	}
	stats, err := m.frontier.Stats(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("frontier stats: %w", err)
	}
	return stats.Pending == 0 && stats.Claimed == 0, nil
}

func (m *Manager) commitCompletion(ctx context.Context, job crawl.Job) error {
	status := crawl.JobCompleted
	lastError := ""
	if job.Counters.Crawled == 0 && job.Counters.Failed > 0 {
		status = crawl.JobFailed
		lastError = "no pages were successfully crawled"
	}

	now := time.Now().UTC()
	if err := m.store.UpdateJobStatus(ctx, job.ID, status, crawl.JobPatch{CompletedAt: &now, LastError: &lastError}); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}

	m.mu.Lock()
	rj, ok := m.running[job.ID]
	if ok {
		delete(m.running, job.ID)
	}
	m.mu.Unlock()
	if ok {
		rj.dispatcher.Cancel()
		rj.cancel()
	}

	stage := progress.StageJobDone
	if status == crawl.JobFailed {
		stage = progress.StageJobError
	}
	m.emit(job.ID, stage, lastError)
	m.publish(ctx, job.ID, status, lastError)
	return nil
}
