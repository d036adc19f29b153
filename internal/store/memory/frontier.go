package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

func (s *Store) EnqueueURLs(ctx context.Context, jobID uuid.UUID, items []crawl.EnqueueItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pages, ok := s.pages[jobID]
	if !ok {
		return 0, fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	entries := s.frontier[jobID]
	index := s.urlIndex[jobID]

	inserted := 0
	now := time.Now().UTC()
	for _, item := range items {
		if p, exists := pages[item.NormalizedURL]; exists && p.Status != crawl.PagePending {
			// Already resolved (completed, failed or skipped): never re-queue.
			continue
		} else if !exists {
			pages[item.NormalizedURL] = &crawl.Page{
				ID:            uuid.New(),
				JobID:         jobID,
				URL:           item.URL,
				NormalizedURL: item.NormalizedURL,
				Depth:         item.Depth,
				Status:        crawl.PagePending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
		}
		if _, queued := index[item.NormalizedURL]; queued {
			continue
		}
		entryID := uuid.New()
		entries[entryID] = &crawl.FrontierEntry{
			ID:            entryID,
			JobID:         jobID,
			URL:           item.URL,
			NormalizedURL: item.NormalizedURL,
			Depth:         item.Depth,
			Priority:      item.Priority,
			Status:        crawl.FrontierPending,
			NotBefore:     now,
			CreatedAt:     now,
		}
		index[item.NormalizedURL] = entryID
		inserted++
	}
	return inserted, nil
}

func cloneEntry(e *crawl.FrontierEntry) crawl.FrontierEntry { return *e }

func (s *Store) ClaimPending(ctx context.Context, jobID uuid.UUID, n int) ([]crawl.FrontierEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.frontier[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}

	now := time.Now().UTC()
	var eligible []*crawl.FrontierEntry
	for _, e := range entries {
		if e.Status == crawl.FrontierPending && !e.NotBefore.After(now) {
			eligible = append(eligible, e)
		}
	}
	sort.Slice(eligible, func(i, k int) bool {
		if eligible[i].Priority != eligible[k].Priority {
			return eligible[i].Priority > eligible[k].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[k].CreatedAt)
	})
	if n > 0 && len(eligible) > n {
		eligible = eligible[:n]
	}

	claimed := make([]crawl.FrontierEntry, 0, len(eligible))
	for _, e := range eligible {
		e.Status = crawl.FrontierClaimed
		claimed = append(claimed, cloneEntry(e))
	}
	return claimed, nil
}

func (s *Store) MarkFrontier(ctx context.Context, entryID uuid.UUID, disposition crawl.PageStatus, retryCount *int, notBefore *time.Time) error {
	s.mu.Lock()
	var jobID uuid.UUID
	var normalizedURL string
	found := false
	for jid, entries := range s.frontier {
		if e, ok := entries[entryID]; ok {
			jobID, normalizedURL = jid, e.NormalizedURL
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("frontier entry %s: %w", entryID, crawl.ErrNotFound)
	}

	patch := crawl.PagePatch{RetryCount: retryCount}
	if err := s.UpdatePage(ctx, jobID, normalizedURL, disposition, patch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.frontier[jobID]
	entry, ok := entries[entryID]
	if !ok {
		return fmt.Errorf("frontier entry %s: %w", entryID, crawl.ErrNotFound)
	}
	if disposition == crawl.PagePending {
		nb := time.Now().UTC()
		if notBefore != nil {
			nb = *notBefore
		}
		entry.Status = crawl.FrontierPending
		entry.NotBefore = nb
		if retryCount != nil {
			entry.RetryCount = *retryCount
		}
		return nil
	}

	delete(entries, entryID)
	delete(s.urlIndex[jobID], normalizedURL)
	return nil
}

func (s *Store) ClearFrontier(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frontier[jobID] = make(map[uuid.UUID]*crawl.FrontierEntry)
	s.urlIndex[jobID] = make(map[string]uuid.UUID)
	return nil
}

func (s *Store) CountPending(ctx context.Context, jobID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	var n int64
	for _, e := range s.frontier[jobID] {
		if e.Status == crawl.FrontierPending && !e.NotBefore.After(now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) QueueStats(ctx context.Context, jobID uuid.UUID) (crawl.QueueStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats crawl.QueueStats
	for _, e := range s.frontier[jobID] {
		switch e.Status {
		case crawl.FrontierPending:
			stats.Pending++
		case crawl.FrontierClaimed:
			stats.Claimed++
		}
	}
	for _, p := range s.pages[jobID] {
		switch p.Status {
		case crawl.PageCompleted:
			stats.Completed++
		case crawl.PageFailed:
			stats.Failed++
		case crawl.PageSkipped:
			stats.Skipped++
		}
	}
	return stats, nil
}

func (s *Store) MarkPendingSkipped(ctx context.Context, jobID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.frontier[jobID]
	pages := s.pages[jobID]
	now := time.Now().UTC()

	var n int64
	for id, e := range entries {
		if e.Status != crawl.FrontierPending {
			continue
		}
		if p, ok := pages[e.NormalizedURL]; ok {
			p.Status = crawl.PageSkipped
			p.UpdatedAt = now
		}
		delete(entries, id)
		delete(s.urlIndex[jobID], e.NormalizedURL)
		n++
	}
	return n, nil
}
