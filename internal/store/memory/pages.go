package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

func clonePage(p *crawl.Page) crawl.Page { return *p }

func (s *Store) UpsertPage(ctx context.Context, jobID uuid.UUID, url, normalizedURL string, depth int) (crawl.Page, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages, ok := s.pages[jobID]
	if !ok {
		return crawl.Page{}, false, fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	if existing, ok := pages[normalizedURL]; ok {
		return clonePage(existing), false, nil
	}
	now := time.Now().UTC()
	page := &crawl.Page{
		ID:            uuid.New(),
		JobID:         jobID,
		URL:           url,
		NormalizedURL: normalizedURL,
		Depth:         depth,
		Status:        crawl.PagePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	pages[normalizedURL] = page
	return clonePage(page), true, nil
}

func (s *Store) UpdatePage(ctx context.Context, jobID uuid.UUID, normalizedURL string, status crawl.PageStatus, patch crawl.PagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages, ok := s.pages[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	page, ok := pages[normalizedURL]
	if !ok {
		return fmt.Errorf("page %s: %w", normalizedURL, crawl.ErrNotFound)
	}
	page.Status = status
	if patch.HTTPStatus != nil {
		page.HTTPStatus = *patch.HTTPStatus
	}
	if patch.ContentType != nil {
		page.ContentType = *patch.ContentType
	}
	if patch.ContentLength != nil {
		page.ContentLength = *patch.ContentLength
	}
	if patch.Title != nil {
		page.Title = *patch.Title
	}
	if patch.Description != nil {
		page.Description = *patch.Description
	}
	if patch.Content != nil {
		page.Content = *patch.Content
	}
	if patch.ArchiveURI != nil {
		page.ArchiveURI = *patch.ArchiveURI
	}
	if patch.LinksFound != nil {
		page.LinksFound = *patch.LinksFound
	}
	if patch.CrawledAt != nil {
		page.CrawledAt = patch.CrawledAt
	}
	if patch.DurationMs != nil {
		page.DurationMs = *patch.DurationMs
	}
	if patch.ErrorMessage != nil {
		page.ErrorMessage = *patch.ErrorMessage
	}
	if patch.RetryCount != nil {
		page.RetryCount = *patch.RetryCount
	}
	page.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) GetPage(ctx context.Context, jobID, pageID uuid.UUID) (crawl.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages, ok := s.pages[jobID]
	if !ok {
		return crawl.Page{}, fmt.Errorf("job %s: %w", jobID, crawl.ErrNotFound)
	}
	for _, p := range pages {
		if p.ID == pageID {
			return clonePage(p), nil
		}
	}
	return crawl.Page{}, fmt.Errorf("page %s: %w", pageID, crawl.ErrNotFound)
}

func (s *Store) sortedPages(jobID uuid.UUID, status *crawl.PageStatus) []crawl.Page {
	pages := s.pages[jobID]
	out := make([]crawl.Page, 0, len(pages))
	for _, p := range pages {
		if status != nil && p.Status != *status {
			continue
		}
		out = append(out, clonePage(p))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

func (s *Store) ListPages(ctx context.Context, jobID uuid.UUID, status *crawl.PageStatus, limit, offset int) ([]crawl.Page, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sortedPages(jobID, status)
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

type pageIterator struct {
	pages []crawl.Page
	pos   int
}

func (it *pageIterator) Next(ctx context.Context) (crawl.Page, bool, error) {
	if it.pos >= len(it.pages) {
		return crawl.Page{}, false, nil
	}
	p := it.pages[it.pos]
	it.pos++
	return p, true, nil
}

func (it *pageIterator) Close() {}

func (s *Store) ExportPages(ctx context.Context, jobID uuid.UUID, status *crawl.PageStatus) (crawl.PageIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &pageIterator{pages: s.sortedPages(jobID, status)}, nil
}
