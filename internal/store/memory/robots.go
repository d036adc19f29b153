package memory

import (
	"context"

	"github.com/arnegrd/webcrawler/internal/crawl"
)

func (s *Store) UpsertRobots(ctx context.Context, record crawl.RobotsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.robots[record.Domain] = record
	return nil
}

func (s *Store) GetRobots(ctx context.Context, domain string) (crawl.RobotsRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.robots[domain]
	return rec, ok, nil
}
