package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/episim/internal/sim"
)

var _ Archive = (*MemoryStore)(nil)

// MemoryStore keeps archived runs in process memory. It is the default
// backend and the one tests use.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*sim.Results
	meta map[string]RunMeta
}

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*sim.Results),
		meta: make(map[string]RunMeta),
	}
}

// SaveRun stores a deep copy of the results, so later mutation of the
// original cannot change the archive.
func (s *MemoryStore) SaveRun(_ context.Context, res *sim.Results) error {
	if res == nil {
		return fmt.Errorf("nil results")
	}
	if res.RunID == "" {
		return fmt.Errorf("results have no run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[res.RunID] = cloneResults(res)
	s.meta[res.RunID] = RunMeta{
		ID:        res.RunID,
		Label:     res.Label,
		PopSize:   res.PopSize,
		Npts:      res.Npts(),
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// LoadRun returns a copy of one archived run.
func (s *MemoryStore) LoadRun(_ context.Context, runID string) (*sim.Results, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.runs[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneResults(res), true, nil
}

// ListRuns returns metadata for every archived run, newest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]RunMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]RunMeta, 0, len(s.meta))
	for _, m := range s.meta {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].ID < metas[j].ID
	})
	return metas, nil
}

func cloneResults(res *sim.Results) *sim.Results {
	out := sim.NewResults(res.Npts(), res.Names())
	out.RunID = res.RunID
	out.Label = res.Label
	out.PopSize = res.PopSize
	out.Strains = append([]string(nil), res.Strains...)
	copy(out.Days, res.Days)
	for i, s := range res.Series {
		copy(out.Series[i].Values, s.Values)
	}
	return out
}
