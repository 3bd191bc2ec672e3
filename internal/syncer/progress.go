package syncer

import (
	"sync"
	"time"
)

// runState tracks in-flight run progress. The orchestrator mutates it from
// its single sequential loop; the periodic budget logger reads it
// concurrently, hence the lock.
type runState struct {
	mu        sync.RWMutex
	runID     string
	startedAt time.Time
	current   string
	pages     int
	records   int
	results   map[string]ResourceResult
}

func newRunState(runID string) *runState {
	return &runState{
		runID:     runID,
		startedAt: time.Now().UTC(),
		results:   make(map[string]ResourceResult),
	}
}

func (s *runState) setCurrent(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = resource
}

func (s *runState) addPage(records int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages++
	s.records += records
}

func (s *runState) setResult(resource string, result ResourceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[resource] = result
}

// snapshot returns the current resource and cumulative page/record counts.
func (s *runState) snapshot() (string, int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.pages, s.records
}

// resourceResults returns a copy of the per-resource outcomes so far.
func (s *runState) resourceResults() map[string]ResourceResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ResourceResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}
