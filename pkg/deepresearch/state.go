package deepresearch

import "sync"

// sessionState is ResearchEngine's exclusively-owned per-session state.
// Sources and learnings are append-only; visitedQueries dedup is
// check-and-insert atomic under a single mutex, matching spec §5's "Shared
// resources" discipline (no lock-free tricks, just serialize reads/writes).
type sessionState struct {
	mu sync.Mutex

	opts ResearchOptions

	sources     map[string]Source // keyed by URL
	sourceOrder []string

	learnings []Learning

	visitedQueries map[string]bool

	completedQueries int
	totalQueries     int
	currentLevel     int
}

func newSessionState(opts ResearchOptions) *sessionState {
	return &sessionState{
		opts:           opts,
		sources:        make(map[string]Source),
		visitedQueries: make(map[string]bool),
	}
}

// markVisited atomically checks whether normalizedQuery has been searched
// before and, if not, marks it visited. Returns true if this call is the
// one that claims the query.
func (s *sessionState) markVisited(normalizedQuery string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visitedQueries[normalizedQuery] {
		return false
	}
	s.visitedQueries[normalizedQuery] = true
	return true
}

// addPlannedQueries grows the progress denominator as new sub-queries are
// planned; totalQueries is monotonically non-decreasing per spec §3.
func (s *sessionState) addPlannedQueries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalQueries += n
}

// addSources inserts any not-yet-seen sources (by URL) and returns exactly
// the ones newly added, so the caller can emit a `sources` event
// containing only new discoveries.
func (s *sessionState) addSources(candidates []Source) []Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]Source, 0, len(candidates))
	for _, src := range candidates {
		if _, ok := s.sources[src.URL]; ok {
			continue
		}
		s.sources[src.URL] = src
		s.sourceOrder = append(s.sourceOrder, src.URL)
		fresh = append(fresh, src)
	}
	return fresh
}

func (s *sessionState) addLearning(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learnings = append(s.learnings, Learning{Content: content})
}

func (s *sessionState) incrementCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedQueries++
}

func (s *sessionState) setCurrentLevel(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLevel = level
}

func (s *sessionState) learningsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.learnings))
	for i, l := range s.learnings {
		out[i] = l.Content
	}
	return out
}

func (s *sessionState) allLearnings() []Learning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Learning, len(s.learnings))
	copy(out, s.learnings)
	return out
}

func (s *sessionState) allSources() []Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Source, 0, len(s.sourceOrder))
	for _, url := range s.sourceOrder {
		out = append(out, s.sources[url])
	}
	return out
}

// snapshot builds an immutable ProgressSnapshot copy under lock — emitted
// events must never carry a shared reference into sessionState.
func (s *sessionState) snapshot(status string, currentQuery string) ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.totalQueries
	progress := 0.0
	if total > 0 {
		progress = 100 * float64(s.completedQueries) / float64(total)
	}

	return ProgressSnapshot{
		Progress: progress,
		Status:   status,
		Depth:    DepthBreadthCounter{Current: s.currentLevel, Total: s.opts.Depth},
		Breadth:  DepthBreadthCounter{Current: s.opts.Breadth, Total: s.opts.Breadth},
		Queries: QueryCounter{
			Current:      s.completedQueries,
			Total:        total,
			CurrentQuery: currentQuery,
		},
	}
}
