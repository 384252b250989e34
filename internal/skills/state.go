package skills

import (
	"sync"

	"prodagent/internal/confidence"
	"prodagent/internal/contracts"
)

// ContextAnalysis is the analyze-context skill's distilled view of the input.
type ContextAnalysis struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
	// Richness scores how much usable signal the input carried, 0..1.
	Richness float64 `json:"richness"`
}

// RunState is the mutable working document for one run. Section writers merge
// into it concurrently; the assembler reads it once at the end. All access
// goes through the mutex so sibling section writes stay safe.
type RunState struct {
	mu sync.RWMutex

	runID       string
	seeded      bool
	title       string
	sections    contracts.PRDSections
	analysis    *ContextAnalysis
	confidences map[string]confidence.Assessment
	issues      map[string][]string
}

func newRunState(runID string) *RunState {
	return &RunState{
		runID:       runID,
		confidences: make(map[string]confidence.Assessment),
		issues:      make(map[string][]string),
	}
}

// SeedFromPRD copies an existing PRD's sections in as the starting document.
// Only the first call takes effect; later calls report false.
func (s *RunState) SeedFromPRD(doc *contracts.PRDocument) bool {
	if doc == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return false
	}
	s.seeded = true
	s.title = doc.Title
	s.sections = doc.Sections
	return true
}

// SetTitle records the document title if none is set yet.
func (s *RunState) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.title == "" {
		s.title = title
	}
}

// Title returns the current document title.
func (s *RunState) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// Section returns the named section's current content.
func (s *RunState) Section(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections.Get(name)
}

// SetSection stores merged section content plus its assessment and issues.
func (s *RunState) SetSection(name string, content any, assessment confidence.Assessment, issues []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections.Set(name, content)
	s.confidences[name] = assessment
	if len(issues) > 0 {
		s.issues[name] = issues
	} else {
		delete(s.issues, name)
	}
}

// Sections returns a copy of the working document sections.
func (s *RunState) Sections() contracts.PRDSections {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections
}

// SetAnalysis stores the analyze-context output.
func (s *RunState) SetAnalysis(a *ContextAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = a
}

// Analysis returns the stored context analysis, nil when the node has not run.
func (s *RunState) Analysis() *ContextAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analysis
}

// Confidences returns a copy of the per-section assessments.
func (s *RunState) Confidences() map[string]confidence.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]confidence.Assessment, len(s.confidences))
	for k, v := range s.confidences {
		out[k] = v
	}
	return out
}

// Issues returns a copy of the per-section validation issues.
func (s *RunState) Issues() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.issues))
	for k, v := range s.issues {
		copied := make([]string, len(v))
		copy(copied, v)
		out[k] = copied
	}
	return out
}

// StateStore tracks run states by run id.
type StateStore struct {
	mu     sync.Mutex
	states map[string]*RunState
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]*RunState)}
}

// Get returns the run's state, creating it on first use.
func (ss *StateStore) Get(runID string) *RunState {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if st, ok := ss.states[runID]; ok {
		return st
	}
	st := newRunState(runID)
	ss.states[runID] = st
	return st
}

// Clear drops the run's state. Called after artifact assembly so completed
// runs hold no memory.
func (ss *StateStore) Clear(runID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.states, runID)
}

// Len reports how many runs currently hold state.
func (ss *StateStore) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.states)
}
