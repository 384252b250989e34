package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Artifact is a versioned, immutable output document produced by a run.
// A new Artifact is constructed per completed run or subagent call,
// never mutated in place.
type Artifact struct {
	ID       string           `json:"id"`
	Kind     ArtifactKind     `json:"kind"`
	Version  string           `json:"version"`
	Label    string           `json:"label,omitempty"`
	Data     any              `json:"data"`
	Metadata ArtifactMetadata `json:"metadata"`
}

// ArtifactMetadata carries provenance for an artifact.
type ArtifactMetadata struct {
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
	CreatedBy  string         `json:"created_by,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Confidence string         `json:"confidence,omitempty"`
	Extras     map[string]any `json:"extras,omitempty"`
}

// Canonical PRD section names, in assembly order.
const (
	SectionTargetUsers    = "target_users"
	SectionSolution       = "solution"
	SectionKeyFeatures    = "key_features"
	SectionSuccessMetrics = "success_metrics"
	SectionConstraints    = "constraints"
)

// Metric is one success-metric tuple.
type Metric struct {
	Name      string `json:"name"`
	Target    string `json:"target"`
	Timeframe string `json:"timeframe,omitempty"`
}

// Solution is the object-shaped solution section.
type Solution struct {
	Summary         string   `json:"summary"`
	Approach        string   `json:"approach,omitempty"`
	Differentiators []string `json:"differentiators,omitempty"`
}

// PRDocument is the data payload of a PRD artifact.
type PRDocument struct {
	Title      string           `json:"title,omitempty"`
	Sections   PRDSections      `json:"sections"`
	Validation *ValidationBlock `json:"validation,omitempty"`
}

// PRDSections holds the five canonical PRD sections. A nil/empty section
// simply was not generated (or inherited).
type PRDSections struct {
	TargetUsers    []string  `json:"target_users,omitempty"`
	Solution       *Solution `json:"solution,omitempty"`
	KeyFeatures    []string  `json:"key_features,omitempty"`
	SuccessMetrics []Metric  `json:"success_metrics,omitempty"`
	Constraints    []string  `json:"constraints,omitempty"`
}

// Get returns the named section's content and whether it is populated.
func (s *PRDSections) Get(name string) (any, bool) {
	switch name {
	case SectionTargetUsers:
		return s.TargetUsers, len(s.TargetUsers) > 0
	case SectionSolution:
		return s.Solution, s.Solution != nil
	case SectionKeyFeatures:
		return s.KeyFeatures, len(s.KeyFeatures) > 0
	case SectionSuccessMetrics:
		return s.SuccessMetrics, len(s.SuccessMetrics) > 0
	case SectionConstraints:
		return s.Constraints, len(s.Constraints) > 0
	}
	return nil, false
}

// Set stores content into the named section. Content of the wrong dynamic
// type is ignored rather than panicking; the writer skills always produce
// the canonical type for their section.
func (s *PRDSections) Set(name string, content any) {
	switch name {
	case SectionTargetUsers:
		if v, ok := content.([]string); ok {
			s.TargetUsers = v
		}
	case SectionSolution:
		switch v := content.(type) {
		case *Solution:
			s.Solution = v
		case Solution:
			s.Solution = &v
		}
	case SectionKeyFeatures:
		if v, ok := content.([]string); ok {
			s.KeyFeatures = v
		}
	case SectionSuccessMetrics:
		if v, ok := content.([]Metric); ok {
			s.SuccessMetrics = v
		}
	case SectionConstraints:
		if v, ok := content.([]string); ok {
			s.Constraints = v
		}
	}
}

// DecodePRDocument extracts the PRD payload from an artifact. Data round-trips
// through JSON so both in-process (*PRDocument) and decoded (map) shapes work.
func DecodePRDocument(a *Artifact) (*PRDocument, error) {
	if a == nil {
		return nil, fmt.Errorf("artifact is nil")
	}
	if a.Kind != KindPRD {
		return nil, fmt.Errorf("artifact %s is %q, not a PRD", a.ID, a.Kind)
	}
	switch v := a.Data.(type) {
	case *PRDocument:
		return v, nil
	case PRDocument:
		return &v, nil
	}
	raw, err := json.Marshal(a.Data)
	if err != nil {
		return nil, fmt.Errorf("artifact %s data not serializable: %w", a.ID, err)
	}
	var doc PRDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("artifact %s data is not a PRD payload: %w", a.ID, err)
	}
	return &doc, nil
}

// ValidationBlock carries non-fatal validation output embedded in the
// artifact. Issues never block assembly; consumers decide what to do.
type ValidationBlock struct {
	IsValid  bool                `json:"is_valid"`
	Issues   map[string][]string `json:"issues,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// PersonaSet is the data payload of a persona artifact.
type PersonaSet struct {
	Personas []Persona `json:"personas"`
}

// Persona is one generated persona.
type Persona struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Goals       []string `json:"goals,omitempty"`
	Frustrations []string `json:"frustrations,omitempty"`
	Quote       string   `json:"quote,omitempty"`
}

// StoryMap is the data payload of a story-map artifact.
type StoryMap struct {
	Epics []Epic `json:"epics"`
}

// Epic groups user stories under one activity.
type Epic struct {
	Title   string  `json:"title"`
	Stories []Story `json:"stories,omitempty"`
}

// Story is a single user story.
type Story struct {
	Title      string `json:"title"`
	Narrative  string `json:"narrative,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Acceptance string `json:"acceptance,omitempty"`
}

// ResearchBrief is the data payload of a research artifact.
type ResearchBrief struct {
	Summary   string   `json:"summary"`
	Findings  []string `json:"findings,omitempty"`
	OpenItems []string `json:"open_items,omitempty"`
}
