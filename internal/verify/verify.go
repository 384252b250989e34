// Package verify runs post-assembly checks over delivered artifacts. Checks
// are registered per artifact kind; findings are advisory by default and only
// error-severity findings fail a run.
package verify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"prodagent/internal/contracts"
	"prodagent/internal/logging"
	"prodagent/internal/manifest"
)

// Check examines one artifact and returns its findings.
type Check interface {
	Name() string
	Run(ctx context.Context, artifact *contracts.Artifact) ([]contracts.VerificationIssue, error)
}

// Verifier dispatches artifacts to the checks registered for their kind.
type Verifier struct {
	mu     sync.RWMutex
	checks map[contracts.ArtifactKind][]Check
}

// New creates an empty verifier.
func New() *Verifier {
	return &Verifier{checks: make(map[contracts.ArtifactKind][]Check)}
}

// NewDefault creates a verifier with the standard PRD checks registered.
func NewDefault(registry *manifest.Registry) *Verifier {
	v := New()
	v.Register(contracts.KindPRD, &prdSectionCheck{registry: registry})
	v.Register(contracts.KindPRD, &prdValidationCheck{})
	return v
}

// Register adds a check for an artifact kind.
func (v *Verifier) Register(kind contracts.ArtifactKind, check Check) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checks[kind] = append(v.checks[kind], check)
}

// Verify runs every check registered for the artifact's kind. A check that
// errors becomes an error-severity finding rather than aborting verification;
// the run's fate is decided by DeriveVerificationStatus over all findings.
func (v *Verifier) Verify(ctx context.Context, artifact *contracts.Artifact) *contracts.VerificationResult {
	start := time.Now()
	result := &contracts.VerificationResult{
		ArtifactID: artifact.ID,
		CheckedAt:  start.UTC(),
	}

	v.mu.RLock()
	checks := v.checks[artifact.Kind]
	v.mu.RUnlock()

	for _, check := range checks {
		issues, err := check.Run(ctx, artifact)
		if err != nil {
			logging.Verify("check %s errored on %s: %v", check.Name(), artifact.ID, err)
			result.Issues = append(result.Issues, contracts.VerificationIssue{
				Check:    check.Name(),
				Severity: contracts.SeverityError,
				Message:  fmt.Sprintf("check failed to run: %v", err),
			})
			continue
		}
		result.Issues = append(result.Issues, issues...)
	}

	result.Status = contracts.DeriveVerificationStatus(result.Issues)
	result.Duration = time.Since(start)
	logging.Verify("artifact %s: %s with %d findings in %s",
		artifact.ID, result.Status, len(result.Issues), result.Duration)
	return result
}

// prdSectionCheck flags missing or under-populated PRD sections as warnings.
type prdSectionCheck struct {
	registry *manifest.Registry
}

func (c *prdSectionCheck) Name() string { return "prd-sections" }

func (c *prdSectionCheck) Run(_ context.Context, artifact *contracts.Artifact) ([]contracts.VerificationIssue, error) {
	doc, err := contracts.DecodePRDocument(artifact)
	if err != nil {
		return nil, err
	}
	kind, ok := c.registry.Kind(contracts.KindPRD)
	if !ok {
		return nil, fmt.Errorf("prd kind missing from registry")
	}

	var issues []contracts.VerificationIssue
	for _, spec := range kind.Sections {
		if _, populated := doc.Sections.Get(spec.Name); !populated {
			issues = append(issues, contracts.VerificationIssue{
				Check:    c.Name(),
				Severity: contracts.SeverityWarning,
				Section:  spec.Name,
				Message:  fmt.Sprintf("section %s is empty", spec.Name),
			})
		}
	}

	if strings.TrimSpace(doc.Title) == "" {
		issues = append(issues, contracts.VerificationIssue{
			Check:    c.Name(),
			Severity: contracts.SeverityWarning,
			Message:  "document has no title",
		})
	}

	return issues, nil
}

// prdValidationCheck surfaces the assembler's embedded validation block.
type prdValidationCheck struct{}

func (c *prdValidationCheck) Name() string { return "prd-validation" }

func (c *prdValidationCheck) Run(_ context.Context, artifact *contracts.Artifact) ([]contracts.VerificationIssue, error) {
	doc, err := contracts.DecodePRDocument(artifact)
	if err != nil {
		return nil, err
	}
	if doc.Validation == nil || doc.Validation.IsValid {
		return nil, nil
	}

	var issues []contracts.VerificationIssue
	for section, messages := range doc.Validation.Issues {
		for _, msg := range messages {
			issues = append(issues, contracts.VerificationIssue{
				Check:    c.Name(),
				Severity: contracts.SeverityWarning,
				Section:  section,
				Message:  msg,
			})
		}
	}
	return issues, nil
}
