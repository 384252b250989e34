package verify

import (
	"context"
	"errors"
	"testing"

	"prodagent/internal/contracts"
	"prodagent/internal/manifest"
)

func prdArtifact(doc *contracts.PRDocument) *contracts.Artifact {
	return &contracts.Artifact{
		ID:      "prd-test",
		Kind:    contracts.KindPRD,
		Version: "2.0",
		Data:    doc,
	}
}

func fullDocument() *contracts.PRDocument {
	return &contracts.PRDocument{
		Title: "Expense Tracker",
		Sections: contracts.PRDSections{
			TargetUsers: []string{"Freelancers"},
			Solution: &contracts.Solution{
				Summary: "A mobile-first expense tracker with offline capture and tax exports.",
			},
			KeyFeatures:    []string{"Offline receipt capture", "Tax category exports"},
			SuccessMetrics: []contracts.Metric{{Name: "Weekly active users", Target: "5k"}},
			Constraints:    []string{"Must work offline"},
		},
		Validation: &contracts.ValidationBlock{IsValid: true},
	}
}

func TestVerifyCompleteDocumentPasses(t *testing.T) {
	v := NewDefault(manifest.Default())

	result := v.Verify(context.Background(), prdArtifact(fullDocument()))

	if result.Status != contracts.VerificationPass {
		t.Fatalf("status = %q with issues %v, want pass", result.Status, result.Issues)
	}
	if result.ArtifactID != "prd-test" {
		t.Errorf("artifact id = %q", result.ArtifactID)
	}
}

func TestVerifyFlagsMissingSections(t *testing.T) {
	v := NewDefault(manifest.Default())

	doc := fullDocument()
	doc.Sections.SuccessMetrics = nil
	doc.Sections.Constraints = nil
	doc.Title = ""

	result := v.Verify(context.Background(), prdArtifact(doc))

	if result.Status != contracts.VerificationNeedsReview {
		t.Fatalf("status = %q, want needs-review", result.Status)
	}
	// Two empty sections plus the missing title.
	if len(result.Issues) != 3 {
		t.Fatalf("issue count = %d (%v), want 3", len(result.Issues), result.Issues)
	}
	for _, issue := range result.Issues {
		if issue.Severity != contracts.SeverityWarning {
			t.Errorf("built-in check emitted severity %q", issue.Severity)
		}
	}
}

func TestVerifySurfacesEmbeddedValidation(t *testing.T) {
	v := NewDefault(manifest.Default())

	doc := fullDocument()
	doc.Validation = &contracts.ValidationBlock{
		IsValid: false,
		Issues: map[string][]string{
			"key_features": {"key_features has 1 items, needs at least 2"},
		},
	}

	result := v.Verify(context.Background(), prdArtifact(doc))

	if result.Status != contracts.VerificationNeedsReview {
		t.Fatalf("status = %q, want needs-review", result.Status)
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Check == "prd-validation" && issue.Section == "key_features" {
			found = true
		}
	}
	if !found {
		t.Errorf("embedded validation issue not surfaced: %v", result.Issues)
	}
}

type failingCheck struct{}

func (failingCheck) Name() string { return "custom-gate" }
func (failingCheck) Run(context.Context, *contracts.Artifact) ([]contracts.VerificationIssue, error) {
	return []contracts.VerificationIssue{{
		Check:    "custom-gate",
		Severity: contracts.SeverityError,
		Message:  "hard requirement not met",
	}}, nil
}

func TestVerifyErrorSeverityFails(t *testing.T) {
	v := NewDefault(manifest.Default())
	v.Register(contracts.KindPRD, failingCheck{})

	result := v.Verify(context.Background(), prdArtifact(fullDocument()))

	if result.Status != contracts.VerificationFail {
		t.Fatalf("status = %q, want fail", result.Status)
	}
}

type erroringCheck struct{}

func (erroringCheck) Name() string { return "broken-check" }
func (erroringCheck) Run(context.Context, *contracts.Artifact) ([]contracts.VerificationIssue, error) {
	return nil, errors.New("check exploded")
}

func TestVerifyCheckErrorBecomesFinding(t *testing.T) {
	v := New()
	v.Register(contracts.KindPRD, erroringCheck{})

	result := v.Verify(context.Background(), prdArtifact(fullDocument()))

	if result.Status != contracts.VerificationFail {
		t.Fatalf("status = %q, want fail (check errors are error-severity)", result.Status)
	}
}

func TestVerifyUnknownKindPasses(t *testing.T) {
	v := NewDefault(manifest.Default())

	result := v.Verify(context.Background(), &contracts.Artifact{
		ID:   "research-1",
		Kind: contracts.KindResearch,
		Data: &contracts.ResearchBrief{Summary: "fine"},
	})

	if result.Status != contracts.VerificationPass {
		t.Fatalf("status = %q, want pass for kinds with no checks", result.Status)
	}
}
