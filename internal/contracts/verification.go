package contracts

import "time"

// IssueSeverity grades a verification issue.
type IssueSeverity string

const (
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// VerificationStatus is the outcome of a post-hoc verification pass.
type VerificationStatus string

const (
	VerificationPass        VerificationStatus = "pass"
	VerificationFail        VerificationStatus = "fail"
	VerificationNeedsReview VerificationStatus = "needs-review"
)

// VerificationIssue is one finding from a verification check.
type VerificationIssue struct {
	Check    string        `json:"check"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
	Section  string        `json:"section,omitempty"`
}

// VerificationResult reports the verifier's findings. Issues are advisory:
// they gate quality, not delivery.
type VerificationResult struct {
	Status     VerificationStatus  `json:"status"`
	ArtifactID string              `json:"artifact_id,omitempty"`
	Issues     []VerificationIssue `json:"issues,omitempty"`
	CheckedAt  time.Time           `json:"checked_at"`
	Duration   time.Duration       `json:"duration,omitempty"`
}

// DeriveVerificationStatus maps issues to a status: fail only on an
// error-severity issue, needs-review when any issue exists, else pass.
// No built-in check currently emits error severity; the fail path is kept
// for custom checks registered by callers.
func DeriveVerificationStatus(issues []VerificationIssue) VerificationStatus {
	if len(issues) == 0 {
		return VerificationPass
	}
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return VerificationFail
		}
	}
	return VerificationNeedsReview
}
