package skills

import (
	"fmt"
	"strings"

	"prodagent/internal/contracts"
	"prodagent/internal/manifest"
)

// validateSection checks one section's content against its declared minimums.
// Issues are advisory: they flow into the artifact's validation block and
// lower confidence, but never block assembly.
func validateSection(spec manifest.SectionSpec, content any) []string {
	var issues []string

	switch spec.Shape {
	case manifest.ShapeList:
		items, _ := content.([]string)
		if len(items) < spec.MinItems {
			issues = append(issues, fmt.Sprintf("%s has %d items, needs at least %d", spec.Name, len(items), spec.MinItems))
		}
	case manifest.ShapeMetrics:
		metrics, _ := content.([]contracts.Metric)
		if len(metrics) < spec.MinItems {
			issues = append(issues, fmt.Sprintf("%s has %d metrics, needs at least %d", spec.Name, len(metrics), spec.MinItems))
		}
		for _, m := range metrics {
			if strings.TrimSpace(m.Target) == "" {
				issues = append(issues, fmt.Sprintf("metric %q has no measurable target", m.Name))
			}
		}
	case manifest.ShapeObject:
		solution, _ := content.(*contracts.Solution)
		if solution == nil {
			issues = append(issues, fmt.Sprintf("%s is empty", spec.Name))
			break
		}
		if len(strings.TrimSpace(solution.Summary)) < spec.MinSummaryLen {
			issues = append(issues, fmt.Sprintf("%s summary is too thin (%d chars, needs %d)",
				spec.Name, len(strings.TrimSpace(solution.Summary)), spec.MinSummaryLen))
		}
	}

	return issues
}

// buildValidationBlock aggregates per-section issues into the artifact's
// embedded validation block, checking sections that never ran as well.
func buildValidationBlock(kind manifest.KindSpec, sections contracts.PRDSections, recorded map[string][]string) *contracts.ValidationBlock {
	block := &contracts.ValidationBlock{IsValid: true, Issues: make(map[string][]string)}

	for _, spec := range kind.Sections {
		issues := recorded[spec.Name]
		if issues == nil {
			content, _ := sections.Get(spec.Name)
			issues = validateSection(spec, content)
		}
		if len(issues) > 0 {
			block.IsValid = false
			block.Issues[spec.Name] = issues
		}
	}

	if len(block.Issues) == 0 {
		block.Issues = nil
	}
	return block
}
