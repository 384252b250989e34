package merge

import (
	"strings"

	"prodagent/internal/contracts"
)

// MetricOperation is one itemized edit against the success-metrics section.
// Reference matches an existing metric by name; Metric carries the new
// tuple for add/update.
type MetricOperation struct {
	Action    Action            `json:"action"`
	Reference string            `json:"reference,omitempty"`
	Metric    *contracts.Metric `json:"metric,omitempty"`
}

// MetricsPlan is an edit plan over the metric-tuple section.
type MetricsPlan struct {
	Mode       Mode              `json:"mode"`
	Operations []MetricOperation `json:"operations,omitempty"`
	Proposed   []contracts.Metric `json:"proposed,omitempty"`
}

// IsNoop reports whether applying the plan can change nothing.
func (p MetricsPlan) IsNoop() bool {
	return len(p.Operations) == 0 && len(p.Proposed) == 0
}

func sanitizeMetrics(items []contracts.Metric) []contracts.Metric {
	out := make([]contracts.Metric, 0, len(items))
	for _, m := range items {
		m.Name = strings.TrimSpace(m.Name)
		m.Target = strings.TrimSpace(m.Target)
		m.Timeframe = strings.TrimSpace(m.Timeframe)
		if m.Name == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func dedupeMetrics(items []contracts.Metric) []contracts.Metric {
	seen := make(map[string]struct{}, len(items))
	out := make([]contracts.Metric, 0, len(items))
	for _, m := range items {
		key := strings.ToLower(m.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

func findMetric(items []contracts.Metric, name string) int {
	for i, m := range items {
		if strings.EqualFold(m.Name, name) {
			return i
		}
	}
	return -1
}

// ApplyMetrics merges an edit plan into the success-metrics section. Same
// algorithm as ApplyList with metric name as the match key, except that a
// proposed metric matching an existing one by name replaces it: a tuple's
// target and timeframe are the payload, so "duplicate" means "revision".
func ApplyMetrics(existing []contracts.Metric, plan MetricsPlan) []contracts.Metric {
	working := sanitizeMetrics(existing)

	for _, op := range plan.Operations {
		action := NormalizeAction(string(op.Action))
		ref := strings.TrimSpace(op.Reference)

		switch action {
		case ActionRemove:
			if ref == "" {
				continue
			}
			if idx := findMetric(working, ref); idx >= 0 {
				working = append(working[:idx], working[idx+1:]...)
			}
		default:
			if op.Metric == nil || strings.TrimSpace(op.Metric.Name) == "" {
				continue
			}
			metric := *op.Metric
			metric.Name = strings.TrimSpace(metric.Name)
			target := ref
			if target == "" {
				target = metric.Name
			}
			if idx := findMetric(working, target); idx >= 0 {
				working[idx] = metric
			} else {
				working = append(working, metric)
			}
		}
	}

	proposed := sanitizeMetrics(plan.Proposed)

	if NormalizeMode(string(plan.Mode)) == ModeReplace {
		if len(proposed) > 0 {
			return dedupeMetrics(proposed)
		}
		return dedupeMetrics(working)
	}

	for _, m := range proposed {
		if idx := findMetric(working, m.Name); idx >= 0 {
			working[idx] = m
		} else {
			working = append(working, m)
		}
	}

	working = dedupeMetrics(working)

	if len(working) == 0 && len(proposed) > 0 {
		return dedupeMetrics(proposed)
	}

	return working
}
