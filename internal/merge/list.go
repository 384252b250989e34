package merge

import (
	"strings"

	"prodagent/internal/logging"
)

// sanitizeList trims items and drops empties, preserving order.
func sanitizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// dedupeList removes case-insensitive duplicates, keeping the first
// occurrence and its casing.
func dedupeList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// findFold returns the index of the first item equal to target under
// case-insensitive comparison, or -1.
func findFold(items []string, target string) int {
	for i, item := range items {
		if strings.EqualFold(item, target) {
			return i
		}
	}
	return -1
}

// ApplyList merges an edit plan into an existing string-list section.
//
// Operations apply in order against the sanitized existing items: remove
// deletes its match (silent no-op when absent), update replaces the matched
// value or appends, add behaves as update. Then the proposed list applies
// according to mode: replace yields exactly the proposed items (falling back
// to the working list only when proposed is empty); append and smart_merge
// upsert each proposed item. The result is deduplicated case-insensitively
// with first-seen order, and a working list emptied by destructive
// operations falls back to the proposed items.
func ApplyList(existing []string, plan ListPlan) []string {
	working := sanitizeList(existing)

	for _, op := range plan.Operations {
		action := NormalizeAction(string(op.Action))
		ref := strings.TrimSpace(op.Reference)
		value := strings.TrimSpace(op.Value)

		switch action {
		case ActionRemove:
			if ref == "" {
				continue
			}
			if idx := findFold(working, ref); idx >= 0 {
				working = append(working[:idx], working[idx+1:]...)
			}
		default: // add and update unify: replace the match, else append
			if value == "" {
				continue
			}
			target := ref
			if target == "" {
				target = value
			}
			if idx := findFold(working, target); idx >= 0 {
				working[idx] = value
			} else {
				working = append(working, value)
			}
		}
	}

	proposed := sanitizeList(plan.Proposed)

	if NormalizeMode(string(plan.Mode)) == ModeReplace {
		// Replace never produces an empty result from a non-empty plan.
		if len(proposed) > 0 {
			return dedupeList(proposed)
		}
		logging.MergeDebug("replace plan had no proposed items, keeping working list (%d items)", len(working))
		return dedupeList(working)
	}

	// Upsert each proposed item: a case-insensitive match keeps the existing
	// entry (first-seen wins), otherwise the item appends.
	for _, item := range proposed {
		if findFold(working, item) < 0 {
			working = append(working, item)
		}
	}

	working = dedupeList(working)

	// Guard: a plan of destructive operations must not leave the section
	// empty when it also proposed content.
	if len(working) == 0 && len(proposed) > 0 {
		return dedupeList(proposed)
	}

	return working
}
