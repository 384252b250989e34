// Package merge implements the section merge engine: pure functions that
// apply an LLM-proposed edit plan (itemized add/update/remove operations plus
// a wholesale proposed list) onto existing section content.
//
// The engine is deterministic and idempotent under no-op plans: applying a
// plan with no operations and no proposed items returns the sanitized
// existing content unchanged.
package merge

import "strings"

// Mode selects how a plan's proposed items combine with existing content.
type Mode string

const (
	ModeAppend     Mode = "append"
	ModeReplace    Mode = "replace"
	ModeSmartMerge Mode = "smart_merge"
)

// Action is a normalized itemized-operation verb.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// NormalizeMode canonicalizes mode strings from generation output.
// Unknown modes degrade to smart_merge, the least destructive choice.
func NormalizeMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace", "overwrite":
		return ModeReplace
	case "append":
		return ModeAppend
	}
	return ModeSmartMerge
}

// NormalizeAction canonicalizes operation verbs. Generation output uses
// synonyms freely; everything unrecognized is treated as add.
func NormalizeAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remove", "delete", "drop":
		return ActionRemove
	case "update", "modify", "edit", "change", "revise":
		return ActionUpdate
	}
	return ActionAdd
}

// Operation is one itemized edit against existing content. Reference names
// the existing item to match (case-insensitive exact match); Value carries
// the replacement or addition.
type Operation struct {
	Action    Action `json:"action"`
	Reference string `json:"reference,omitempty"`
	Value     string `json:"value,omitempty"`
}

// ListPlan is an edit plan over a flat string-list section.
type ListPlan struct {
	Mode       Mode        `json:"mode"`
	Operations []Operation `json:"operations,omitempty"`
	Proposed   []string    `json:"proposed,omitempty"`
}

// IsNoop reports whether applying the plan can change nothing.
func (p ListPlan) IsNoop() bool {
	return len(p.Operations) == 0 && len(p.Proposed) == 0
}
