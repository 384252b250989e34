// Package manifest holds the artifact-kind registry: which sections each
// artifact kind carries, in canonical order, and the quality minimums each
// section must meet. The registry is declared in kinds.yaml and embedded at
// build time so every component resolves kinds from the same source.
package manifest

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"prodagent/internal/contracts"
)

//go:embed kinds.yaml
var kindsYAML []byte

// SectionShape describes the value type a section holds.
type SectionShape string

const (
	ShapeList    SectionShape = "list"
	ShapeObject  SectionShape = "object"
	ShapeMetrics SectionShape = "metrics"
)

// SectionSpec declares one section of an artifact kind.
type SectionSpec struct {
	Name          string       `yaml:"name"`
	Label         string       `yaml:"label"`
	Shape         SectionShape `yaml:"shape"`
	MinItems      int          `yaml:"min_items"`
	MinSummaryLen int          `yaml:"min_summary_len"`
}

// KindSpec declares one artifact kind.
type KindSpec struct {
	Kind        contracts.ArtifactKind `yaml:"kind"`
	Label       string                 `yaml:"label"`
	Description string                 `yaml:"description"`
	Sections    []SectionSpec          `yaml:"sections"`
}

// SectionNames returns the canonical section order for the kind.
func (k KindSpec) SectionNames() []string {
	names := make([]string, len(k.Sections))
	for i, s := range k.Sections {
		names[i] = s.Name
	}
	return names
}

// Section looks up a section spec by name, case-insensitively.
func (k KindSpec) Section(name string) (SectionSpec, bool) {
	for _, s := range k.Sections {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return SectionSpec{}, false
}

// Registry resolves artifact kinds to their declared specs.
type Registry struct {
	kinds map[contracts.ArtifactKind]KindSpec
	order []contracts.ArtifactKind
}

type manifestFile struct {
	Kinds []KindSpec `yaml:"kinds"`
}

// Load parses a manifest document into a registry.
func Load(data []byte) (*Registry, error) {
	var file manifestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing kind manifest: %w", err)
	}
	if len(file.Kinds) == 0 {
		return nil, fmt.Errorf("kind manifest declares no kinds")
	}

	reg := &Registry{kinds: make(map[contracts.ArtifactKind]KindSpec, len(file.Kinds))}
	for _, k := range file.Kinds {
		if k.Kind == "" {
			return nil, fmt.Errorf("kind manifest entry missing kind name")
		}
		if _, dup := reg.kinds[k.Kind]; dup {
			return nil, fmt.Errorf("kind manifest declares %q twice", k.Kind)
		}
		for _, s := range k.Sections {
			switch s.Shape {
			case ShapeList, ShapeObject, ShapeMetrics:
			default:
				return nil, fmt.Errorf("kind %q section %q has unknown shape %q", k.Kind, s.Name, s.Shape)
			}
		}
		reg.kinds[k.Kind] = k
		reg.order = append(reg.order, k.Kind)
	}
	return reg, nil
}

// Default returns the registry embedded in the binary. The embedded manifest
// is validated by tests, so a parse failure here is a build defect.
func Default() *Registry {
	reg, err := Load(kindsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded kind manifest invalid: %v", err))
	}
	return reg
}

// Kind resolves a kind spec.
func (r *Registry) Kind(kind contracts.ArtifactKind) (KindSpec, bool) {
	k, ok := r.kinds[kind]
	return k, ok
}

// Kinds returns all declared kinds in manifest order.
func (r *Registry) Kinds() []contracts.ArtifactKind {
	out := make([]contracts.ArtifactKind, len(r.order))
	copy(out, r.order)
	return out
}

// FilterSections keeps only requested names that the kind declares, in the
// kind's canonical order. Unknown names drop silently; an empty request
// means all sections.
func (r *Registry) FilterSections(kind contracts.ArtifactKind, requested []string) []string {
	spec, ok := r.kinds[kind]
	if !ok {
		return nil
	}
	if len(requested) == 0 {
		return spec.SectionNames()
	}
	want := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		want[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	out := make([]string, 0, len(spec.Sections))
	for _, s := range spec.Sections {
		if _, ok := want[strings.ToLower(s.Name)]; ok {
			out = append(out, s.Name)
		}
	}
	return out
}
