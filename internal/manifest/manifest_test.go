package manifest

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"prodagent/internal/contracts"
)

func TestDefaultRegistry(t *testing.T) {
	reg := Default()

	prd, ok := reg.Kind(contracts.KindPRD)
	if !ok {
		t.Fatal("prd kind missing from embedded manifest")
	}

	want := []string{"target_users", "solution", "key_features", "success_metrics", "constraints"}
	if diff := cmp.Diff(want, prd.SectionNames()); diff != "" {
		t.Fatalf("prd section order (-want +got):\n%s", diff)
	}

	for _, kind := range []contracts.ArtifactKind{contracts.KindPersona, contracts.KindStoryMap, contracts.KindResearch} {
		if _, ok := reg.Kind(kind); !ok {
			t.Errorf("kind %q missing from embedded manifest", kind)
		}
	}

	features, ok := prd.Section("key_features")
	if !ok {
		t.Fatal("key_features section missing")
	}
	if features.MinItems != 2 {
		t.Errorf("key_features min_items = %d, want 2", features.MinItems)
	}

	solution, ok := prd.Section("Solution")
	if !ok {
		t.Fatal("case-insensitive section lookup failed")
	}
	if solution.Shape != ShapeObject || solution.MinSummaryLen != 40 {
		t.Errorf("solution spec = %+v", solution)
	}
}

func TestFilterSections(t *testing.T) {
	reg := Default()

	t.Run("empty_request_means_all", func(t *testing.T) {
		got := reg.FilterSections(contracts.KindPRD, nil)
		if len(got) != 5 {
			t.Fatalf("got %d sections, want 5", len(got))
		}
	})

	t.Run("unknown_names_drop_silently", func(t *testing.T) {
		got := reg.FilterSections(contracts.KindPRD, []string{"solution", "budget", "roadmap"})
		if diff := cmp.Diff([]string{"solution"}, got); diff != "" {
			t.Fatalf("filter (-want +got):\n%s", diff)
		}
	})

	t.Run("canonical_order_wins", func(t *testing.T) {
		got := reg.FilterSections(contracts.KindPRD, []string{"constraints", "target_users"})
		if diff := cmp.Diff([]string{"target_users", "constraints"}, got); diff != "" {
			t.Fatalf("filter order (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown_kind", func(t *testing.T) {
		if got := reg.FilterSections("unknown", nil); got != nil {
			t.Fatalf("unknown kind returned %v", got)
		}
	})
}

func TestLoadRejectsBadManifests(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"empty", "kinds: []"},
		{"missing_kind_name", "kinds:\n  - label: X"},
		{"duplicate_kind", "kinds:\n  - kind: prd\n  - kind: prd"},
		{"bad_shape", "kinds:\n  - kind: prd\n    sections:\n      - name: x\n        shape: blob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load([]byte(tc.data)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
