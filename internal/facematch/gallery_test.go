package facematch

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

func vec(values ...float32) []float32 {
	return values
}

func testGallery(t *testing.T) *Gallery {
	t.Helper()
	g := NewGallery()
	err := g.Load([]GalleryEntry{
		{Identity: "Alice", EmployeeID: "e1", Embedding: vec(0, 0, 0)},
		{Identity: "Alice", EmployeeID: "e1", Embedding: vec(0.1, 0, 0)},
		{Identity: "Bob", EmployeeID: "e2", Embedding: vec(1, 1, 1)},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return g
}

func TestGalleryLoad_Empty(t *testing.T) {
	g := NewGallery()

	err := g.Load(nil)
	if !errors.Is(err, ErrEmptyGallery) {
		t.Errorf("expected ErrEmptyGallery, got %v", err)
	}

	err = g.Load([]GalleryEntry{{Identity: "Alice"}, {Identity: "Bob", Embedding: []float32{}}})
	if !errors.Is(err, ErrEmptyGallery) {
		t.Errorf("expected ErrEmptyGallery for entries without embeddings, got %v", err)
	}
}

func TestGalleryLoad_KeepsPreviousOnFailure(t *testing.T) {
	g := testGallery(t)

	if err := g.Load(nil); err == nil {
		t.Fatal("expected error")
	}
	if g.Len() != 3 {
		t.Errorf("expected previous gallery to survive, got %d entries", g.Len())
	}
}

func TestGalleryReplace(t *testing.T) {
	g := NewGallery()
	src := testGallery(t)

	g.Replace(src)
	if g.Len() != 3 || g.Identities() != 2 {
		t.Fatalf("expected replaced gallery with 3 embeddings and 2 identities, got %d/%d", g.Len(), g.Identities())
	}
	if m := g.Match(vec(1, 1, 1), 0.6); m.Identity != "Bob" {
		t.Errorf("expected Bob after replace, got %q", m.Identity)
	}
}

func TestGalleryLoad_DimensionMismatch(t *testing.T) {
	g := NewGallery()

	err := g.Load([]GalleryEntry{
		{Identity: "Alice", Embedding: vec(0, 0, 0)},
		{Identity: "Bob", Embedding: vec(0, 0)},
	})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestGalleryCounts(t *testing.T) {
	g := testGallery(t)

	if g.Len() != 3 {
		t.Errorf("expected 3 embeddings, got %d", g.Len())
	}
	if g.Identities() != 2 {
		t.Errorf("expected 2 identities, got %d", g.Identities())
	}
	entries := g.Entries()
	if len(entries) != 2 || entries[0].Identity != "Alice" || entries[1].EmployeeID != "e2" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestGalleryMatch(t *testing.T) {
	g := testGallery(t)

	tests := []struct {
		name          string
		query         []float32
		tolerance     float64
		expectedName  string
		expectedConf  float64
		expectedKnown bool
	}{
		{"exact match", vec(0, 0, 0), 0.6, "Alice", 1.0, true},
		{"near second reference", vec(0.1, 0.3, 0), 0.6, "Alice", 0.7, true},
		{"bob", vec(1, 1, 0.8), 0.6, "Bob", 0.8, true},
		{"outside tolerance", vec(0.5, 0.5, 0.5), 0.6, constants.UnknownIdentity, 0, false},
		{"strict tolerance", vec(0.1, 0.3, 0), 0.2, constants.UnknownIdentity, 0, false},
		{"dimension mismatch", vec(0, 0), 0.6, constants.UnknownIdentity, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := g.Match(tt.query, tt.tolerance)
			if m.Identity != tt.expectedName {
				t.Errorf("expected identity %q, got %q", tt.expectedName, m.Identity)
			}
			if m.Known() != tt.expectedKnown {
				t.Errorf("expected Known()=%v", tt.expectedKnown)
			}
			if math.Abs(m.Confidence-tt.expectedConf) > 0.0001 {
				t.Errorf("expected confidence %v, got %v", tt.expectedConf, m.Confidence)
			}
		})
	}
}

func TestGalleryMatch_EmptyGallery(t *testing.T) {
	g := NewGallery()

	m := g.Match(vec(0, 0, 0), 0.6)
	if m.Known() {
		t.Errorf("expected unknown match from empty gallery, got %+v", m)
	}
}

func TestMatchActionable(t *testing.T) {
	tests := []struct {
		name      string
		match     Match
		threshold float64
		expected  bool
	}{
		{"confident", Match{Identity: "Alice", Confidence: 0.7}, 0.4, true},
		{"at threshold", Match{Identity: "Alice", Confidence: 0.4}, 0.4, false},
		{"low confidence", Match{Identity: "Alice", Confidence: 0.41}, 0.5, false},
		{"unknown", Match{Identity: constants.UnknownIdentity, Confidence: 0.9}, 0.4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.match.Actionable(tt.threshold); got != tt.expected {
				t.Errorf("Actionable(%v) = %v, want %v", tt.threshold, got, tt.expected)
			}
		})
	}
}

func TestGalleryMatch_IndexedGallery(t *testing.T) {
	// Points on a circle of radius 10 embedded in 8 dimensions; neighbours are
	// ~0.1 apart so every query has one clear nearest entry.
	n := constants.GalleryIndexThreshold + 88
	entries := make([]GalleryEntry, n)
	for i := range entries {
		angle := 2 * math.Pi * float64(i) / float64(n)
		emb := make([]float32, 8)
		emb[0] = float32(10 * math.Cos(angle))
		emb[1] = float32(10 * math.Sin(angle))
		entries[i] = GalleryEntry{Identity: "person", EmployeeID: string(rune('a' + i%26)), Embedding: emb}
	}
	entries[123].Identity = "target"

	g := NewGallery()
	if err := g.Load(entries); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if g.index == nil {
		t.Fatal("expected HNSW index for large gallery")
	}

	query := append([]float32(nil), entries[123].Embedding...)
	m := g.Match(query, 0.6)
	if m.Identity != "target" {
		t.Errorf("expected target, got %q (distance %v)", m.Identity, m.Distance)
	}
	if m.Distance > 1e-6 {
		t.Errorf("expected zero distance, got %v", m.Distance)
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", vec(1, 2, 3), vec(1, 2, 3), 0},
		{"3-4-5", vec(0, 0), vec(3, 4), 5},
		{"mismatch", vec(1), vec(1, 2), math.Inf(1)},
		{"empty", vec(), vec(), math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := EuclideanDistance(tt.a, tt.b)
			if math.IsInf(tt.expected, 1) {
				if !math.IsInf(d, 1) {
					t.Errorf("expected +Inf, got %v", d)
				}
				return
			}
			if math.Abs(d-tt.expected) > 0.0001 {
				t.Errorf("expected %v, got %v", tt.expected, d)
			}
		})
	}
}
