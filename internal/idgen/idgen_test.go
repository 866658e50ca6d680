package idgen

import "testing"

func TestNextIDIsNonEmpty(t *testing.T) {
	g := New()
	id := g.NextID()
	if id == "" {
		t.Fatal("NextID returned an empty string")
	}
	if len(id) != 26 {
		t.Errorf("len(id) = %d, want 26 (a ULID)", len(id))
	}
}

func TestNextIDIsMonotonicWithinAGenerator(t *testing.T) {
	g := New()
	prev := g.NextID()
	for i := 0; i < 100; i++ {
		id := g.NextID()
		if id <= prev {
			t.Fatalf("id %q is not strictly greater than previous %q", id, prev)
		}
		prev = id
	}
}

func TestNextIDUniqueAcrossGenerators(t *testing.T) {
	a := New().NextID()
	b := New().NextID()
	if a == b {
		t.Error("two fresh generators produced the same id")
	}
}
