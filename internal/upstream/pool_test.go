package upstream

import "testing"

// TestPickLiveSkipsDeadHosts covers invariant 4: PickLive never
// returns a dead host while a live one remains.
func TestPickLiveSkipsDeadHosts(t *testing.T) {
	p := NewPool([]string{"a:1", "b:2", "c:3"})
	p.MarkDead(0)
	p.MarkDead(1)

	for i := 0; i < 50; i++ {
		idx, ok := p.PickLive()
		if !ok {
			t.Fatalf("expected a live host to be found")
		}
		if idx != 2 {
			t.Fatalf("expected only surviving index 2, got %d", idx)
		}
	}
}

func TestPickLiveReturnsFalseWhenAllDead(t *testing.T) {
	p := NewPool([]string{"a:1", "b:2"})
	p.MarkDead(0)
	p.MarkDead(1)

	if _, ok := p.PickLive(); ok {
		t.Fatal("expected PickLive to fail when every host is dead")
	}
}

func TestMarkAliveRestoresEligibility(t *testing.T) {
	p := NewPool([]string{"a:1"})
	p.MarkDead(0)
	if _, ok := p.PickLive(); ok {
		t.Fatal("expected no live host immediately after MarkDead")
	}
	p.MarkAlive(0)
	if _, ok := p.PickLive(); !ok {
		t.Fatal("expected the host to be selectable again after MarkAlive")
	}
}

func TestPickLiveDistributesAcrossAllLiveHosts(t *testing.T) {
	p := NewPool([]string{"a:1", "b:2", "c:3"})
	seen := map[int]int{}
	for i := 0; i < 300; i++ {
		idx, ok := p.PickLive()
		if !ok {
			t.Fatal("expected a live host")
		}
		seen[idx]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 hosts to be picked at least once, got %v", seen)
	}
}
