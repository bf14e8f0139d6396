package history

import (
	"slices"
	"testing"
)

func TestPushBelowCapacity(t *testing.T) {
	r := New[int](DefaultCapacity)
	for i := 1; i <= 3; i++ {
		r.Push(i)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", r.Len())
	}
	if !slices.Equal(r.Items(), []int{1, 2, 3}) {
		t.Fatalf("unexpected order %v", r.Items())
	}
}

func TestEvictsOldest(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 25} {
		r := New[int](DefaultCapacity)
		for i := 0; i < n; i++ {
			r.Push(i)
		}
		want := min(n, DefaultCapacity)
		if r.Len() != want {
			t.Fatalf("after %d pushes: expected %d items, got %d", n, want, r.Len())
		}
		items := r.Items()
		for i, v := range items {
			if v != n-want+i {
				t.Fatalf("after %d pushes: expected oldest-to-newest, got %v", n, items)
			}
		}
		if n > 0 {
			newest, ok := r.Newest()
			if !ok || newest != n-1 {
				t.Fatalf("after %d pushes: expected newest %d, got %d", n, n-1, newest)
			}
		}
	}
}

func TestNewestEmpty(t *testing.T) {
	r := New[string](3)
	if _, ok := r.Newest(); ok {
		t.Fatal("expected no newest item on empty ring")
	}
}

func TestMinimumCapacity(t *testing.T) {
	r := New[int](0)
	if r.Cap() != 1 {
		t.Fatalf("expected capacity 1, got %d", r.Cap())
	}
	r.Push(1)
	r.Push(2)
	if !slices.Equal(r.Items(), []int{2}) {
		t.Fatalf("unexpected items %v", r.Items())
	}
}

func TestAllStopsEarly(t *testing.T) {
	r := New[int](5)
	for i := 0; i < 5; i++ {
		r.Push(i)
	}
	var seen []int
	for _, v := range r.All() {
		seen = append(seen, v)
		if v == 1 {
			break
		}
	}
	if !slices.Equal(seen, []int{0, 1}) {
		t.Fatalf("unexpected iteration %v", seen)
	}
}
