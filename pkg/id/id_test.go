package id

import (
	"sort"
	"sync"
	"testing"
)

func TestNextIsMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		if next.Compare(prev) <= 0 {
			t.Fatalf("id %s not after %s", next, prev)
		}
		prev = next
	}
}

func TestBackwardsClock(t *testing.T) {
	g := NewGenerator()
	orig := NowMs
	defer func() { NowMs = orig }()

	now := int64(1_700_000_000_000)
	NowMs = func() int64 { return now }
	a := g.Next()
	now -= 50
	b := g.Next()
	if b.Compare(a) <= 0 {
		t.Fatalf("id regressed on backwards clock: %s then %s", a, b)
	}
}

func TestConcurrentUnique(t *testing.T) {
	g := NewGenerator()
	const n = 64
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = g.Next().String()
		}(i)
	}
	wg.Wait()
	sort.Strings(ids)
	for i := 1; i < n; i++ {
		if ids[i] == ids[i-1] {
			t.Fatalf("duplicate id %s", ids[i])
		}
	}
}

func TestStringIsFixedWidthHex(t *testing.T) {
	s := NewGenerator().Next().String()
	if len(s) != 24 {
		t.Fatalf("len = %d, want 24", len(s))
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("non-hex char %q in %s", c, s)
		}
	}
}
