package receiver

import "testing"

func TestStrategySelection(t *testing.T) {
	cases := []struct {
		off  Cursor
		want readStrategy
	}{
		{Latest, strategyLatest},
		{LastConsumed, strategyLastConsumed},
		{"0", strategyNextMessage},
		{"1692632086370-0", strategyNextMessage},
		{"", strategyNextMessage},
	}
	for _, c := range cases {
		if got := strategyFor(c.off); got != c.want {
			t.Fatalf("strategyFor(%q) = %v, want %v", c.off, got, c.want)
		}
	}
}

func TestLatestStrategyIgnoresProgress(t *testing.T) {
	s := strategyLatest
	if got := s.first("whatever", nil); got != Latest {
		t.Fatalf("first = %q, want %q", got, Latest)
	}
	if got := s.next(nil, "42"); got != Latest {
		t.Fatalf("next = %q, want %q", got, Latest)
	}
	c := &Consumer{Group: "g", Name: "c1"}
	if got := s.next(c, "42"); got != Latest {
		t.Fatalf("next with consumer = %q, want %q", got, Latest)
	}
}

func TestLastConsumedStrategy(t *testing.T) {
	s := strategyLastConsumed
	c := &Consumer{Group: "g", Name: "c1"}

	if got := s.first(LastConsumed, c); got != LastConsumed {
		t.Fatalf("first with consumer = %q, want %q", got, LastConsumed)
	}
	if got := s.first(LastConsumed, nil); got != Latest {
		t.Fatalf("first without consumer = %q, want %q", got, Latest)
	}
	if got := s.next(c, "7"); got != LastConsumed {
		t.Fatalf("next with consumer = %q, want %q", got, LastConsumed)
	}
	if got := s.next(nil, "7"); got != Cursor("7") {
		t.Fatalf("next without consumer = %q, want %q", got, "7")
	}
}

func TestNextMessageStrategy(t *testing.T) {
	s := strategyNextMessage
	if got := s.first("100", nil); got != Cursor("100") {
		t.Fatalf("first = %q, want 100", got)
	}
	if got := s.next(nil, "101"); got != Cursor("101") {
		t.Fatalf("next = %q, want 101", got)
	}
}
