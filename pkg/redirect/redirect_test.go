package redirect

import (
	"testing"

	"github.com/devkeep/httpwire/pkg/uri"
)

func TestLimitBounded(t *testing.T) {
	p := NewLimit(3)
	for attempt := 1; attempt <= 3; attempt++ {
		if !p.Allow(attempt, nil, nil, 302) {
			t.Fatalf("attempt %d should be allowed", attempt)
		}
	}
	if p.Allow(4, nil, nil, 302) {
		t.Fatal("attempt 4 should be refused by Limit(3)")
	}
}

func TestLimitZeroNeverFollows(t *testing.T) {
	p := NewLimit(0)
	if p.Allow(1, nil, nil, 301) {
		t.Fatal("Limit(0) should never follow a redirect")
	}
}

func TestCustomPredicate(t *testing.T) {
	calls := 0
	p := NewCustom(func(attempt int, from, to *uri.URI, status int) bool {
		calls++
		return status == 301
	})

	if !p.Allow(1, nil, nil, 301) {
		t.Fatal("predicate returning true should allow")
	}
	if p.Allow(2, nil, nil, 302) {
		t.Fatal("predicate returning false should refuse")
	}
	if calls != 2 {
		t.Fatalf("predicate called %d times, want 2", calls)
	}
}

func TestCustomDefaultRefusesWithNilPredicate(t *testing.T) {
	var c Custom
	if c.Allow(1, nil, nil, 302) {
		t.Fatal("a Custom with no predicate should refuse")
	}
}
