package fingerprint

import (
	"testing"

	"github.com/relaystream/filterstream/internal/subscription"
)

func TestOfIsOrderInvariantWithinASet(t *testing.T) {
	a := subscription.Subscription{RunID: "A", Track: []string{"cat", "dog"}}
	b := subscription.Subscription{RunID: "A", Track: []string{"dog", "cat"}}

	if Of(a) != Of(b) {
		t.Fatalf("expected identical fingerprints, got %q and %q", Of(a), Of(b))
	}
}

func TestOfChangesOnSemanticChange(t *testing.T) {
	a := subscription.Subscription{RunID: "A", Track: []string{"cat"}}
	b := subscription.Subscription{RunID: "A", Track: []string{"dog"}}

	if Of(a) == Of(b) {
		t.Fatal("expected different fingerprints for different filter content")
	}
}

func TestOfOmitsEmptyKeys(t *testing.T) {
	sub := subscription.Subscription{RunID: "A", Track: []string{"cat"}, Follow: nil, Locations: []string{}}
	fp := Of(sub)
	if fp != "track=cat" {
		t.Fatalf("expected only track key present, got %q", fp)
	}
}

func TestOfFixedKeyOrder(t *testing.T) {
	sub := subscription.Subscription{
		RunID:     "A",
		Locations: []string{"1,1,2,2"},
		Follow:    []string{"42"},
		Track:     []string{"cat"},
	}
	fp := Of(sub)
	if fp != "follow=42&track=cat&locations=1%2C1%2C2%2C2" {
		t.Fatalf("unexpected fingerprint: %q", fp)
	}
}
