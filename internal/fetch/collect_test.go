package fetch

import "testing"

func TestStableIDDeterministic(t *testing.T) {
	a := stableID("source-a", "https://example.com/x")
	b := stableID("source-a", "https://example.com/x")
	c := stableID("source-a", "https://example.com/y")
	if a != b {
		t.Fatal("expected stable id to be deterministic for the same source+url")
	}
	if a == c {
		t.Fatal("expected different urls to produce different ids")
	}
}
