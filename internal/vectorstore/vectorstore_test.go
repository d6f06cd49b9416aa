package vectorstore

import (
	"testing"

	"digestline/internal/core"
)

func TestToFloat32RoundTrip(t *testing.T) {
	e := core.Embedding{1, 2, 3}
	f := toFloat32(e)
	back := toEmbedding(f)
	if len(back) != 3 || back[0] != 1 || back[2] != 3 {
		t.Fatalf("expected round-trip to preserve values, got %v", back)
	}
}
