package analysiscache

import (
	"testing"
	"time"

	"github.com/aiops/fleet-intel/internal/models"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(10, time.Minute)
	analysis := models.RootCauseAnalysis{ID: "a1", AlertID: "alert-1"}
	c.Put("fp1", analysis)

	got, ok := c.Get("fp1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ID != "a1" {
		t.Fatalf("got ID %q, want a1", got.ID)
	}
}

func TestGetMissTracksStats(t *testing.T) {
	c := New(10, time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	stats := c.Stats()
	if stats.Misses != 1 {
		t.Fatalf("Misses = %d, want 1", stats.Misses)
	}
}

func TestEvictionByCapacity(t *testing.T) {
	c := New(1, time.Minute)
	c.Put("fp1", models.RootCauseAnalysis{ID: "a1"})
	c.Put("fp2", models.RootCauseAnalysis{ID: "a2"})

	if _, ok := c.Get("fp1"); ok {
		t.Fatal("expected fp1 to be evicted once capacity exceeded")
	}
	if _, ok := c.Get("fp2"); !ok {
		t.Fatal("expected fp2 to remain cached")
	}
}
