package search

import (
	"errors"
	"testing"
	"time"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

func TestExponentialBlockDuration(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 2 * time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 15 * time.Minute},
		{10, 15 * time.Minute},
	}
	for _, tt := range tests {
		if got := exponentialBlockDuration(tt.failures); got != tt.want {
			t.Errorf("exponentialBlockDuration(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestHealthTrackerBlocksAfterThreshold(t *testing.T) {
	tracker := newHealthTracker()
	now := time.Now()
	failure := errors.New("connection refused")

	for i := 0; i < sourceFailureThreshold-1; i++ {
		tracker.record("src", "q", 0, failure, time.Millisecond, now)
	}
	if blocked, _ := tracker.blocked("src", now); blocked {
		t.Fatal("source blocked before reaching the threshold")
	}

	tracker.record("src", "q", 0, failure, time.Millisecond, now)
	blocked, until := tracker.blocked("src", now)
	if !blocked {
		t.Fatal("expected source to be blocked")
	}
	if want := now.Add(sourceBlockBase); !until.Equal(want) {
		t.Fatalf("blocked until %v, want %v", until, want)
	}
	if blocked, _ := tracker.blocked("src", until.Add(time.Second)); blocked {
		t.Fatal("block should lapse")
	}
}

func TestHealthTrackerSuccessResets(t *testing.T) {
	tracker := newHealthTracker()
	now := time.Now()
	for i := 0; i < sourceFailureThreshold; i++ {
		tracker.record("src", "q", 0, errors.New("boom"), 0, now)
	}
	tracker.record("src", "q", 4, nil, 10*time.Millisecond, now.Add(time.Minute))

	if blocked, _ := tracker.blocked("src", now.Add(time.Minute)); blocked {
		t.Fatal("success must clear the block")
	}
	items := tracker.diagnostics([]domain.Source{{Key: "src", Name: "Source"}, {Key: "idle", Name: "Idle"}})
	if len(items) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(items))
	}
	got := items[0]
	if got.ConsecutiveFailures != 0 || got.LastError != "" || got.BlockedUntil != nil {
		t.Fatalf("unexpected state after success: %+v", got)
	}
	if got.TotalRequests != 4 || got.TotalFailures != 3 || got.LastResultCount != 4 || got.LastLatencyMS != 10 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if items[1].TotalRequests != 0 || items[1].Name != "Idle" {
		t.Fatalf("unexpected idle diagnostics: %+v", items[1])
	}
}
