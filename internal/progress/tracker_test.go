package progress

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"handout/internal/stage"
)

type recordingStore struct {
	mu        sync.Mutex
	fractions []float64
	err       error
}

func (s *recordingStore) UpdateProgress(_ context.Context, _, _ string, fraction float64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fractions = append(s.fractions, fraction)
	return s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func TestWeightsSumToOne(t *testing.T) {
	if got := TotalWeight(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("weights sum to %v", got)
	}
	if Weight("unknown") != 0 {
		t.Fatal("unknown stage should weigh nothing")
	}
}

func TestTrackerMonotonicAndCompletesAtFinalize(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	pub := &recordingPublisher{}
	tracker := NewTracker("job-1", store, pub, nil)

	for _, name := range stage.Ordered() {
		tracker.Begin(ctx, name)
		tracker.Report(ctx, name, 0.5, "halfway")
		tracker.Report(ctx, name, 0.2, "regressed")
		tracker.Report(ctx, name, 1.0, "local done")
		if name != stage.Finalize && tracker.Value() >= 1 {
			t.Fatalf("progress reached 1.0 before finalize completed (stage %s)", name)
		}
		tracker.Complete(ctx, name)
	}

	if tracker.Value() != 1 {
		t.Fatalf("expected exactly 1.0, got %v", tracker.Value())
	}
	prev := -1.0
	for i, f := range store.fractions {
		if f < prev {
			t.Fatalf("fraction %d went backwards: %v < %v", i, f, prev)
		}
		if f < 0 || f > 1 {
			t.Fatalf("fraction %d out of range: %v", i, f)
		}
		if f == 1 && i != len(store.fractions)-1 {
			t.Fatalf("1.0 reported before the final update at %d", i)
		}
		prev = f
	}
	if len(pub.events) != len(store.fractions) {
		t.Fatalf("publisher saw %d events, store saw %d", len(pub.events), len(store.fractions))
	}
}

func TestTrackerWeightedValue(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker("job-2", nil, nil, nil)
	tracker.Complete(ctx, stage.Acquire)
	got := tracker.Report(ctx, stage.ExtractCaptions, 0.5, "")
	if math.Abs(got-0.225) > 1e-9 {
		t.Fatalf("expected 0.15 + 0.15*0.5, got %v", got)
	}
	if got := tracker.Report(ctx, stage.ExtractCaptions, 7, ""); math.Abs(got-0.30) > 1e-9 {
		t.Fatalf("local fraction should clamp to 1, got %v", got)
	}
}

func TestTrackerIgnoresCollaboratorErrors(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{err: errors.New("db locked")}
	pub := &recordingPublisher{err: errors.New("closed")}
	tracker := NewTracker("job-3", store, pub, nil)
	tracker.Report(ctx, stage.Acquire, 0.5, "downloading")
	tracker.Finish(ctx, "failed", "boom")
	if len(pub.events) != 2 || pub.events[1].Status != "failed" {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestMultiJoinsErrorsAndCallsEveryone(t *testing.T) {
	first := &recordingPublisher{err: errors.New("first")}
	second := &recordingPublisher{}
	multi := Multi{first, nil, second}
	err := multi.Publish(context.Background(), "job", Event{Stage: stage.Acquire})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatal("every publisher should receive the event")
	}
}

func TestLogPublisherAlwaysAcceptsEvents(t *testing.T) {
	pub := NewLogPublisher(nil)
	for i := 0; i < 10; i++ {
		if err := pub.Publish(context.Background(), "job", Event{Stage: stage.Acquire, Progress: float64(i) / 100, Status: "running"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := pub.Publish(context.Background(), "job", Event{Status: "completed", Progress: 1}); err != nil {
		t.Fatalf("publish terminal: %v", err)
	}
}
