package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"handout/internal/logging"
)

// Event is a single progress update for a job.
type Event struct {
	JobID    string    `json:"job_id"`
	Stage    string    `json:"stage"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Status   string    `json:"status"`
	Time     time.Time `json:"time"`
}

// Encode returns the JSON form used on the wire.
func (e Event) Encode() string {
	data, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeEvent parses an event emitted by Encode.
func DecodeEvent(data string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Publisher delivers progress events to observers.
type Publisher interface {
	Publish(ctx context.Context, jobID string, event Event) error
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, string, Event) error { return nil }

// LogPublisher writes sampled progress lines to a logger.
type LogPublisher struct {
	logger *slog.Logger

	mu       sync.Mutex
	samplers map[string]*logging.ProgressSampler
}

// NewLogPublisher builds a log publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogPublisher{logger: logger, samplers: make(map[string]*logging.ProgressSampler)}
}

// Publish implements Publisher. Running updates are throttled to 5% buckets
// per job; terminal events are always logged.
func (p *LogPublisher) Publish(_ context.Context, jobID string, event Event) error {
	terminal := event.Status != "" && event.Status != "running"
	p.mu.Lock()
	sampler, ok := p.samplers[jobID]
	if !ok {
		sampler = logging.NewProgressSampler(logging.DefaultProgressStep)
		p.samplers[jobID] = sampler
	}
	emit := sampler.ShouldLog(event.Stage, event.Progress)
	if terminal {
		delete(p.samplers, jobID)
	}
	p.mu.Unlock()
	if !emit && !terminal {
		return nil
	}
	p.logger.Info("job progress",
		logging.String(logging.FieldEventType, "progress"),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldStage, event.Stage),
		logging.Float64("progress", event.Progress),
		logging.String("status", event.Status),
		logging.String("message", event.Message),
	)
	return nil
}

// Multi fans an event out to every publisher. All publishers are called even
// when one fails; the errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, jobID string, event Event) error {
	var errs []error
	for _, publisher := range m {
		if publisher == nil {
			continue
		}
		if err := publisher.Publish(ctx, jobID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
