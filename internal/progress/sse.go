package progress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/donovanhide/eventsource"
)

// ChannelQueryParam names the query parameter that selects an SSE channel.
const ChannelQueryParam = "channel"

var errPublisherClosed = errors.New("sse publisher closed")

// Channel returns the SSE channel carrying a job's progress.
func Channel(jobID string) string {
	return fmt.Sprintf("job:%s:progress", strings.TrimSpace(jobID))
}

// sseEvent adapts Event to the eventsource wire format.
type sseEvent struct {
	id    string
	event Event
}

func (e sseEvent) Id() string    { return e.id }
func (e sseEvent) Event() string { return "progress" }
func (e sseEvent) Data() string  { return e.event.Encode() }

// latest replays the most recent event of a channel to new subscribers.
type latest struct {
	mu     sync.RWMutex
	events map[string]sseEvent
}

func (l *latest) Replay(channel, _ string) chan eventsource.Event {
	l.mu.RLock()
	event, ok := l.events[channel]
	l.mu.RUnlock()
	out := make(chan eventsource.Event, 1)
	if ok {
		out <- event
	}
	close(out)
	return out
}

func (l *latest) store(channel string, event sseEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, known := l.events[channel]
	l.events[channel] = event
	return !known
}

// SSEPublisher streams progress events over server-sent events.
type SSEPublisher struct {
	server *eventsource.Server
	replay *latest
	seq    atomic.Uint64
	closed atomic.Bool
}

// NewSSEPublisher builds a publisher with its own eventsource server.
func NewSSEPublisher() *SSEPublisher {
	server := eventsource.NewServer()
	server.ReplayAll = true
	return &SSEPublisher{
		server: server,
		replay: &latest{events: make(map[string]sseEvent)},
	}
}

// Publish implements Publisher.
func (p *SSEPublisher) Publish(_ context.Context, jobID string, event Event) error {
	if p.closed.Load() {
		return errPublisherClosed
	}
	channel := Channel(jobID)
	wire := sseEvent{id: strconv.FormatUint(p.seq.Add(1), 10), event: event}
	if p.replay.store(channel, wire) {
		p.server.Register(channel, p.replay)
	}
	p.server.Publish([]string{channel}, wire)
	return nil
}

// Handler serves the channel named by the channel query parameter.
func (p *SSEPublisher) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		channel := strings.TrimSpace(r.URL.Query().Get(ChannelQueryParam))
		if channel == "" {
			http.Error(w, "channel query parameter required", http.StatusBadRequest)
			return
		}
		if p.closed.Load() {
			http.Error(w, "event stream closed", http.StatusServiceUnavailable)
			return
		}
		p.server.Handler(channel).ServeHTTP(w, r)
	})
}

// Close disconnects subscribers. Later publishes fail.
func (p *SSEPublisher) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.server.Close()
	}
}
