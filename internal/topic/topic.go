// Package topic implements the bounded, lossy live-delivery buffers that fan
// monitoring records out to subscribers. A topic keeps the last N events in a
// fixed-capacity ring; publishing never blocks the producer. The log store,
// not the topic, is the system of record for full history.
package topic

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cfletcher/netwatch/internal/metrics"
)

// Buffer capacities per record kind, sized to what a live viewer can usefully
// display.
const (
	PingCapacity       = 100
	TracerouteCapacity = 50
	DeviceCapacity     = 50
)

// subscriberBuffer is the channel depth granted to each live subscriber.
const subscriberBuffer = 64

// Event is one record delivered to live subscribers.
type Event struct {
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Name derives the rendezvous topic name for a probe kind and target label,
// e.g. Name("ping", "EXTERNAL_A") == "ping.external_a". Producers and
// subscribers resolve the same buffer without explicit registration.
func Name(kind, label string) string {
	return kind + "." + strings.ToLower(label)
}

// Topic is a fixed-capacity, drop-oldest event buffer with fan-out.
// Safe for concurrent publishers and any number of subscribers; a slow or
// disconnected subscriber never blocks the producer.
type Topic struct {
	name string
	cap  int

	mu   sync.Mutex
	buf  []Event // ring storage
	head int     // index of the oldest event
	size int
	subs map[uuid.UUID]chan Event
}

func newTopic(name string, capacity int) *Topic {
	return &Topic{
		name: name,
		cap:  capacity,
		buf:  make([]Event, capacity),
		subs: make(map[uuid.UUID]chan Event),
	}
}

// Name returns the topic's rendezvous name.
func (t *Topic) Name() string { return t.name }

// Publish inserts an event, evicting exactly the oldest one first when the
// buffer is at capacity, then offers it to every subscriber. Never blocks.
func (t *Topic) Publish(e Event) {
	e.Topic = t.name

	t.mu.Lock()
	if t.size == t.cap {
		t.head = (t.head + 1) % t.cap
		t.size--
		metrics.TopicEvictions.WithLabelValues(t.name).Inc()
	}
	t.buf[(t.head+t.size)%t.cap] = e
	t.size++

	for _, ch := range t.subs {
		select {
		case ch <- e:
		default:
			metrics.SubscriberDrops.WithLabelValues(t.name).Inc()
		}
	}
	t.mu.Unlock()
}

// Snapshot returns the buffered events, oldest first. The returned slice is
// a copy.
func (t *Topic) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Event, 0, t.size)
	for i := 0; i < t.size; i++ {
		out = append(out, t.buf[(t.head+i)%t.cap])
	}
	return out
}

// Len reports the number of buffered events.
func (t *Topic) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Subscribe registers a live subscriber. The returned channel receives events
// published after this call, in publish order, at most once each; history
// already evicted or pre-dating the subscription is not replayed. Callers
// must Unsubscribe when done.
func (t *Topic) Subscribe() (uuid.UUID, <-chan Event) {
	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)

	t.mu.Lock()
	t.subs[id] = ch
	t.mu.Unlock()
	return id, ch
}

// SubscribeWithSnapshot registers a subscriber and returns the buffered
// events, oldest first, in one critical section: an event is either in the
// snapshot or delivered on the channel, never both. Used by live viewers to
// prime with history without duplicating a concurrent publish.
func (t *Topic) SubscribeWithSnapshot() (uuid.UUID, <-chan Event, []Event) {
	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[id] = ch

	out := make([]Event, 0, t.size)
	for i := 0; i < t.size; i++ {
		out = append(out, t.buf[(t.head+i)%t.cap])
	}
	return id, ch, out
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Topic) Unsubscribe(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
}

// Registry resolves topic names to buffers, creating them on first use.
type Registry struct {
	mu     sync.Mutex
	topics map[string]*Topic
}

// NewRegistry creates an empty topic registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]*Topic)}
}

// Get returns the topic registered under name, creating it with the given
// capacity if it does not exist yet. The capacity of an existing topic is
// never changed.
func (r *Registry) Get(name string, capacity int) *Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[name]
	if !ok {
		t = newTopic(name, capacity)
		r.topics[name] = t
	}
	return t
}

// Lookup returns the topic registered under name, or nil.
func (r *Registry) Lookup(name string) *Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topics[name]
}

// Names returns the registered topic names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.topics))
	for n := range r.topics {
		names = append(names, n)
	}
	return names
}
