package tracker

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Subscriber receives every event published on a Tracker.
type Subscriber interface {
	Handle(Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Event)

func (f SubscriberFunc) Handle(e Event) { f(e) }

// Tracker is the event bus for one swarm execution. It always carries a Log
// subscriber; further subscribers forward events live.
type Tracker struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	log         *Log
	now         func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSubscribers attaches live subscribers.
func WithSubscribers(subs ...Subscriber) Option {
	return func(t *Tracker) {
		for _, s := range subs {
			if s != nil {
				t.subscribers = append(t.subscribers, s)
			}
		}
	}
}

// WithClock overrides the event clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New builds a Tracker whose first subscriber is its execution log.
func New(opts ...Option) *Tracker {
	t := &Tracker{log: NewLog(), now: time.Now}
	t.subscribers = []Subscriber{t.log}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe attaches s for all subsequent events.
func (t *Tracker) Subscribe(s Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, s)
}

// Publish delivers e to every subscriber in registration order.
func (t *Tracker) Publish(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = t.now().UnixMilli()
	}
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	t.mu.RLock()
	subs := make([]Subscriber, len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.RUnlock()

	for _, s := range subs {
		s.Handle(e)
	}
}

func (t *Tracker) LogStart(agentName string) {
	t.Publish(Event{Kind: AgentStart, AgentName: agentName})
}

func (t *Tracker) LogComplete(agentName, output string, duration time.Duration) {
	ms := duration.Milliseconds()
	n := len(output)
	t.Publish(Event{Kind: AgentComplete, AgentName: agentName, DurationMs: &ms, OutputLength: &n})
}

func (t *Tracker) LogFail(agentName, errMsg string, duration time.Duration) {
	ms := duration.Milliseconds()
	t.Publish(Event{Kind: AgentFail, AgentName: agentName, DurationMs: &ms, Error: errMsg})
}

func (t *Tracker) SynthesisStarted()   { t.Publish(Event{Kind: SynthesisStart}) }
func (t *Tracker) SynthesisCompleted() { t.Publish(Event{Kind: SynthesisComplete}) }
func (t *Tracker) PaymentConfirmed()   { t.Publish(Event{Kind: PaymentConfirmed}) }

// Events returns a snapshot of the execution log.
func (t *Tracker) Events() []Event { return t.log.Events() }

// Summary aggregates the execution log.
func (t *Tracker) Summary() Summary { return t.log.Summary() }
