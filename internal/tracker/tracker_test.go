package tracker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryCountsCompletionsAndFailures(t *testing.T) {
	tr := New()
	tr.LogStart("Market Analyst")
	tr.LogComplete("Market Analyst", "report", 120*time.Millisecond)
	tr.LogStart("Competitive Intel")
	tr.LogComplete("Competitive Intel", "scan", 80*time.Millisecond)
	tr.LogStart("Cultural Resonance")
	tr.LogFail("Cultural Resonance", "boom", 30*time.Millisecond)

	assert.Equal(t, Summary{Total: 3, Completed: 2, Failed: 1, TotalDurationMs: 230}, tr.Summary())

	events := tr.Events()
	require.Len(t, events, 6)
	assert.Equal(t, AgentStart, events[0].Kind)
	require.NotNil(t, events[1].OutputLength)
	assert.Equal(t, len("report"), *events[1].OutputLength)
	assert.Equal(t, "boom", events[5].Error)
	for _, e := range events {
		assert.NotEmpty(t, e.ID)
		assert.NotZero(t, e.Timestamp)
	}
}

func TestEventsSnapshotIsImmutable(t *testing.T) {
	tr := New()
	tr.LogStart("Brand Architect")
	snap := tr.Events()
	snap[0].AgentName = "mutated"
	tr.LogStart("Danni Synthesis")

	events := tr.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Brand Architect", events[0].AgentName)
	assert.Len(t, snap, 1)
}

func TestSignalsReachStreamButNotLog(t *testing.T) {
	var (
		mu       sync.Mutex
		streamed []Kind
	)
	tr := New(WithSubscribers(SubscriberFunc(func(e Event) {
		mu.Lock()
		streamed = append(streamed, e.Kind)
		mu.Unlock()
	})))

	tr.LogStart("Market Analyst")
	tr.LogComplete("Market Analyst", "x", time.Millisecond)
	tr.SynthesisStarted()
	tr.SynthesisCompleted()
	tr.PaymentConfirmed()

	assert.Equal(t, []Kind{AgentStart, AgentComplete, SynthesisStart, SynthesisComplete, PaymentConfirmed}, streamed)
	assert.Len(t, tr.Events(), 2)
	assert.Equal(t, 1, tr.Summary().Total)
}

func TestStreamDropsWhenFull(t *testing.T) {
	s := NewStream(1)
	tr := New(WithSubscribers(s))
	tr.LogStart("a")
	tr.LogStart("b")
	s.Close()
	tr.LogStart("c")

	var got []string
	for e := range s.C() {
		got = append(got, e.AgentName)
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestForwarderDropsEventsAfterClose(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []Kind
	)
	f := newForwarder("test", 4, time.Second, func(_ context.Context, e Event) error {
		mu.Lock()
		sent = append(sent, e.Kind)
		mu.Unlock()
		return nil
	})
	tr := New(WithSubscribers(f))
	tr.LogStart("Market Analyst")
	f.close()

	assert.NotPanics(t, func() {
		tr.LogComplete("Market Analyst", "late report", time.Millisecond)
		tr.SynthesisStarted()
	})
	f.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{AgentStart}, sent)
}

type fakeRedis struct {
	mu       sync.Mutex
	channel  string
	payloads [][]byte
	closed   bool
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	f.payloads = append(f.payloads, message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisPublisherForwardsJSON(t *testing.T) {
	fake := &fakeRedis{}
	pub := newRedisPublisher(fake, "")
	tr := New(WithSubscribers(pub))

	tr.LogStart("Market Analyst")
	tr.SynthesisStarted()
	require.NoError(t, pub.Close())

	assert.True(t, fake.closed)
	assert.Equal(t, "danni:swarm:events", fake.channel)
	require.Len(t, fake.payloads, 2)

	var first Event
	require.NoError(t, json.Unmarshal(fake.payloads[0], &first))
	assert.Equal(t, AgentStart, first.Kind)
	assert.Equal(t, "Market Analyst", first.AgentName)
	assert.Contains(t, string(fake.payloads[1]), `"event":"synthesis_start"`)
}

type fakeChannel struct {
	mu   sync.Mutex
	keys []string
	msgs []amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, exchange+"/"+key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestAMQPPublisherRoutesByKind(t *testing.T) {
	ch := &fakeChannel{}
	pub := newAMQPPublisher(ch, "danni.swarm")
	tr := New(WithSubscribers(pub))

	tr.LogFail("Brand Architect", "timeout", time.Second)
	tr.PaymentConfirmed()
	require.NoError(t, pub.Close())

	assert.Equal(t, []string{"danni.swarm/tracker.agent_fail", "danni.swarm/tracker.payment_confirmed"}, ch.keys)
	assert.Equal(t, "application/json", ch.msgs[0].ContentType)
	assert.NotEmpty(t, ch.msgs[0].MessageId)
}
