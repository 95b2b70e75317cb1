package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-ews/internal/engine"
	"github.com/miradorstack/mirador-ews/internal/models"
)

var (
	_ engine.Publisher = (*Bus)(nil)
	_ RedisPublisher   = (*redis.Client)(nil)
)

func testEvent(id string, action models.GuardrailAction) models.Event {
	priority := models.PriorityNormal
	if action.Type() == models.ActionBrownout {
		priority = models.PriorityHigh
	}
	return models.Event{
		ID:        id,
		Timestamp: time.UnixMilli(1_700_000_000_000).UTC(),
		Topic:     models.TopicAlert,
		Priority:  priority,
		Payload:   models.GuardrailPayload{ServiceID: "checkout", ResilienceIndex: 15, Action: action},
	}
}

func TestPublishFansOut(t *testing.T) {
	b := New()
	first, cancelFirst := b.Subscribe(4)
	defer cancelFirst()
	second, cancelSecond := b.Subscribe(4)
	defer cancelSecond()

	require.NoError(t, b.Publish(context.Background(), testEvent("e1", models.Autoscale{Factor: 1.5})))

	assert.Equal(t, "e1", (<-first).ID)
	assert.Equal(t, "e1", (<-second).ID)
}

func TestFullSubscriberDropsWithoutBlocking(t *testing.T) {
	b := New()
	slow, cancel := b.Subscribe(1)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(context.Background(), testEvent(fmt.Sprintf("e%d", i), models.RateLimit{MaxPerMinute: 100})))
	}

	assert.Equal(t, "e0", (<-slow).ID)
	stats := b.Stats()
	assert.EqualValues(t, 3, stats.Published)
	assert.EqualValues(t, 2, stats.Dropped)
}

func TestSubscribeFiltered(t *testing.T) {
	b := New()
	brownouts, cancel := b.SubscribeFiltered(4, func(e models.Event) bool {
		return e.Payload.Type() == models.ActionBrownout
	})
	defer cancel()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, testEvent("scale", models.Autoscale{Factor: 1.5})))
	require.NoError(t, b.Publish(ctx, testEvent("brown", models.Brownout{Reason: "low"})))

	assert.Equal(t, "brown", (<-brownouts).ID)
	select {
	case e := <-brownouts:
		t.Fatalf("unexpected event %s", e.ID)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Stats().Subscribers)
	require.NoError(t, b.Publish(context.Background(), testEvent("after", models.Autoscale{Factor: 1.5})))
}

func TestRecentRing(t *testing.T) {
	b := New(WithRecentSize(3))
	assert.Empty(t, b.Recent(0))

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, testEvent("e0", models.Autoscale{Factor: 1.5})))
	require.NoError(t, b.Publish(ctx, testEvent("e1", models.Autoscale{Factor: 1.5})))
	assert.Equal(t, []string{"e1", "e0"}, ids(b.Recent(0)))

	for i := 2; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, testEvent(fmt.Sprintf("e%d", i), models.Autoscale{Factor: 1.5})))
	}
	assert.Equal(t, []string{"e4", "e3", "e2"}, ids(b.Recent(0)))
	assert.Equal(t, []string{"e4", "e3"}, ids(b.Recent(2)))
	assert.Equal(t, 3, b.Stats().RecentStored)
}

func TestStatsByTypeAndPriority(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, testEvent("a", models.Autoscale{Factor: 1.5})))
	require.NoError(t, b.Publish(ctx, testEvent("r", models.RateLimit{MaxPerMinute: 100})))
	require.NoError(t, b.Publish(ctx, testEvent("b", models.Brownout{Reason: "x"})))

	stats := b.Stats()
	assert.EqualValues(t, 1, stats.ByType[models.ActionBrownout])
	assert.EqualValues(t, 2, stats.ByPriority[models.PriorityNormal])
	assert.EqualValues(t, 1, stats.ByPriority[models.PriorityHigh])

	stats.ByType[models.ActionAutoscale] = 99
	assert.EqualValues(t, 1, b.Stats().ByType[models.ActionAutoscale], "stats must be a copy")
}

type recordingTransport struct {
	name string
	err  error

	mu     sync.Mutex
	events []string
}

func (r *recordingTransport) Name() string { return r.name }

func (r *recordingTransport) Deliver(_ context.Context, event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.ID)
	return r.err
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestRunDeliversToEveryTransport(t *testing.T) {
	failing := &recordingTransport{name: "failing", err: errors.New("down")}
	healthy := &recordingTransport{name: "healthy"}
	b := New(WithTransports(failing, healthy))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.NoError(t, b.Publish(ctx, testEvent("e1", models.Autoscale{Factor: 1.5})))
	require.NoError(t, b.Publish(ctx, testEvent("e2", models.Brownout{Reason: "x"})))

	require.Eventually(t, func() bool { return healthy.count() == 2 && failing.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	stats := b.Stats()
	assert.EqualValues(t, 2, stats.Delivered)
	assert.EqualValues(t, 2, stats.FailedSends)
}

func TestPublishQueueFull(t *testing.T) {
	b := New(WithQueueSize(1), WithTransports(&recordingTransport{name: "idle"}))
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, testEvent("e1", models.Autoscale{Factor: 1.5})))
	err := b.Publish(ctx, testEvent("e2", models.Autoscale{Factor: 1.5}))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, b.Recent(0), 2, "events are recorded even when the transport queue is full")
}

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message = message.([]byte)
	return redis.NewIntResult(0, f.err)
}

func TestRedisTransport(t *testing.T) {
	pub := &fakePublisher{}
	transport := NewRedisTransport(pub, "ews:notifications")
	require.NoError(t, transport.Deliver(context.Background(), testEvent("e1", models.RateLimit{MaxPerMinute: 100})))

	assert.Equal(t, "ews:notifications", pub.channel)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.message, &decoded))
	assert.Equal(t, "e1", decoded["id"])
	payload := decoded["payload"].(map[string]any)
	assert.Equal(t, "rate_limit", payload["type"])
	assert.EqualValues(t, 100, payload["maxPerMinute"])

	pub.err = errors.New("connection reset")
	assert.Error(t, transport.Deliver(context.Background(), testEvent("e2", models.RateLimit{MaxPerMinute: 100})))
}

func TestWebhookTransport(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "brownout", r.Header.Get("X-Mirador-Event"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"reason":"index low"`)
		if hits.Load() > 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	transport := NewWebhookTransport(srv.URL, time.Second, 0, 0)
	require.NoError(t, transport.Deliver(context.Background(), testEvent("e1", models.Brownout{Reason: "index low"})))

	err := transport.Deliver(context.Background(), testEvent("e2", models.Brownout{Reason: "index low"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad Gateway")
}

func TestWebhookTransportRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// one token, refilled every ten seconds: the second delivery must wait
	transport := NewWebhookTransport(srv.URL, time.Second, 0.1, 1)
	require.NoError(t, transport.Deliver(context.Background(), testEvent("e1", models.Autoscale{Factor: 1.5})))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, transport.Deliver(ctx, testEvent("e2", models.Autoscale{Factor: 1.5})))
}

func ids(events []models.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}
