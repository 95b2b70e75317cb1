package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-ews/internal/api"
	"github.com/miradorstack/mirador-ews/internal/models"
	"github.com/miradorstack/mirador-ews/internal/utils"
)

// Encode renders an event in its wire JSON form.
func Encode(event models.Event) ([]byte, error) {
	return json.Marshal(api.ToNotification(event))
}

// RedisPublisher is the subset of *redis.Client used by RedisTransport.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisTransport publishes every event as JSON on a Redis channel.
type RedisTransport struct {
	client  RedisPublisher
	channel string
}

// NewRedisTransport targets channel on client.
func NewRedisTransport(client RedisPublisher, channel string) *RedisTransport {
	return &RedisTransport{client: client, channel: channel}
}

func (t *RedisTransport) Name() string { return "redis:" + t.channel }

// Deliver publishes the event. Zero receivers is not an error.
func (t *RedisTransport) Deliver(ctx context.Context, event models.Event) error {
	data, err := Encode(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return utils.NewAppError("bus.RedisTransport", "publish to "+t.channel, err)
	}
	return nil
}

// WebhookTransport POSTs every event as JSON to a URL, optionally paced by a
// token bucket so a burst of alerts cannot flood the receiver.
type WebhookTransport struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewWebhookTransport builds a webhook transport. perSecond <= 0 disables pacing.
func NewWebhookTransport(url string, timeout time.Duration, perSecond float64, burst int) *WebhookTransport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t := &WebhookTransport{url: url, httpClient: &http.Client{Timeout: timeout}}
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return t
}

func (t *WebhookTransport) Name() string { return "webhook" }

// Deliver waits for the limiter, then POSTs the event. Non-2xx responses are errors.
func (t *WebhookTransport) Deliver(ctx context.Context, event models.Event) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return utils.NewAppError("bus.WebhookTransport", "rate limiter", err)
		}
	}
	data, err := Encode(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Mirador-Event", string(event.Payload.Type()))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError("bus.WebhookTransport", "post "+t.url, err)
	}
	defer resp.Body.Close()
	if err := utils.CheckResponse(resp); err != nil {
		return utils.NewAppError("bus.WebhookTransport", "post "+t.url, err)
	}
	return nil
}
