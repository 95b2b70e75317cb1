package actuators

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-ews/internal/engine"
	"github.com/miradorstack/mirador-ews/internal/utils"
)

var (
	_ engine.Autoscaler  = (*HTTPAutoscaler)(nil)
	_ engine.RateLimiter = (*HTTPRateLimiter)(nil)
	_ engine.KillSwitch  = (*RedisKillSwitch)(nil)
	_ engine.Autoscaler  = NoopAutoscaler{}
	_ engine.RateLimiter = NoopRateLimiter{}
	_ engine.KillSwitch  = NoopKillSwitch{}
	_ RedisCmdable       = (*redis.Client)(nil)
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Header:     make(http.Header),
	}
}

func TestHTTPAutoscalerPostsPayload(t *testing.T) {
	var got map[string]any
	scaler := NewHTTPAutoscaler("http://scaler.local/v1/scale", time.Second)
	scaler.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/v1/scale", req.URL.Path)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		return respond(http.StatusAccepted), nil
	})

	require.NoError(t, scaler.Scale(context.Background(), "checkout", 1.5))
	assert.Equal(t, "checkout", got["serviceId"])
	assert.Equal(t, 1.5, got["factor"])
}

func TestHTTPRateLimiterRejectsNon2xx(t *testing.T) {
	limiter := NewHTTPRateLimiter("http://gateway.local/limits", time.Second)
	limiter.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.EqualValues(t, 100, body["requestsPerMinute"])
		return respond(http.StatusServiceUnavailable), nil
	})

	err := limiter.SetLimit(context.Background(), "payments", 100)
	require.Error(t, err)

	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ratelimiter.SetLimit", appErr.Op)
	assert.Contains(t, err.Error(), "Service Unavailable")

	var statusErr *utils.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Temporary())
}

func TestHTTPActuatorTransportError(t *testing.T) {
	scaler := NewHTTPAutoscaler("http://scaler.local", time.Second)
	scaler.httpClient.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	err := scaler.Scale(context.Background(), "svc", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPActuatorEmptyEndpoint(t *testing.T) {
	err := NewHTTPAutoscaler("  ", 0).Scale(context.Background(), "svc", 1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty endpoint")
}

func TestHTTPActuatorHonoursContext(t *testing.T) {
	scaler := NewHTTPAutoscaler("http://scaler.local", time.Second)
	scaler.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := scaler.Scale(ctx, "svc", 1.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeRedis struct {
	mu        sync.Mutex
	values    map[string]string
	published map[string][]string
	failSet   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, published: map[string][]string{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return redis.NewStatusResult("", f.failSet)
	}
	f.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], message.(string))
	return redis.NewIntResult(1, nil)
}

func TestRedisKillSwitchLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	ks := NewRedisKillSwitch(client, "ews:killswitch", "ews:control")
	ks.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	enabled, _, err := ks.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, ks.EnableGlobalKillSwitch(ctx, "resilience index for checkout dropped to 15.0"))
	enabled, reason, err := ks.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "resilience index for checkout dropped to 15.0", reason)
	assert.Equal(t, []string{"enable:1700000000000:resilience index for checkout dropped to 15.0"}, client.published["ews:control"])

	require.NoError(t, ks.Disable(ctx))
	enabled, _, err = ks.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Len(t, client.published["ews:control"], 2)

	// disabling twice is harmless
	require.NoError(t, ks.Disable(ctx))
}

func TestRedisKillSwitchWithoutChannel(t *testing.T) {
	client := newFakeRedis()
	ks := NewRedisKillSwitch(client, "ews:killswitch", "")
	require.NoError(t, ks.EnableGlobalKillSwitch(context.Background(), "brownout"))
	assert.Empty(t, client.published)
}

func TestRedisKillSwitchSetFailure(t *testing.T) {
	client := newFakeRedis()
	client.failSet = errors.New("READONLY")
	ks := NewRedisKillSwitch(client, "ews:killswitch", "ews:control")

	err := ks.EnableGlobalKillSwitch(context.Background(), "brownout")
	require.Error(t, err)
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "killswitch.Enable", appErr.Op)
	assert.Empty(t, client.published, "no announcement when the flag was not stored")
}

func TestNewRedisClientRequiresAddr(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{})
	require.Error(t, err)
}

func TestNoopActuatorsAccept(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NoopAutoscaler{}.Scale(ctx, "svc", 1.5))
	assert.NoError(t, NoopRateLimiter{}.SetLimit(ctx, "svc", 100))
	assert.NoError(t, NoopKillSwitch{}.EnableGlobalKillSwitch(ctx, "reason"))
}
