package actuators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/mirador-ews/internal/utils"
)

const defaultTimeout = 5 * time.Second

// HTTPAutoscaler asks an external autoscaler for capacity by POSTing
// {"serviceId","factor"} to its endpoint.
type HTTPAutoscaler struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPAutoscaler targets the supplied URL.
func NewHTTPAutoscaler(endpoint string, timeout time.Duration) *HTTPAutoscaler {
	return &HTTPAutoscaler{endpoint: strings.TrimSpace(endpoint), httpClient: newHTTPClient(timeout)}
}

// Scale requests that serviceID be scaled by factor.
func (a *HTTPAutoscaler) Scale(ctx context.Context, serviceID string, factor float64) error {
	payload := struct {
		ServiceID string  `json:"serviceId"`
		Factor    float64 `json:"factor"`
	}{serviceID, factor}
	if err := postJSON(ctx, a.httpClient, a.endpoint, payload); err != nil {
		return utils.NewAppError("autoscaler.Scale", fmt.Sprintf("scale %s by %.2f", serviceID, factor), err)
	}
	return nil
}

// HTTPRateLimiter pushes per-service limits to a gateway by POSTing
// {"serviceId","requestsPerMinute"} to its endpoint.
type HTTPRateLimiter struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPRateLimiter targets the supplied URL.
func NewHTTPRateLimiter(endpoint string, timeout time.Duration) *HTTPRateLimiter {
	return &HTTPRateLimiter{endpoint: strings.TrimSpace(endpoint), httpClient: newHTTPClient(timeout)}
}

// SetLimit caps serviceID at requestsPerMinute.
func (r *HTTPRateLimiter) SetLimit(ctx context.Context, serviceID string, requestsPerMinute int) error {
	payload := struct {
		ServiceID         string `json:"serviceId"`
		RequestsPerMinute int    `json:"requestsPerMinute"`
	}{serviceID, requestsPerMinute}
	if err := postJSON(ctx, r.httpClient, r.endpoint, payload); err != nil {
		return utils.NewAppError("ratelimiter.SetLimit", fmt.Sprintf("limit %s to %d rpm", serviceID, requestsPerMinute), err)
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return utils.CheckResponse(resp)
}
