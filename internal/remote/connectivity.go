package remote

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Connectivity reports whether the remote service is worth calling. The
// core never checks on its own; hosts resolve this once and pass a bool.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// StaticConnectivity is a fixed answer, used when the platform already knows.
type StaticConnectivity bool

func (s StaticConnectivity) Online(context.Context) bool { return bool(s) }

// HealthCheck checks the service liveness endpoint.
type HealthCheck struct {
	client *http.Client
	url    string
}

// NewHealthCheck builds a check against baseURL/health/live.
func NewHealthCheck(baseURL string, timeout time.Duration, client *http.Client) *HealthCheck {
	if client == nil {
		client = &http.Client{}
	}
	if timeout > 0 {
		copied := *client
		copied.Timeout = timeout
		client = &copied
	}
	return &HealthCheck{client: client, url: strings.TrimRight(baseURL, "/") + "/health/live"}
}

func (h *HealthCheck) Online(ctx context.Context) bool {
	if h == nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
