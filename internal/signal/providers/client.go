// Package providers syncs upstream signal data into the local mirror
// tables. Every remote call runs through a per-provider circuit breaker
// so a flapping upstream trips fast instead of slowing every pass.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/signalway/internal/observability/tracing"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"github.com/sony/gobreaker"
)

type client struct {
	name    string
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newClient(name, baseURL, token string, timeout time.Duration) (*client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, signaldomain.ErrMissingConfig
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     120 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &client{
		name:    name,
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http:    tracing.WrapHTTPClient(&http.Client{Timeout: timeout}),
		breaker: breaker,
	}, nil
}

// getJSON fetches a provider resource and decodes it into out. Any
// transport failure, 5xx, or open breaker maps to ErrProviderUnavailable.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, errNotFound
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("%s responded %d", c.name, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if errors.Is(err, errNotFound) {
			return errNotFound
		}
		return fmt.Errorf("%w: %s: %v", signaldomain.ErrProviderUnavailable, c.name, err)
	}

	raw, ok := body.([]byte)
	if !ok {
		return fmt.Errorf("%w: %s: empty response", signaldomain.ErrProviderUnavailable, c.name)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", signaldomain.ErrProviderUnavailable, c.name, err)
	}
	return nil
}

// errNotFound marks a resource that legitimately does not exist upstream;
// callers translate it to an absent mirror row, not an outage.
var errNotFound = errors.New("provider_resource_not_found")
