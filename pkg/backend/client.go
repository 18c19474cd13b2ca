package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("backend")

var ErrRateLimited = errors.New("rate limited")

// Client talks to the barangay backend's REST API. Each stream fetch is a
// plain GET returning a JSON array of records ordered by descending recency.
type Client struct {
	logger  *slog.Logger
	host    string
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(logger *slog.Logger, host string, rps float64) (*Client, error) {
	logger = logger.With("module", "backend")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend host: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("backend host %q is missing a scheme", host)
	}

	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &Client{
		logger:  logger,
		host:    u.String(),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

func (c *Client) streamPath(kind StreamKind, user string) (string, error) {
	user = url.PathEscape(user)
	switch kind {
	case StreamPersonalActivity:
		return fmt.Sprintf("%s/api/logs/activity/%s", c.host, user), nil
	case StreamPatrolActivity:
		return fmt.Sprintf("%s/api/logs/patrol/%s", c.host, user), nil
	case StreamResidentBroadcast:
		return fmt.Sprintf("%s/api/logs/resident/%s", c.host, user), nil
	case StreamIncidentsAssigned:
		return fmt.Sprintf("%s/api/incidents/assigned/%s", c.host, user), nil
	case StreamIncidentsReported:
		return fmt.Sprintf("%s/api/incidents/reported/%s", c.host, user), nil
	default:
		return "", fmt.Errorf("unknown stream kind %q", kind)
	}
}

// Fetch returns the current records of one stream for one user, ordered by
// descending recency as the backend serves them.
func (c *Client) Fetch(ctx context.Context, kind StreamKind, user string) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	span.SetAttributes(
		attribute.String("stream", string(kind)),
		attribute.String("user", user),
	)

	u, err := c.streamPath(kind, user)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bantay-agent/0.0.1")

	// Rate limit requests so five pollers don't hammer the backend at once
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("rate limited by backend", "stream", kind)
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("unexpected response status: %s", resp.Status)
	}

	var wire []wireRecord
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	records := make([]Record, 0, len(wire))
	for i := range wire {
		rec, err := wire[i].toRecord()
		if err != nil {
			// A single malformed timestamp shouldn't poison the whole pass
			c.logger.Warn("skipping malformed record", "stream", kind, "id", wire[i].ID, "err", err)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// ResolveIncident marks an incident resolved on the backend. The endpoint is
// idempotent from our perspective: resolving an already-resolved incident
// succeeds without error.
func (c *Client) ResolveIncident(ctx context.Context, id int64, resolvedBy string) error {
	ctx, span := tracer.Start(ctx, "ResolveIncident")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.String("resolved_by", resolvedBy),
	)

	body, err := json.Marshal(resolveRequest{ResolvedBy: resolvedBy})
	if err != nil {
		return fmt.Errorf("failed to marshal resolve request: %w", err)
	}

	u := fmt.Sprintf("%s/api/incidents/%d/resolve", c.host, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "bantay-agent/0.0.1")

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected response status: %s", resp.Status)
	}

	return nil
}
