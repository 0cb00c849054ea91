// Package api is the typed client for the backend REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"replied/internal/models"
	"replied/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const maxErrorBody = 64 << 10

// Client calls the backend. Methods taking a token send it as a bearer
// credential; an empty token on an optional-auth endpoint is an anonymous call.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for baseURL with the given per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithHTTP is NewClient with a caller-supplied http.Client.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: hc}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type call struct {
	method   string
	path     string
	endpoint string // metrics label; path template, never raw ids
	token    string
	body     any
	out      any
}

func requireToken(token string) error {
	if token == "" {
		return models.NewUnauthenticatedError("Sign in required")
	}
	return nil
}

func (c *Client) do(ctx context.Context, cl call) error {
	if err := ctx.Err(); err != nil {
		return models.NewStaleError(err)
	}

	ctx, span := observability.StartClientSpan(ctx, "backend "+cl.method+" "+cl.endpoint,
		attribute.String("http.method", cl.method),
		attribute.String("backend.endpoint", cl.endpoint),
		attribute.Bool("auth.bearer", cl.token != ""),
	)

	status, err := c.roundTrip(ctx, cl)
	if models.IsKind(err, models.KindStale) {
		span.Finish(status, nil)
	} else {
		span.Finish(status, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, cl call) (int, error) {
	start := time.Now()

	var reader io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return 0, models.NewInternalError(fmt.Errorf("encode %s body: %w", cl.endpoint, err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reader)
	if err != nil {
		return 0, models.NewInternalError(fmt.Errorf("build %s request: %w", cl.endpoint, err))
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.ObserveBackend(cl.endpoint, 0, start)
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return 0, models.NewStaleError(err)
		}
		return 0, models.NewNetworkError(err)
	}
	defer resp.Body.Close()
	observability.ObserveBackend(cl.endpoint, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, decodeError(resp)
	}

	if cl.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
		if ctx.Err() != nil {
			return resp.StatusCode, models.NewStaleError(ctx.Err())
		}
		unparsed := models.NewUnparsedError(resp.StatusCode)
		unparsed.Err = err
		return resp.StatusCode, unparsed
	}
	return resp.StatusCode, nil
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return models.NewUnparsedError(resp.StatusCode)
	}
	var body models.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return models.NewUnparsedError(resp.StatusCode)
	}
	return models.NewStatusError(resp.StatusCode, body.Error)
}
