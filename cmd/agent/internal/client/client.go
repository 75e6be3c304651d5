// Package client talks to the machine facing API on behalf of a fuzzing machine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/types"
)

var tracer = otel.Tracer("github.com/sweetmon/triage-api/cmd/agent/internal/client")

// Non 2xx answer from the server
type StatusError struct {
	Message string
	Code    int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.Code, e.Message)
}

type Credentials struct {
	MachineID string
	Token     string
}

type Client struct {
	http    *retryablehttp.Client
	baseURL *url.URL
	creds   *Credentials
}

type Option func(*Client)

func WithRetries(n int) Option {
	return func(c *Client) { c.http.RetryMax = n }
}

func WithWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

func WithCredentials(creds Credentials) Option {
	return func(c *Client) { c.creds = &creds }
}

func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.RetryWaitMin = 500 * time.Millisecond
	httpClient.RetryWaitMax = 10 * time.Second
	httpClient.HTTPClient.Timeout = timeout
	httpClient.Logger = nil
	// hand back the last response so callers see the server's error message
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{http: httpClient, baseURL: parsed}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(
	ctx context.Context,
	method string,
	route string,
	query url.Values,
	payload any,
	out any,
) error {
	ctx, span := tracer.Start(ctx, "Client.do", trace.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
	defer span.End()

	target := c.baseURL.JoinPath(route)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to marshal payload")
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct request")
		return fmt.Errorf("failed to construct request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.creds != nil {
		req.SetBasicAuth(c.creds.MachineID, c.creds.Token)
	}

	logger.Logger.DebugContext(ctx, "sending request", "method", method, "route", route)
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send request")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read body")
		return fmt.Errorf("failed to read body: %w", err)
	}

	span.SetAttributes(attribute.Int("statusCode", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr types.Error
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		err = StatusError{Code: resp.StatusCode, Message: apiErr.Message}
		span.RecordError(err)
		span.SetStatus(codes.Error, "got invalid status code")
		return err
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to decode response")
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "request succeeded")
	return nil
}

func (c *Client) Register(
	ctx context.Context,
	registration types.MachineRegistration,
) (*types.MachineRegistrationResponse, error) {
	var out types.MachineRegistrationResponse
	if err := c.do(ctx, http.MethodPost, "/machine/register/", nil, registration, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Ping(ctx context.Context, heartbeat types.Heartbeat) (*types.PingResponse, error) {
	query := url.Values{}
	if heartbeat.PubIP != "" {
		query.Set("pub_ip", heartbeat.PubIP)
	}
	if heartbeat.PriIP != "" {
		query.Set("pri_ip", heartbeat.PriIP)
	}

	var out types.PingResponse
	if err := c.do(ctx, http.MethodGet, "/v1/ping/", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitCrash(
	ctx context.Context,
	crash types.CrashSubmission,
) (*types.CrashSubmissionResponse, error) {
	var out types.CrashSubmissionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/crash/", nil, crash, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitTestcase(
	ctx context.Context,
	testcase types.TestcaseSubmission,
) (*types.TestcaseSubmissionResponse, error) {
	var out types.TestcaseSubmissionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/testcase/", nil, testcase, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
