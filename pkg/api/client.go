// Package api is the HTTP client for the remote user service.
//
// The service is REST-ish JSON: list/create/update/delete plus dedicated
// activate/deactivate endpoints. There is no bulk endpoint; bulk actions are
// fanned out client-side by the coordinator. Any non-2xx response is decoded
// into a structured *Error distinguishing validation failures (field detail)
// from auth/server/network ones.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/userdeck/userdeck/pkg/user"
)

const tracerName = "userdeck.api"

// Client talks to the remote user service.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
// Default: 15 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListFilter narrows a List call. Zero values mean "no filter".
type ListFilter struct {
	Query    string
	Role     string
	Active   *bool
	Page     int
	PageSize int
}

// Page is one page of the user list.
type Page struct {
	Users []user.Record `json:"users"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
}

// List fetches a page of users.
func (c *Client) List(ctx context.Context, filter ListFilter) (Page, error) {
	q := url.Values{}
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}
	if filter.Role != "" {
		q.Set("role", filter.Role)
	}
	if filter.Active != nil {
		q.Set("active", strconv.FormatBool(*filter.Active))
	}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(filter.PageSize))
	}
	path := "/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page Page
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// Create registers a new user and returns the authoritative record,
// including the server-assigned ID.
func (c *Client) Create(ctx context.Context, payload user.CreatePayload) (user.Record, error) {
	var rec user.Record
	err := c.do(ctx, http.MethodPost, "/users", payload, &rec)
	return rec, err
}

// Update applies a sparse patch and returns the updated record.
func (c *Client) Update(ctx context.Context, id string, patch user.Patch) (user.Record, error) {
	var rec user.Record
	err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), patch, &rec)
	return rec, err
}

// Delete removes a user.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

// SetActive activates or deactivates a user and returns the updated record.
func (c *Client) SetActive(ctx context.Context, id string, active bool) (user.Record, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	var rec user.Record
	err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(id)+"/"+action, nil, &rec)
	return rec, err
}

// Get fetches a single user record.
func (c *Client) Get(ctx context.Context, id string) (user.Record, error) {
	var rec user.Record
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

// wireError is the service's error body shape.
type wireError struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// do runs one request inside a client span and decodes the response into
// out (when out is non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("users %s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return networkError(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return networkError(err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}

	span.SetStatus(codes.Ok, "")
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return networkError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// decodeError turns a non-2xx response into a structured *Error.
// Bodies that don't match the error contract still classify by status.
func decodeError(resp *http.Response) *Error {
	apiErr := &Error{
		Kind:    kindForStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}
	var wire wireError
	if json.Unmarshal(raw, &wire) != nil {
		return apiErr
	}
	if wire.Message != "" {
		apiErr.Message = wire.Message
	}
	apiErr.Fields = wire.Errors
	if apiErr.Kind == KindValidation && len(apiErr.Fields) == 0 && resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusUnprocessableEntity {
		// 4xx without field detail and outside the validation statuses:
		// treat as a server-side rejection rather than a form error.
		apiErr.Kind = KindServer
	}
	return apiErr
}
