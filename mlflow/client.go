package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gidra39/mlflow-promote/types"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const apiPrefix = "/api/2.0/mlflow"

// Error codes returned by the MLflow REST API.
const (
	ErrorCodeResourceDoesNotExist = "RESOURCE_DOES_NOT_EXIST"
	ErrorCodeResourceExists       = "RESOURCE_ALREADY_EXISTS"
)

// APIError is a non-2xx response from the tracking server.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("MLflow API %s returned status code %d (%s): %s", e.Endpoint, e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("MLflow API %s returned status code %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsErrorCode reports whether err is an APIError carrying code.
func IsErrorCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == code
	}
	return false
}

// Client talks to the MLflow tracking and model registry REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	endpoint   Endpoint
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(ep Endpoint, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(ep.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   ep,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.endpoint.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.endpoint.Token)
	case c.endpoint.Username != "":
		req.SetBasicAuth(c.endpoint.Username, c.endpoint.Password)
	}
}

// do sends one request and decodes a 2xx JSON body into out when out is
// non-nil. Nothing is retried.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal request for %s", path)
		}
		body = bytes.NewReader(payload)
		c.logger.Debug().Str("method", method).Str("endpoint", endpoint).RawJSON("body", payload).Msg("mlflow request")
	} else {
		c.logger.Debug().Str("method", method).Str("endpoint", endpoint).Msg("mlflow request")
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrapf(err, "failed to build request for %s", path)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to call %s", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	c.logger.Debug().Str("endpoint", path).Int("status", resp.StatusCode).Msg("mlflow response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Endpoint: path, Message: strings.TrimSpace(string(respBody))}
		var e types.ErrorResponse
		if json.Unmarshal(respBody, &e) == nil && e.ErrorCode != "" {
			apiErr.ErrorCode = e.ErrorCode
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrapf(err, "failed to parse response from %s", path)
	}
	return nil
}
