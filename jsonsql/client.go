package jsonsql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client executes a JSONSQL request against the remote service. Transport,
// authentication, retries and timeouts belong to the implementation; the
// sync engine only sees the final result or error.
type Client interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// HTTPClient is a minimal reference Client that posts the request document
// to a single endpoint. It carries no auth and no retry policy; wrap it when
// the portal needs either.
type HTTPClient struct {
	URL    string
	Client *http.Client
}

// NewHTTPClient builds an HTTPClient with the given endpoint and request
// timeout.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

type wireResponse struct {
	Result Result     `json:"result"`
	Error  *wireError `json:"error"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Execute posts the request and decodes the positional result. Numeric
// cells are preserved as json.Number so integer ids survive round-tripping.
func (c *HTTPClient) Execute(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Op: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "post", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusForbidden {
		return nil, &APIError{Code: res.StatusCode, Message: res.Status, AccessDenied: true}
	}
	if res.StatusCode >= 500 {
		return nil, &TransportError{Op: "post", Err: fmt.Errorf("server status %s", res.Status)}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &APIError{Code: res.StatusCode, Message: res.Status}
	}

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()

	var wire wireResponse
	if err := dec.Decode(&wire); err != nil {
		return nil, &TransportError{Op: "decode response", Err: err}
	}

	if wire.Error != nil {
		return nil, &APIError{
			Code:         wire.Error.Code,
			Message:      wire.Error.Message,
			AccessDenied: wire.Error.Code == http.StatusForbidden,
		}
	}

	return wire.Result, nil
}
