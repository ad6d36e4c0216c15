package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// errorBody is the structured error envelope the authority returns on
// non-2xx responses.
type errorBody struct {
	Error string `json:"error"`
}

type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewBaseClient(baseURL string) *BaseClient {
	return &BaseClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// MakeRequest issues one HTTP call and returns the raw body. Non-2xx
// responses and transport failures come back as classified *APIError values
// so callers can make retry decisions without inspecting status codes.
func (c *BaseClient) MakeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ClassifyTransport(err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := http.StatusText(resp.StatusCode)
		var envelope errorBody
		if jsonErr := json.Unmarshal(responseBody, &envelope); jsonErr == nil && envelope.Error != "" {
			message = envelope.Error
		}
		return nil, &APIError{
			Kind:       ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	return responseBody, nil
}

func (c *BaseClient) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodGet, endpoint, nil)
}

// PostJSON marshals payload and issues a POST with a JSON content type.
func (c *BaseClient) PostJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.MakeRequest(ctx, http.MethodPost, endpoint, body)
}
