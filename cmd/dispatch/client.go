package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiClient is a thin JSON client for the daemon's admin API.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends a request and decodes the JSON response into out (when non-nil).
// Error responses surface the server's message, including validation
// violations, so the operator sees exactly what to fix.
func (c *apiClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling dispatch daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out interface{}) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *apiClient) getText(path string) (string, error) {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("calling dispatch daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeAPIError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	return string(data), err
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error      string   `json:"error"`
		Violations []string `json:"violations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if len(body.Violations) > 0 {
		return fmt.Errorf("%s:\n  - %s", body.Error, strings.Join(body.Violations, "\n  - "))
	}
	return fmt.Errorf("%s", body.Error)
}
