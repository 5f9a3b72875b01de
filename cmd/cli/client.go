package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultHTTPClient is shared by all commands. Status checks call every
// provider, so the timeout is generous.
var defaultHTTPClient = &http.Client{Timeout: 2 * time.Minute}

type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(base, key string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  key,
		http:    defaultHTTPClient,
	}
}

// do sends the request and decodes a 200 JSON body into dest.
func (c *apiClient) do(method, path string, query url.Values, dest any) (http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return resp.Header, fmt.Errorf("api returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return resp.Header, fmt.Errorf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return resp.Header, fmt.Errorf("invalid response: %w", err)
	}
	return resp.Header, nil
}
