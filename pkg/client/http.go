// Package client is a Go client for the resilient-engine HTTP API.
package client

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/masa-finance/resilient-engine/api/types"
)

// Client represents a client to interact with the engine server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	options    *Options
}

// NewClient creates a new Client instance.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	options, err := NewOptions(opts...)
	if err != nil {
		return nil, fmt.Errorf("error applying client options: %w", err)
	}

	httpClient := &http.Client{Timeout: options.Timeout}
	if options.ignoreTLSCert {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		options:    options,
	}, nil
}

func (c *Client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		reader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.options.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %s request to %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respErr := types.ErrorResponse{}
		if err := json.Unmarshal(data, &respErr); err == nil && respErr.Error != "" {
			return fmt.Errorf("error: %s", respErr.Error)
		}
		return fmt.Errorf("error: received status code %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("error unmarshaling response: %w", err)
		}
	}
	return nil
}

// Execute runs a tool through its fallback chain and returns the uniform
// result envelope. Check ExecutionResult.Disabled / Failed for the expected
// degradation outcomes; they are not transport errors.
func (c *Client) Execute(tool string, args types.Arguments) (*types.ExecutionResult, error) {
	result := &types.ExecutionResult{}
	if err := c.do(http.MethodPost, "/execute", types.ExecutionRequest{Tool: tool, Arguments: args}, result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetResult re-fetches a recent execution envelope by its uuid.
func (c *Client) GetResult(executionID string) (*types.ExecutionResult, error) {
	result := &types.ExecutionResult{}
	if err := c.do(http.MethodGet, "/execute/"+executionID, nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

// ResetHandler clears the health record of one handler of a tool.
func (c *Client) ResetHandler(tool, handler string) error {
	return c.do(http.MethodPost, "/reset", types.ResetRequest{Tool: tool, Handler: handler}, nil)
}

// HandlerHealth returns the persisted health state for all handlers.
func (c *Client) HandlerHealth() (types.HealthState, error) {
	state := types.HealthState{}
	if err := c.do(http.MethodGet, "/health/handlers", nil, &state); err != nil {
		return nil, err
	}
	return state, nil
}
