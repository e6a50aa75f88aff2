package terminalpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client represents a terminal provider API client
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new client with the given configuration
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() Config {
	return c.config
}

// Authorize starts a card-present transaction
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	req.MerchantID = c.config.MerchantID

	resp, err := c.doRequest(ctx, http.MethodPost, "transactions/authorize", req)
	if err != nil {
		return nil, fmt.Errorf("failed to make authorize request: %w", err)
	}

	var authResp AuthorizeResponse
	if err := json.Unmarshal(resp, &authResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorize response: %w", err)
	}

	return &authResp, nil
}

// Capture settles an authorized transaction
func (c *Client) Capture(ctx context.Context, req CaptureRequest) (*CaptureResponse, error) {
	req.MerchantID = c.config.MerchantID

	resp, err := c.doRequest(ctx, http.MethodPost, "transactions/capture", req)
	if err != nil {
		return nil, fmt.Errorf("failed to make capture request: %w", err)
	}

	var capResp CaptureResponse
	if err := json.Unmarshal(resp, &capResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capture response: %w", err)
	}

	return &capResp, nil
}

// Status reads the provider-side state of a transaction
func (c *Client) Status(ctx context.Context, transactionID string) (*StatusResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "transactions/"+transactionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to make status request: %w", err)
	}

	var statusResp StatusResponse
	if err := json.Unmarshal(resp, &statusResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status response: %w", err)
	}

	return &statusResp, nil
}

// Void cancels an authorized, uncaptured transaction
func (c *Client) Void(ctx context.Context, req VoidRequest) (*VoidResponse, error) {
	req.MerchantID = c.config.MerchantID

	resp, err := c.doRequest(ctx, http.MethodPost, "transactions/void", req)
	if err != nil {
		return nil, fmt.Errorf("failed to make void request: %w", err)
	}

	var voidResp VoidResponse
	if err := json.Unmarshal(resp, &voidResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal void response: %w", err)
	}

	return &voidResp, nil
}

// doRequest performs an HTTP request against the provider API
func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		reqBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewBuffer(reqBody)
	}

	url := fmt.Sprintf("%s/%s", c.config.BaseURL, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
		}

		errorMsg := fmt.Sprintf("provider error - Status: %d, Code: %s, Message: %s",
			resp.StatusCode, errResp.Code, errResp.Message)

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, errorMsg)
		case http.StatusBadRequest:
			return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, errorMsg)
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrInvalidTransaction, errorMsg)
		case http.StatusPaymentRequired:
			return nil, fmt.Errorf("%w: %s", ErrDeclined, errorMsg)
		default:
			return nil, fmt.Errorf("%w: %s", ErrDeclined, errorMsg)
		}
	}

	return respBody, nil
}
