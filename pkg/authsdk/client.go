package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to a comma-auth deployment on behalf of a downstream
// application.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client with a 10 second request timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Verify asks the service to validate bearer. An invalid token is not an
// error: the result has Valid=false. Errors mean the service could not
// answer.
func (c *Client) Verify(ctx context.Context, bearer string) (*TokenValidation, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/verify", nil, bearer)
	if err != nil {
		return nil, err
	}

	var v TokenValidation
	if err := decodeJSON(resp, &v, http.StatusOK); err != nil {
		return nil, err
	}
	return &v, nil
}

// SendOTP starts a step-up verification for phone.
func (c *Client) SendOTP(ctx context.Context, bearer, phone string) (*OTPSendResponse, error) {
	body, err := jsonBody(OTPSendRequest{PhoneNumber: phone})
	if err != nil {
		return nil, err
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/otp/send", body, bearer)
	if err != nil {
		return nil, err
	}

	var out OTPSendResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP completes a step-up and returns the upgraded token pair.
func (c *Client) VerifyOTP(ctx context.Context, bearer, phone, code string) (*TokenResponse, error) {
	body, err := jsonBody(OTPVerifyRequest{PhoneNumber: phone, Code: code})
	if err != nil {
		return nil, err
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/otp/verify", body, bearer)
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetHealth checks the public health endpoint.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}

func jsonBody(v any) (*bytes.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return bytes.NewReader(b), nil
}
