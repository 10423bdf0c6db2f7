// Package twitch talks to the Twitch identity service: token validation
// and the device-code authorization grant for terminal clients.
package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	validateURL    = "https://id.twitch.tv/oauth2/validate"
	deviceCodeURL  = "https://id.twitch.tv/oauth2/device"
	deviceTokenURL = "https://id.twitch.tv/oauth2/token"
	deviceGrant    = "urn:ietf:params:oauth:grant-type:device_code"

	// Scopes for reading and writing chat.
	ChatScopes = "chat:read chat:edit"
)

var (
	// ErrTokenInvalid means the identity service rejected the token;
	// the caller should discard any cached copy and re-authorize.
	ErrTokenInvalid = errors.New("token invalid or expired")
	// ErrAuthorizationExpired means the user never approved the device
	// code before it lapsed.
	ErrAuthorizationExpired = errors.New("device authorization expired")
	// ErrAuthorizationDenied means the user declined the request.
	ErrAuthorizationDenied = errors.New("device authorization denied")
)

// Client wraps the identity endpoints for one application.
type Client struct {
	clientID   string
	httpClient *http.Client

	// Endpoint overrides for tests.
	validateURL    string
	deviceCodeURL  string
	deviceTokenURL string
}

// NewClient creates an identity client for the given application ID.
func NewClient(clientID string) *Client {
	return &Client{
		clientID:       clientID,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		validateURL:    validateURL,
		deviceCodeURL:  deviceCodeURL,
		deviceTokenURL: deviceTokenURL,
	}
}

// Validation is the identity service's description of a live token.
type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

// ValidateToken checks a token against the identity service and returns
// the login it belongs to. Returns ErrTokenInvalid on rejection.
func (c *Client) ValidateToken(ctx context.Context, token string) (*Validation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.validateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenInvalid
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validate token: unexpected status %d", resp.StatusCode)
	}

	var validation Validation
	if err := json.NewDecoder(resp.Body).Decode(&validation); err != nil {
		return nil, fmt.Errorf("decode validation: %w", err)
	}
	return &validation, nil
}

// DeviceCode is an in-progress device authorization.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// StartDeviceFlow requests a device code. The caller shows UserCode and
// VerificationURI to the user, then polls with WaitForDeviceToken.
func (c *Client) StartDeviceFlow(ctx context.Context, scopes string) (*DeviceCode, error) {
	form := url.Values{
		"client_id": {c.clientID},
		"scopes":    {scopes},
	}

	resp, err := c.postForm(ctx, c.deviceCodeURL, form)
	if err != nil {
		return nil, fmt.Errorf("start device flow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("start device flow: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var code DeviceCode
	if err := json.NewDecoder(resp.Body).Decode(&code); err != nil {
		return nil, fmt.Errorf("decode device code: %w", err)
	}
	if code.Interval <= 0 {
		code.Interval = 5
	}
	return &code, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
}

// WaitForDeviceToken polls the token endpoint until the user approves
// the device code, it expires, or the context is cancelled.
func (c *Client) WaitForDeviceToken(ctx context.Context, code *DeviceCode) (string, error) {
	interval := time.Duration(code.Interval) * time.Second
	deadline := time.Now().Add(time.Duration(code.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}

		if time.Now().After(deadline) {
			return "", ErrAuthorizationExpired
		}

		token, err := c.pollDeviceToken(ctx, code.DeviceCode)
		if err == nil {
			return token, nil
		}
		if errors.Is(err, errAuthorizationPending) {
			continue
		}
		return "", err
	}
}

var errAuthorizationPending = errors.New("authorization pending")

func (c *Client) pollDeviceToken(ctx context.Context, deviceCode string) (string, error) {
	form := url.Values{
		"client_id":   {c.clientID},
		"device_code": {deviceCode},
		"grant_type":  {deviceGrant},
	}

	resp, err := c.postForm(ctx, c.deviceTokenURL, form)
	if err != nil {
		return "", fmt.Errorf("poll device token: %w", err)
	}
	defer resp.Body.Close()

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	if resp.StatusCode == http.StatusOK && result.AccessToken != "" {
		return result.AccessToken, nil
	}

	switch result.Message {
	case "authorization_pending":
		return "", errAuthorizationPending
	case "expired_token":
		return "", ErrAuthorizationExpired
	case "access_denied", "authorization_declined":
		return "", ErrAuthorizationDenied
	default:
		return "", fmt.Errorf("poll device token: status %d: %s", resp.StatusCode, result.Message)
	}
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.httpClient.Do(req)
}
