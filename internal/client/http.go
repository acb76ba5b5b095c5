package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"user_consent_gate/internal/consent"
	"user_consent_gate/types"
)

// HTTPClient talks to the consent gate server on behalf of one session.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a client. An empty token makes every request anonymous.
func NewHTTPClient(baseURL, token string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

func (c *HTTPClient) Confirm(ctx context.Context) (string, error) {
	var body types.ConfirmResponse
	if err := c.do(ctx, http.MethodPost, "/user-consent/confirm", &body); err != nil {
		return "", err
	}
	return body.ConfirmedAt, nil
}

// CurrentUser returns the authenticated identity, or nil when the token is
// missing or rejected.
func (c *HTTPClient) CurrentUser(ctx context.Context) (*consent.Identity, error) {
	if c.token == "" {
		return nil, nil
	}

	var body struct {
		CurrentUser types.CurrentUser `json:"current_user"`
	}
	err := c.do(ctx, http.MethodGet, "/session/current.json", &body)
	if errors.Is(err, consent.ErrNotAuthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	identity := consent.Authenticated(body.CurrentUser.ID, "")
	if body.CurrentUser.UserConsentConfirmedAt != nil {
		identity.ConfirmedAt = *body.CurrentUser.UserConsentConfirmedAt
	}
	return &identity, nil
}

func (c *HTTPClient) Policy(ctx context.Context) (consent.Policy, error) {
	var body types.PublicSettings
	if err := c.do(ctx, http.MethodGet, "/user-consent/settings.json", &body); err != nil {
		return consent.Policy{}, err
	}

	return consent.Policy{
		Enabled:      body.Enabled,
		ReaffirmDays: body.ReaffirmDays,
		RedirectURL:  body.RedirectURL,
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("request failed", zap.Error(err), zap.String("path", path))
		return fmt.Errorf("failed to call %s: %w: %w", path, consent.ErrPersistenceUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return consent.ErrFeatureDisabled
	case http.StatusUnauthorized:
		return consent.ErrNotAuthenticated
	default:
		c.logger.Error("unexpected response", zap.Int("status", resp.StatusCode), zap.String("path", path))
		return fmt.Errorf("unexpected status %d from %s: %w", resp.StatusCode, path, consent.ErrPersistenceUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
