package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	apiIDToken = "au10001"
	tokenPath  = "/oauth2/token"

	// tokenSlack refreshes ahead of the reported expiry.
	tokenSlack = 5 * time.Minute
)

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	SecretKey string `json:"secretkey"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresDt string `json:"expires_dt"`
}

// ensureToken returns a valid access token, fetching a fresh one when the
// cached token is missing or near expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpires.Add(-tokenSlack)) {
		return c.token, nil
	}

	body, err := c.doRequest(ctx, tokenPath, apiIDToken, tokenRequest{
		GrantType: "client_credentials",
		AppKey:    c.appKey,
		SecretKey: c.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal token response: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("fetch token: empty token in response")
	}

	c.token = resp.Token
	c.tokenExpires = parseExpiry(resp.ExpiresDt)
	c.logger.Info("broker token refreshed", "expires", c.tokenExpires.Format(time.RFC3339))
	return c.token, nil
}

// parseExpiry reads the broker's YYYYMMDDHHMMSS expiry in exchange-local
// time. An unparsable value falls back to a conservative 12 hours.
func parseExpiry(s string) time.Time {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("20060102150405", s, loc)
	if err != nil {
		return time.Now().Add(12 * time.Hour)
	}
	return t
}
