package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idecide/pkg/platform/sentinel"
)

// NHSLoginUserInfo is the subset of the NHS login userinfo response the
// consent flow needs to match a citizen to a patient record.
type NHSLoginUserInfo struct {
	Sub        string `json:"sub"`
	NHSNumber  string `json:"nhs_number"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone_number"`
}

// NHSLoginClient exchanges tokens with the NHS login identity provider. An
// alternative to the one-time-code channel: a citizen with an NHS login
// account skips code issuance entirely.
type NHSLoginClient struct {
	baseURL  string
	clientID string
	client   *http.Client
}

func NewNHSLoginClient(baseURL, clientID string) *NHSLoginClient {
	return &NHSLoginClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether an identity provider is configured.
func (c *NHSLoginClient) Enabled() bool {
	return c.baseURL != ""
}

// ExchangeCode swaps an authorization code for an access token.
func (c *NHSLoginClient) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
		"client_id":    {c.clientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("nhs login unreachable: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nhs login token exchange returned %d: %w", resp.StatusCode, sentinel.ErrInvalidState)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	return parsed.AccessToken, nil
}

// UserInfo fetches the citizen's verified identity attributes.
func (c *NHSLoginClient) UserInfo(ctx context.Context, accessToken string) (*NHSLoginUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nhs login unreachable: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("nhs login token rejected: %w", sentinel.ErrInvalidState)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nhs login userinfo returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var info NHSLoginUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo response: %w", err)
	}
	return &info, nil
}
