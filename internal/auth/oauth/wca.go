package oauth

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

// DefaultBaseURL is the public WCA website.
const DefaultBaseURL = "https://www.worldcubeassociation.org"

// ErrPersonNotFound is returned when the WCA has no person with the given id.
var ErrPersonNotFound = errors.New("wca person not found")

// WCAConfig holds the OAuth application registered with the WCA.
type WCAConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// WCAClient handles OAuth 2.0 sign-in with the WCA and the public persons API.
type WCAClient struct {
	config     WCAConfig
	httpClient *http.Client
}

// Profile is the signed-in account returned by /api/v0/me.
type Profile struct {
	ID             int64
	WCAID          string
	Name           string
	Email          string
	AvatarURL      string
	DelegateStatus string
	CountryISO2    string
}

// IsDelegate reports whether the WCA lists the account with any delegate status.
func (p Profile) IsDelegate() bool {
	return strings.TrimSpace(p.DelegateStatus) != ""
}

// Person is a public WCA competitor record.
type Person struct {
	WCAID       string
	Name        string
	AvatarURL   string
	CountryISO2 string
}

type avatar struct {
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url"`
}

// NewWCAClient creates a WCA client with appropriate timeouts.
func NewWCAClient(config WCAConfig) *WCAClient {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &WCAClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GenerateAuthURL creates the authorization URL for the sign-in redirect.
func (c *WCAClient) GenerateAuthURL(state string) string {
	params := url.Values{
		"client_id":     {c.config.ClientID},
		"redirect_uri":  {c.config.CallbackURL},
		"response_type": {"code"},
		"scope":         {"public email"},
		"state":         {state},
	}
	return c.config.BaseURL + "/oauth/authorize?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for an access token.
func (c *WCAClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {c.config.CallbackURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/oauth/token", strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("WCA OAuth error: %s - %s", tokenResp.Error, tokenResp.ErrorDesc)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("no access token in response")
	}
	return tokenResp.AccessToken, nil
}

// FetchProfile retrieves the signed-in account.
func (c *WCAClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var payload struct {
		Me struct {
			ID             int64   `json:"id"`
			WCAID          string  `json:"wca_id"`
			Name           string  `json:"name"`
			Email          string  `json:"email"`
			Avatar         avatar  `json:"avatar"`
			DelegateStatus *string `json:"delegate_status"`
			CountryISO2    string  `json:"country_iso2"`
		} `json:"me"`
	}
	status, err := c.getJSON(ctx, "/api/v0/me", accessToken, &payload)
	if err != nil {
		return nil, fmt.Errorf("fetch WCA profile: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch WCA profile: unexpected status %d", status)
	}
	me := payload.Me
	if me.WCAID == "" {
		return nil, fmt.Errorf("fetch WCA profile: account has no WCA id")
	}

	profile := &Profile{
		ID:          me.ID,
		WCAID:       me.WCAID,
		Name:        me.Name,
		Email:       me.Email,
		AvatarURL:   me.Avatar.ThumbURL,
		CountryISO2: me.CountryISO2,
	}
	if profile.AvatarURL == "" {
		profile.AvatarURL = me.Avatar.URL
	}
	if me.DelegateStatus != nil {
		profile.DelegateStatus = *me.DelegateStatus
	}
	return profile, nil
}

// FetchPerson looks up a public WCA person by WCA id.
func (c *WCAClient) FetchPerson(ctx context.Context, wcaID string) (*Person, error) {
	wcaID = strings.ToUpper(strings.TrimSpace(wcaID))
	if wcaID == "" {
		return nil, ErrPersonNotFound
	}

	var payload struct {
		Person struct {
			WCAID       string `json:"wca_id"`
			Name        string `json:"name"`
			Avatar      avatar `json:"avatar"`
			CountryISO2 string `json:"country_iso2"`
		} `json:"person"`
	}
	status, err := c.getJSON(ctx, "/api/v0/persons/"+url.PathEscape(wcaID), "", &payload)
	if err != nil {
		return nil, fmt.Errorf("fetch WCA person %s: %w", wcaID, err)
	}
	if status == http.StatusNotFound || (status == http.StatusOK && payload.Person.WCAID == "") {
		return nil, ErrPersonNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch WCA person %s: unexpected status %d", wcaID, status)
	}

	return &Person{
		WCAID:       payload.Person.WCAID,
		Name:        payload.Person.Name,
		AvatarURL:   payload.Person.Avatar.URL,
		CountryISO2: payload.Person.CountryISO2,
	}, nil
}

// getJSON decodes a 200 response into out and returns the status code.
func (c *WCAClient) getJSON(ctx context.Context, path, accessToken string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
