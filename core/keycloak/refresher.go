package keycloak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrRefreshFailed is the opaque outcome of any failed refresh attempt.
// The provider's error body is never parsed for detail; callers react to
// the failure, not its cause.
var ErrRefreshFailed = errors.New("token refresh failed")

// Client talks to a single Keycloak realm: token refresh, discovery
// probe, logout and authorization-code URLs.
type Client struct {
	issuer       string
	clientID     string
	clientSecret string
	http         *http.Client
}

func NewClient(issuer, clientID, clientSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		issuer:       strings.TrimRight(issuer, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

func (c *Client) Issuer() string { return c.issuer }

func (c *Client) tokenEndpoint() string {
	return c.issuer + "/protocol/openid-connect/token"
}

// TokenSet is the refreshed token triple. RefreshToken carries the prior
// value when the provider omits a rotated one.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Refresh exchanges the refresh token for a new token set. Any transport
// error or non-2xx status collapses into ErrRefreshFailed.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := decodeJSON(resp.Body, &tr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrRefreshFailed)
	}
	out := &TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// Discover probes the realm's OIDC discovery document. Used for health
// reporting only; the response body is not interpreted.
func (c *Client) Discover(ctx context.Context) error {
	u := c.issuer + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("discovery unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discovery status %d", resp.StatusCode)
	}
	return nil
}

// LogoutURL builds the front-channel logout URL that ends the provider
// session and returns the browser to redirectURI.
func (c *Client) LogoutURL(redirectURI string) string {
	q := url.Values{
		"client_id":                {c.clientID},
		"post_logout_redirect_uri": {redirectURI},
	}
	return c.issuer + "/protocol/openid-connect/logout?" + q.Encode()
}

// OAuthConfig returns the authorization-code flow config for the login
// redirect and callback exchange.
func (c *Client) OAuthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.issuer + "/protocol/openid-connect/auth",
			TokenURL: c.tokenEndpoint(),
		},
	}
}
