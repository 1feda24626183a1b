package ledgerclient

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials selects between a client-credentials grant and a static access token.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	AccessToken  string
	Scopes       []string
}

// TokenSource returns a caching oauth2 token source. Connection onboarding happens
// elsewhere; this only keeps an existing grant fresh.
func (c Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if strings.TrimSpace(c.TokenURL) != "" && strings.TrimSpace(c.ClientID) != "" {
		cfg := clientcredentials.Config{
			ClientID:     strings.TrimSpace(c.ClientID),
			ClientSecret: strings.TrimSpace(c.ClientSecret),
			TokenURL:     strings.TrimSpace(c.TokenURL),
			Scopes:       c.Scopes,
		}
		return cfg.TokenSource(ctx), nil
	}
	if token := strings.TrimSpace(c.AccessToken); token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
	}
	return nil, ErrMissingCredentials
}

// newHTTPClient builds an authorized client; base may be nil.
func newHTTPClient(ctx context.Context, creds Credentials, base *http.Client, timeout time.Duration) (*http.Client, error) {
	if base == nil {
		base = &http.Client{}
	}
	// the token endpoint is called through the same base transport
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	ts, err := creds.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return client, nil
}
