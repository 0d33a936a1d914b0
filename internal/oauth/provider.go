// Package oauth federates logins through external OAuth 2.0 providers and
// links provider identities to local accounts.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrExchange wraps every failure talking to a provider.
var ErrExchange = errors.New("oauth exchange failed")

// Profile is the provider identity returned by a successful code exchange.
type Profile struct {
	Provider string
	Subject  string
	Email    string
}

// Provider is one federated identity source.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Profile, error)
}

// CallbackURL is where a provider redirects the browser after consent.
func CallbackURL(publicBaseURL, provider string) string {
	return strings.TrimRight(publicBaseURL, "/") + "/v1/oauth-callback/" + provider
}

// withClient makes x/oauth2 use client for token requests.
func withClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
