package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/utils"
)

const (
	vkAuthURL  = "https://oauth.vk.com/authorize"
	vkTokenURL = "https://oauth.vk.com/access_token"

	// PlaceholderDomain marks synthesised addresses of VK accounts, which
	// never disclose an email.
	PlaceholderDomain = "vk.placeholder"
)

// VK reads the user id straight from the token response. No profile call
// is made.
type VK struct {
	conf   *oauth2.Config
	client *http.Client
}

func NewVK(cfg config.ProviderConfig, redirectURL string, client *http.Client) *VK {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &VK{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   orDefault(cfg.AuthURL, vkAuthURL),
				TokenURL:  orDefault(cfg.TokenURL, vkTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

func (v *VK) Name() string { return "vk" }

func (v *VK) AuthCodeURL(state string) string {
	return v.conf.AuthCodeURL(state)
}

func (v *VK) Exchange(ctx context.Context, code string) (Profile, error) {
	tok, err := v.conf.Exchange(withClient(ctx, v.client), code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: vk token: %v", ErrExchange, err)
	}
	subject := extraString(tok.Extra("user_id"))
	if subject == "" {
		return Profile{}, fmt.Errorf("%w: vk token response lacks user_id", ErrExchange)
	}
	local, err := utils.RandomString(16)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Provider: v.Name(), Subject: subject, Email: local + "@" + PlaceholderDomain}, nil
}

// extraString renders a raw token response field. JSON numbers arrive as
// float64.
func extraString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}
