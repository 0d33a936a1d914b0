package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/iliyamo/auth-service/internal/config"
)

const (
	yandexAuthURL  = "https://oauth.yandex.ru/authorize"
	yandexTokenURL = "https://oauth.yandex.ru/token"
	yandexInfoURL  = "https://login.yandex.ru/info?format=json"
)

// Yandex identifies users by their Yandex ID and uses the account's default
// email.
type Yandex struct {
	conf    *oauth2.Config
	infoURL string
	client  *http.Client
}

func NewYandex(cfg config.ProviderConfig, redirectURL string, client *http.Client) *Yandex {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &Yandex{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  orDefault(cfg.AuthURL, yandexAuthURL),
				TokenURL: orDefault(cfg.TokenURL, yandexTokenURL),
			},
		},
		infoURL: orDefault(cfg.InfoURL, yandexInfoURL),
		client:  client,
	}
}

func (y *Yandex) Name() string { return "yandex" }

func (y *Yandex) AuthCodeURL(state string) string {
	return y.conf.AuthCodeURL(state)
}

type yandexInfo struct {
	ID           string `json:"id"`
	DefaultEmail string `json:"default_email"`
}

func (y *Yandex) Exchange(ctx context.Context, code string) (Profile, error) {
	tok, err := y.conf.Exchange(withClient(ctx, y.client), code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: yandex token: %v", ErrExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.infoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: yandex info request: %v", ErrExchange, err)
	}
	req.Header.Set("Authorization", "OAuth "+tok.AccessToken)
	resp, err := y.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: yandex info: %v", ErrExchange, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Profile{}, fmt.Errorf("%w: yandex info status %d", ErrExchange, resp.StatusCode)
	}

	var info yandexInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Profile{}, fmt.Errorf("%w: decode yandex info: %v", ErrExchange, err)
	}
	if info.ID == "" || info.DefaultEmail == "" {
		return Profile{}, fmt.Errorf("%w: yandex info lacks id or email", ErrExchange)
	}
	return Profile{Provider: y.Name(), Subject: info.ID, Email: info.DefaultEmail}, nil
}
