package config

// OAuthConfig carries the credentials of every supported social login
// provider. A provider with an empty client id is left unregistered.
type OAuthConfig struct {
	StateTTLSeconds int            `env:"STATE_TTL_SECONDS" envDefault:"300"`
	Yandex          ProviderConfig `envPrefix:"YANDEX_"`
	VK              ProviderConfig `envPrefix:"VK_"`
}

// ProviderConfig holds the client registration for a single provider.
// Endpoint URLs default to the provider's public endpoints and are only
// overridden in tests or behind a proxy.
type ProviderConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	InfoURL      string   `env:"INFO_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Enabled reports whether the provider has credentials configured.
func (p ProviderConfig) Enabled() bool { return p.ClientID != "" }
