package oauth

import (
	"net/http"
	"sort"

	"github.com/iliyamo/auth-service/internal/config"
)

// Registry maps provider names to providers. It is built once at startup
// and only read afterwards.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// NewRegistryFromConfig registers every provider that has a client id.
func NewRegistryFromConfig(cfg config.OAuthConfig, publicBaseURL string, client *http.Client) *Registry {
	var ps []Provider
	if cfg.Yandex.Enabled() {
		ps = append(ps, NewYandex(cfg.Yandex, CallbackURL(publicBaseURL, "yandex"), client))
	}
	if cfg.VK.Enabled() {
		ps = append(ps, NewVK(cfg.VK, CallbackURL(publicBaseURL, "vk"), client))
	}
	return NewRegistry(ps...)
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
