package provider

import "errors"

var (
	ErrProviderNotSupported  = errors.New("provider is not supported")
	ErrProviderNotConfigured = errors.New("no payment provider is configured")
	ErrProviderRejected      = errors.New("payment provider rejected the request")
)

type Registry struct {
	order     []string
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	items := make(map[string]Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, p := range providers {
		if _, dup := items[p.Name()]; !dup {
			order = append(order, p.Name())
		}
		items[p.Name()] = p
	}
	return &Registry{order: order, providers: items}
}

func (r *Registry) Get(name string) (Provider, error) {
	provider, ok := r.providers[name]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return provider, nil
}

// Active returns the first registered provider that is configured.
func (r *Registry) Active() (Provider, error) {
	for _, name := range r.order {
		if p := r.providers[name]; p.Configured() {
			return p, nil
		}
	}
	return nil, ErrProviderNotConfigured
}
