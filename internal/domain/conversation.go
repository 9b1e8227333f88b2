package domain

import "fmt"

// Provider names an upstream LLM provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderDeepSeek Provider = "deepseek"
)

// DefaultProvider is tried first when the caller states no preference.
const DefaultProvider = ProviderGoogle

// Providers lists every supported provider in default preference order.
var Providers = []Provider{ProviderGoogle, ProviderDeepSeek}

// ParseProvider maps a request value to a Provider. The empty string selects
// DefaultProvider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case "":
		return DefaultProvider, nil
	case ProviderGoogle, ProviderDeepSeek:
		return Provider(s), nil
	}
	return "", fmt.Errorf("domain: unknown provider %q", s)
}

// Valid reports whether p names a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderDeepSeek
}

// Alternate returns the provider to fall back to when p yields no reply.
func (p Provider) Alternate() Provider {
	if p == ProviderDeepSeek {
		return ProviderGoogle
	}
	return ProviderDeepSeek
}

// FallbackOrder returns the providers to try for a request preferring p.
func (p Provider) FallbackOrder() [2]Provider {
	return [2]Provider{p, p.Alternate()}
}
