package providers

import (
	"fmt"

	"github.com/modgate/modgate/pkg/config"
)

// CreateProvider selects the backend variant once at startup. There is no
// runtime switching; the pipeline holds a single Provider for its lifetime.
func CreateProvider(cfg *config.Config) (Provider, error) {
	p := cfg.Provider
	switch p.Name {
	case config.ProviderOpenRouter:
		return NewOpenRouter(p.APIKey, p.APIBase, p.Referrer, p.Title), nil
	case config.ProviderOpenAI:
		return NewOpenAI(p.APIKey, p.APIBase), nil
	case config.ProviderAnthropic:
		return NewAnthropic(p.APIKey, p.APIBase), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Name)
	}
}
