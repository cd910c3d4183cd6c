package hosting

import "fmt"

// NewProviderFunc constructs a Provider for one installation. Registered by
// the github/ and gitlab/ packages at init time, so the factory here never
// imports either concrete implementation and avoids a cycle.
type NewProviderFunc func(cfg Config) (Provider, error)

var providerConstructors = map[ProviderType]NewProviderFunc{}

// RegisterProvider registers a provider constructor. Called from init() in
// provider packages (github/, gitlab/).
func RegisterProvider(providerType ProviderType, constructor NewProviderFunc) {
	providerConstructors[providerType] = constructor
}

// NewProvider builds a Provider for one repository installation. Unlike a
// local CLI tool, the engine is never pointed at a git checkout — the forge
// type is always known from the webhook event or the app installation
// record, so cfg.Provider must name one explicitly.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("provider must be set explicitly (supported: github, gitlab)")
	}
	pt := ProviderType(cfg.Provider)

	constructor, ok := providerConstructors[pt]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (registered: %v)", pt, registeredProviders())
	}

	return constructor(cfg)
}

func registeredProviders() []ProviderType {
	var providers []ProviderType
	for pt := range providerConstructors {
		providers = append(providers, pt)
	}
	return providers
}
