package sharelink

// target is a fully resolved provider, credential and model.
type target struct {
	provider ProviderName
	auth     Auth
	model    string
}

// resolvePrimary merges explicit call-site values with stored settings.
// Precedence per field: explicit, then stored, then default. stored may be
// nil when the explicit config is complete.
func resolvePrimary(explicit ProviderConfig, stored *Settings) (target, error) {
	var s Settings
	if stored != nil {
		s = *stored
	}

	provider := explicit.Provider
	if provider == "" {
		provider = s.Provider()
	}
	if !provider.Valid() {
		return target{}, &ConfigurationError{Provider: provider, Err: ErrUnknownProvider}
	}

	key := explicit.APIKey
	if key == "" {
		key = s.APIKey(provider)
	}
	if key == "" {
		return target{}, &ConfigurationError{Provider: provider, Err: ErrMissingAPIKey}
	}

	model := explicit.Model
	if model == "" {
		model = s.Model(provider)
	}

	return target{provider: provider, auth: Auth{APIKey: key}, model: model}, nil
}

// resolveSecondary returns the fallback target for primary. It only comes
// from stored settings; ok is false when no secondary key is stored.
func resolveSecondary(primary ProviderName, stored Settings) (target, bool) {
	alt := primary.Alternate()
	key := stored.APIKey(alt)
	if key == "" {
		return target{}, false
	}
	return target{provider: alt, auth: Auth{APIKey: key}, model: stored.Model(alt)}, true
}
