package harness

import "github.com/choiros/core/internal/coreconfig"

// ConfigFor builds a harness Config for profile from the core's
// resolved configuration (spec §4.C.2). allowedTools, when non-nil,
// further restricts the adapter's own allow-list; pass nil for no
// additional restriction.
func ConfigFor(profile Profile, cfg coreconfig.Config, allowedTools map[string]bool) Config {
	return Config{
		Profile:      profile,
		MaxSteps:     cfg.MaxStepsFor(string(profile)),
		CallTimeout:  cfg.CallTimeout(),
		AllowedTools: allowedTools,
	}
}
