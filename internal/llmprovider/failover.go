package llmprovider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/choiros/core/internal/backoff"
)

// FailoverConfig configures FailoverProvider's retry and circuit-breaker
// behavior, grounded on internal/agent/failover.go's FailoverConfig.
// Retry timing is delegated to internal/backoff's jittered exponential
// policy rather than a hand-rolled doubling loop.
type FailoverConfig struct {
	MaxRetries              int
	Backoff                 backoff.BackoffPolicy
	FailoverOnRateLimit     bool
	FailoverOnServerError   bool
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// DefaultFailoverConfig returns sensible defaults for failover.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:              2,
		Backoff:                 backoff.DefaultPolicy(),
		FailoverOnRateLimit:     true,
		FailoverOnServerError:   true,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

type providerState struct {
	failures      int
	lastFailure   time.Time
	circuitOpen   bool
	circuitOpenAt time.Time
}

func (s *providerState) isAvailable(cfg FailoverConfig) bool {
	if !s.circuitOpen {
		return true
	}
	return time.Since(s.circuitOpenAt) > cfg.CircuitBreakerTimeout
}

// FailoverProvider composes multiple LLMProviders behind one LLMProvider,
// retrying each with exponential backoff and tripping a per-provider
// circuit breaker before moving to the next. Grounded on
// internal/agent/failover.go's FailoverOrchestrator.
type FailoverProvider struct {
	providers []LLMProvider
	config    FailoverConfig

	mu     sync.Mutex
	states map[string]*providerState
}

// NewFailoverProvider constructs a FailoverProvider trying providers in
// the given order. The first provider is treated as primary.
func NewFailoverProvider(cfg FailoverConfig, providers ...LLMProvider) (*FailoverProvider, error) {
	if len(providers) == 0 {
		return nil, errors.New("llmprovider: failover requires at least one provider")
	}
	if cfg.MaxRetries <= 0 && cfg.Backoff.InitialMs == 0 {
		cfg = DefaultFailoverConfig()
	}
	return &FailoverProvider{
		providers: providers,
		config:    cfg,
		states:    make(map[string]*providerState),
	}, nil
}

// Name implements LLMProvider.
func (f *FailoverProvider) Name() string { return "failover" }

// SupportsTools implements LLMProvider, true if every composed provider supports tools.
func (f *FailoverProvider) SupportsTools() bool {
	for _, p := range f.providers {
		if !p.SupportsTools() {
			return false
		}
	}
	return true
}

// Models implements LLMProvider, returning the primary provider's models.
func (f *FailoverProvider) Models() []Model {
	return f.providers[0].Models()
}

// Complete implements LLMProvider with failover across composed providers.
func (f *FailoverProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	var lastErr error

	for _, provider := range f.providers {
		state := f.getOrCreateState(provider.Name())
		if !state.isAvailable(f.config) {
			continue
		}

		result, err := f.tryProvider(ctx, provider, req)
		if err == nil {
			f.recordSuccess(provider.Name())
			return result, nil
		}

		lastErr = err
		f.recordFailure(provider.Name(), err)

		if !f.shouldFailover(err) {
			return CompletionResult{}, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("llmprovider: no available providers")
	}
	return CompletionResult{}, lastErr
}

func (f *FailoverProvider) tryProvider(ctx context.Context, provider LLMProvider, req CompletionRequest) (CompletionResult, error) {
	var lastErr error

	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		result, err := provider.Complete(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return CompletionResult{}, err
		}
		if attempt >= f.config.MaxRetries {
			break
		}
		if err := backoff.SleepWithBackoff(ctx, f.config.Backoff, attempt+1); err != nil {
			return CompletionResult{}, err
		}
	}
	return CompletionResult{}, lastErr
}

func (f *FailoverProvider) shouldFailover(err error) bool {
	reason := classifyError(err)
	switch reason {
	case "billing", "auth", "model_unavailable":
		return true
	}
	if f.config.FailoverOnRateLimit && reason == "rate_limit" {
		return true
	}
	if f.config.FailoverOnServerError && reason == "server_error" {
		return true
	}
	return false
}

func isRetryable(err error) bool {
	switch classifyError(err) {
	case "rate_limit", "timeout", "server_error":
		return true
	default:
		return false
	}
}

func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"), strings.Contains(errStr, "429"):
		return "rate_limit"
	case strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "invalid api key"), strings.Contains(errStr, "401"), strings.Contains(errStr, "403"):
		return "auth"
	case strings.Contains(errStr, "billing"), strings.Contains(errStr, "quota"), strings.Contains(errStr, "402"):
		return "billing"
	case strings.Contains(errStr, "model not found"), strings.Contains(errStr, "does not exist"), strings.Contains(errStr, "unavailable"):
		return "model_unavailable"
	case strings.Contains(errStr, "internal server"), strings.Contains(errStr, "502"), strings.Contains(errStr, "503"), strings.Contains(errStr, "504"):
		return "server_error"
	default:
		return "unknown"
	}
}

func (f *FailoverProvider) getOrCreateState(name string) *providerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[name]; ok {
		return s
	}
	s := &providerState{}
	f.states[name] = s
	return s
}

func (f *FailoverProvider) recordSuccess(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[name]; ok {
		s.failures = 0
		s.circuitOpen = false
	}
}

func (f *FailoverProvider) recordFailure(name string, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[name]
	if !ok {
		s = &providerState{}
		f.states[name] = s
	}
	s.failures++
	s.lastFailure = time.Now()
	if s.failures >= f.config.CircuitBreakerThreshold && !s.circuitOpen {
		s.circuitOpen = true
		s.circuitOpenAt = time.Now()
	}
}
