package llmprovider

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedProvider struct {
	name    string
	err     error
	result  CompletionResult
	calls   int
}

func (p *scriptedProvider) Name() string { return p.name }
func (p *scriptedProvider) Models() []Model { return nil }
func (p *scriptedProvider) SupportsTools() bool { return true }
func (p *scriptedProvider) Complete(context.Context, CompletionRequest) (CompletionResult, error) {
	p.calls++
	if p.err != nil {
		return CompletionResult{}, p.err
	}
	return p.result, nil
}

func fastFailoverConfig() FailoverConfig {
	cfg := DefaultFailoverConfig()
	cfg.Backoff.InitialMs = 1
	cfg.Backoff.MaxMs = 1
	cfg.MaxRetries = 1
	return cfg
}

func TestFailoverProviderFallsOverOnAuthError(t *testing.T) {
	primary := &scriptedProvider{name: "primary", err: errors.New("401 unauthorized")}
	secondary := &scriptedProvider{name: "secondary", result: CompletionResult{Text: "ok"}}

	f, err := NewFailoverProvider(fastFailoverConfig(), primary, secondary)
	if err != nil {
		t.Fatalf("NewFailoverProvider: %v", err)
	}

	result, err := f.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if result.Text != "ok" {
		t.Fatalf("expected fallback result, got %+v", result)
	}
}

func TestFailoverProviderDoesNotFailoverOnInvalidRequest(t *testing.T) {
	primary := &scriptedProvider{name: "primary", err: errors.New("400 invalid request")}
	secondary := &scriptedProvider{name: "secondary", result: CompletionResult{Text: "ok"}}

	f, err := NewFailoverProvider(fastFailoverConfig(), primary, secondary)
	if err != nil {
		t.Fatalf("NewFailoverProvider: %v", err)
	}

	_, err = f.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if secondary.calls != 0 {
		t.Fatalf("expected no failover to secondary, got %d calls", secondary.calls)
	}
}

func TestFailoverProviderRetriesRetryableErrorsBeforeFailingOver(t *testing.T) {
	primary := &scriptedProvider{name: "primary", err: errors.New("503 server error")}
	cfg := fastFailoverConfig()
	cfg.MaxRetries = 2

	f, err := NewFailoverProvider(cfg, primary)
	if err != nil {
		t.Fatalf("NewFailoverProvider: %v", err)
	}

	_, err = f.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error when all providers exhausted")
	}
	if primary.calls != cfg.MaxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxRetries+1, primary.calls)
	}
}

func TestFailoverProviderOpensCircuitAfterThreshold(t *testing.T) {
	primary := &scriptedProvider{name: "primary", err: errors.New("401 unauthorized")}
	secondary := &scriptedProvider{name: "secondary", result: CompletionResult{Text: "ok"}}
	cfg := fastFailoverConfig()
	cfg.CircuitBreakerThreshold = 1
	cfg.CircuitBreakerTimeout = time.Hour

	f, err := NewFailoverProvider(cfg, primary, secondary)
	if err != nil {
		t.Fatalf("NewFailoverProvider: %v", err)
	}

	if _, err := f.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	callsAfterFirst := primary.calls

	if _, err := f.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if primary.calls != callsAfterFirst {
		t.Fatalf("expected circuit open to skip primary, but it was called again (%d -> %d)", callsAfterFirst, primary.calls)
	}
}
