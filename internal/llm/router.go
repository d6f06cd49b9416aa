package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// RetryPolicy controls the primary-provider retry loop and the
// exponential backoff+jitter between attempts (spec §4.3).
type RetryPolicy struct {
	PrimaryAttempts int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{PrimaryAttempts: 3, BaseBackoff: 500 * time.Millisecond, MaxBackoff: 8 * time.Second}
}

// CallMeta describes which provider served a call, after how many
// attempts, and whether a fallback provider was used.
type CallMeta struct {
	Provider     string
	Attempts     int
	FallbackUsed bool
	Tokens       int
}

// Router holds an ordered provider list (primary first, then fallbacks)
// each wrapped in its own circuit breaker, and implements the three
// operations spec.md §4.3 names: Summarize, GenerateText, GenerateTitle.
type Router struct {
	providers []breakerProvider
	retry     RetryPolicy
}

type breakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// NewRouter builds a router over providers in priority order. providers
// must be non-empty and already filtered to those with configured
// credentials (spec §6: a provider with no credentials is simply absent
// from this list, never included-but-disabled).
func NewRouter(providers []Provider, retry RetryPolicy) (*Router, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("llm: router requires at least one configured provider")
	}
	r := &Router{retry: retry}
	for _, p := range providers {
		st := gobreaker.Settings{
			Name:        p.Name(),
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		r.providers = append(r.providers, breakerProvider{provider: p, breaker: gobreaker.NewCircuitBreaker(st)})
	}
	return r, nil
}

// EmbeddingProvider returns the first configured provider that can embed
// text, or nil if none of them implement EmbeddingProvider.
func (r *Router) EmbeddingProvider() EmbeddingProvider {
	for _, bp := range r.providers {
		if ep, ok := bp.provider.(EmbeddingProvider); ok {
			return ep
		}
	}
	return nil
}

// Embed delegates to the first embedding-capable provider.
func (r *Router) Embed(ctx context.Context, text string) ([]float32, error) {
	ep := r.EmbeddingProvider()
	if ep == nil {
		return nil, fmt.Errorf("llm: no configured provider supports embeddings")
	}
	return ep.Embed(ctx, text)
}

// GenerateText runs the prompt through the ordered provider list: up to
// RetryPolicy.PrimaryAttempts attempts against the primary with
// exponential backoff+jitter between attempts, then a single attempt
// against each fallback in order.
func (r *Router) GenerateText(ctx context.Context, systemPrompt, prompt string, maxTokens int, temperature float32) (string, CallMeta, error) {
	var lastErr error
	for i, bp := range r.providers {
		attempts := 1
		if i == 0 {
			attempts = r.retry.PrimaryAttempts
		}
		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 {
				if err := sleepBackoff(ctx, r.retry, attempt); err != nil {
					return "", CallMeta{}, err
				}
			}
			res, err := bp.breaker.Execute(func() (interface{}, error) {
				text, tokens, err := bp.provider.Complete(ctx, systemPrompt, prompt, maxTokens, temperature)
				if err != nil {
					return nil, err
				}
				return callResult{text: text, tokens: tokens}, nil
			})
			if err == nil {
				cr := res.(callResult)
				return cr.text, CallMeta{Provider: bp.provider.Name(), Attempts: attempt + 1, FallbackUsed: i > 0, Tokens: cr.tokens}, nil
			}
			lastErr = err
			if isProviderError(err) {
				break // move to next provider immediately, no more same-provider retries
			}
		}
	}
	return "", CallMeta{}, fmt.Errorf("llm: all providers exhausted: %w", lastErr)
}

type callResult struct {
	text   string
	tokens int
}

func isProviderError(err error) bool {
	var lerr *Error
	if e, ok := err.(*Error); ok {
		lerr = e
	} else {
		return false
	}
	return lerr.Kind == KindProvider
}

func sleepBackoff(ctx context.Context, policy RetryPolicy, attempt int) error {
	backoff := policy.BaseBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > policy.MaxBackoff {
		backoff = policy.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
	wait := backoff/2 + jitter/2
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Summarize runs systemPrompt+userPrompt through GenerateText then parses
// the result into bullets via the tolerant multi-shape chain (parse.go).
// A validation failure (not 3-4 bullets after parsing) is returned as a
// *Error with KindValidation so callers can decide to retry once, per
// spec.md §4.3's summarizer policy.
func (r *Router) Summarize(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float32) ([]string, CallMeta, error) {
	raw, meta, err := r.GenerateText(ctx, systemPrompt, userPrompt, maxTokens, temperature)
	if err != nil {
		return nil, meta, err
	}
	bullets, perr := ParseBullets(raw)
	if perr != nil {
		return nil, meta, &Error{Kind: KindValidation, Provider: meta.Provider, Err: perr}
	}
	return bullets, meta, nil
}

// GenerateTitle is GenerateText with meta-artifact stripping applied to
// the result, since title prompts are especially prone to "Here is a
// title:"-style preambles.
func (r *Router) GenerateTitle(ctx context.Context, systemPrompt, userPrompt string) (string, CallMeta, error) {
	raw, meta, err := r.GenerateText(ctx, systemPrompt, userPrompt, 64, 0.4)
	if err != nil {
		return "", meta, err
	}
	return StripMetaArtifacts(raw), meta, nil
}
