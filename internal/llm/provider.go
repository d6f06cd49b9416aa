// Package llm implements the S3 LLM router: an ordered list of providers
// (primary then fallbacks), each behind its own circuit breaker, with
// retrying, backoff+jitter, and a tolerant multi-shape response parser.
// This is spec.md §4.3's router contract.
package llm

import (
	"context"
	"fmt"
)

// Provider is a single LLM backend: a chat-completion call returning a
// text blob and a token-count estimate. Provider identities are opaque
// strings to the router; concrete selection is configuration (spec §6).
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float32) (text string, tokens int, err error)
}

// EmbeddingProvider is the subset of providers that can also embed text.
// Not every configured chat provider needs to implement this; the router
// picks the first provider that does.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Kind classifies a failure so the router can decide whether to retry
// the same provider or fall through to the next one immediately.
type Kind string

const (
	KindTransient  Kind = "transient"   // network/timeout: retried with backoff
	KindProvider   Kind = "provider"    // rate limit/quota/auth: switch provider now
	KindValidation Kind = "validation"  // parsed output failed schema/content rules
)

// Error wraps a provider failure with its Kind so callers can branch on it.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: provider %s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
