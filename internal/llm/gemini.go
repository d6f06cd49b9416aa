package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider adapts google.golang.org/genai to the Provider and
// EmbeddingProvider interfaces. Grounded on the teacher's internal/llm
// client, generalized from a single hardcoded client into one of N
// ordered router providers.
type GeminiProvider struct {
	name           string
	client         *genai.Client
	model          string
	embeddingModel string
}

// NewGeminiProvider builds a Gemini-backed provider. apiKey must be
// non-empty; callers should skip configuring this provider entirely when
// no credential is present (spec §6: absent credentials disable a
// provider, the router must still work with the remaining ones).
func NewGeminiProvider(name, apiKey, model, embeddingModel string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: gemini provider %s requires an API key", name)
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: creating gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash-latest"
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-004"
	}
	return &GeminiProvider{name: name, client: client, model: model, embeddingModel: embeddingModel}, nil
}

func (p *GeminiProvider) Name() string { return p.name }

func (p *GeminiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float32) (string, int, error) {
	prompt := userPrompt
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + userPrompt
	}
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
	temp := temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if maxTokens > 0 {
		m := int32(maxTokens)
		cfg.MaxOutputTokens = m
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", 0, &Error{Kind: classifyGenaiErr(err), Provider: p.name, Err: err}
	}
	text := resp.Text()
	if text == "" {
		return "", 0, &Error{Kind: KindValidation, Provider: p.name, Err: fmt.Errorf("empty response")}
	}
	tokens := estimateTokens(prompt) + estimateTokens(text)
	return text, tokens, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	resp, err := p.client.Models.EmbedContent(ctx, p.embeddingModel, contents, &genai.EmbedContentConfig{})
	if err != nil {
		return nil, &Error{Kind: classifyGenaiErr(err), Provider: p.name, Err: err}
	}
	if len(resp.Embeddings) == 0 {
		return nil, &Error{Kind: KindValidation, Provider: p.name, Err: fmt.Errorf("empty embedding response")}
	}
	return resp.Embeddings[0].Values, nil
}

// classifyGenaiErr mirrors classifyOpenAIErr: unwrap genai's structured
// REST error and classify auth/quota/rate-limit failures as KindProvider
// so the router fails over immediately instead of burning its retry
// ladder against a provider that cannot succeed.
func classifyGenaiErr(err error) Kind {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403, 429:
			return KindProvider
		}
		switch apiErr.Status {
		case "PERMISSION_DENIED", "UNAUTHENTICATED", "RESOURCE_EXHAUSTED":
			return KindProvider
		}
	}
	return KindTransient
}

func estimateTokens(s string) int {
	return len(s) / 4
}
