package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts github.com/sashabaranov/go-openai to Provider.
// Grounded on Tsuchiya2-catchup-feed-backend's OpenAI summarizer: a thin
// ChatCompletion wrapper, generalized here to a router fallback provider
// rather than the sole summarizer.
type OpenAIProvider struct {
	name   string
	client *openai.Client
	model  string
}

func NewOpenAIProvider(name, apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: openai provider %s requires an API key", name)
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{name: name, client: openai.NewClient(apiKey), model: model}, nil
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float32) (string, int, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", 0, &Error{Kind: classifyOpenAIErr(err), Provider: p.name, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", 0, &Error{Kind: KindValidation, Provider: p.name, Err: fmt.Errorf("empty response")}
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", 0, &Error{Kind: KindValidation, Provider: p.name, Err: fmt.Errorf("empty response")}
	}
	return text, resp.Usage.TotalTokens, nil
}

// classifyOpenAIErr distinguishes provider-level failures (rate limit,
// auth, quota) from plain transient network/timeout errors so the router
// can skip straight to the next provider on the former (spec §4.3/§7).
func classifyOpenAIErr(err error) Kind {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.HTTPStatusCode {
		case 401, 403, 429:
			return KindProvider
		}
		if apiErr.Code == "insufficient_quota" {
			return KindProvider
		}
	}
	return KindTransient
}

func asAPIError(err error, target **openai.APIError) bool {
	type apiErrUnwrapper interface{ Unwrap() error }
	for err != nil {
		if apiErr, ok := err.(*openai.APIError); ok {
			*target = apiErr
			return true
		}
		u, ok := err.(apiErrUnwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
