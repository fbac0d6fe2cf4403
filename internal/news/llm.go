// Package news generates AI "news" articles narrating completed tasks and
// applies the one-time price boost they carry.
package news

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"habitstock/pkg/utils"
)

// LLMClient defines the interface for text generation.
type LLMClient interface {
	// CompleteWithSystem sends a prompt with a system message and returns
	// the response text.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient implements LLMClient using the OpenAI API. Calls go through
// a circuit breaker so repeated API failures fall back to template articles
// quickly instead of stalling every generation on a dead endpoint.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	breaker *utils.Breaker
}

// NewOpenAIClient creates a new OpenAI LLM client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		model:   model,
		breaker: utils.NewBreaker(utils.DefaultBreakerConfig()),
	}
}

// CompleteWithSystem sends a prompt with system message to the LLM.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var content string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		if err != nil {
			return fmt.Errorf("openai completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from openai")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}
