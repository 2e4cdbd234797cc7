package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/recallkit/recallkit-go/pkg/ledger"
	"github.com/recallkit/recallkit-go/pkg/llm"
)

// ProviderName is the key under which token usage is recorded in the ledger.
const ProviderName = "openai"

// Client is an OpenAI chat-completion client.
// It implements the llm.Provider interface and reports token usage to an
// optional ledger.
type Client struct {
	client *openai.Client
	model  string
	ledger *ledger.Ledger
}

// Config is the configuration for the OpenAI LLM client.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the chat model to use (default: "gpt-4o-mini").
	Model string

	// BaseURL overrides the API base URL (default: OpenAI official address).
	BaseURL string

	// Ledger receives provider-reported token usage (optional).
	Ledger *ledger.Ledger
}

// NewClient creates a new OpenAI chat-completion client.
//
// Returns an error if the API key is missing. A missing key is a hard
// precondition failure and is never retried.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		ledger: cfg.Ledger,
	}, nil
}

// Generate generates text from a single user prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	messages := []llm.Message{
		{Role: "user", Content: prompt},
	}
	return c.GenerateWithMessages(ctx, messages, opts...)
}

// GenerateWithMessages generates text from a conversation history.
//
// The provider-reported total token count is added to the ledger on every
// successful call.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if c.ledger != nil {
		c.ledger.AddTokens(ProviderName, int64(resp.Usage.TotalTokens))
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm generation failed: no choices returned from OpenAI API")
	}

	return resp.Choices[0].Message.Content, nil
}

// Close closes the client connection.
// The OpenAI SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
