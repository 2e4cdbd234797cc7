package openai

import (
	"context"
	"errors"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/recallkit/recallkit-go/pkg/ledger"
	"github.com/recallkit/recallkit-go/pkg/retry"
)

// ProviderName is the key under which token usage is recorded in the ledger.
const ProviderName = "openai"

// Client is an OpenAI embedding client.
// It implements the embedder.Provider interface, retries failed calls under
// a bounded policy, and reports token usage to an optional ledger.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	retry      retry.Policy
	ledger     *ledger.Ledger
}

// Config is the configuration for the OpenAI embedding client.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the embedding model name (default: "text-embedding-3-large").
	Model string

	// BaseURL overrides the API base URL (default: OpenAI official address).
	BaseURL string

	// Dimensions is the vector dimension (default: 3072 for
	// text-embedding-3-large).
	Dimensions int

	// Retry is the retry policy for embedding calls
	// (default: 3 attempts, fixed short delay).
	Retry retry.Policy

	// Ledger receives provider-reported token usage (optional).
	Ledger *ledger.Ledger
}

// NewClient creates a new OpenAI embedding client.
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
		model = string(openai.LargeEmbedding3)
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 3072 // text-embedding-3-large default dimension
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 3
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
		retry:      policy,
		ledger:     cfg.Ledger,
	}, nil
}

// Embed converts text into a single vector.
//
// If the provider splits the embedding across multiple data chunks, the
// chunks are concatenated in index order. The provider-reported token count
// is added to the ledger on every successful call.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	return retry.Do(ctx, c.retry, func(ctx context.Context) ([]float64, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: c.model,
		})
		if err != nil {
			return nil, err
		}

		if len(resp.Data) == 0 {
			return nil, errors.New("embedding generation failed: no data returned from OpenAI API")
		}

		if c.ledger != nil {
			c.ledger.AddTokens(ProviderName, int64(resp.Usage.TotalTokens))
		}

		data := make([]openai.Embedding, len(resp.Data))
		copy(data, resp.Data)
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		var embedding []float64
		for _, chunk := range data {
			for _, v := range chunk.Embedding {
				embedding = append(embedding, float64(v))
			}
		}

		return embedding, nil
	})
}

// Dimensions returns the vector dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close closes the client connection.
// The OpenAI SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
