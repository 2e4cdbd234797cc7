// Package transcriber converts audio recordings into text using an external
// speech-to-text endpoint.
//
// The request is a multipart encoding carrying the audio bytes, a fixed
// model identifier field, and a language hint; the multipart boundary is a
// fresh random token on every call. Calls are retried under a bounded
// policy, and the HTTP client carries a fixed wall-clock timeout so a
// hanging transport cannot stall a flow indefinitely.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/recallkit/recallkit-go/pkg/retry"
	"github.com/recallkit/recallkit-go/pkg/transport"
)

// DefaultTimeout bounds the total latency of a single transcription attempt.
const DefaultTimeout = 15 * time.Second

// Client is a speech-to-text client for an OpenAI-compatible transcription
// endpoint.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
	retry   retry.Policy
}

// Config contains configuration for creating a transcription client.
type Config struct {
	// APIKey is the provider API key (required).
	APIKey string

	// Model is the transcription model name (default: "whisper-1").
	Model string

	// BaseURL is the API base URL (default: OpenAI official address).
	BaseURL string

	// Timeout is the per-attempt wall-clock timeout (default: DefaultTimeout).
	Timeout time.Duration

	// Retry is the retry policy for transcription calls
	// (default: 3 attempts, fixed short delay).
	Retry retry.Policy

	// HTTPClient is a custom HTTP client (overrides Timeout if set).
	HTTPClient *http.Client
}

// NewClient creates a new transcription client.
//
// Returns an error if the API key is missing. A missing key is a hard
// precondition failure and is never retried.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 3
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		retry:   policy,
	}, nil
}

// Transcribe converts an audio recording into plain text.
//
// The audio bytes are read once and reused across retry attempts. language
// is a hint for the recognizer (e.g. "en") and may be empty.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if filename == "" {
		filename = "recording.m4a"
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.transcribeOnce(ctx, data, filename, language)
	})
}

// transcribeOnce performs a single multipart POST to the transcription
// endpoint.
func (c *Client) transcribeOnce(ctx context.Context, data []byte, filename, language string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	if err := writer.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return "", fmt.Errorf("build multipart body: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/audio/transcriptions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send request: %w", transport.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: API request failed with status %d: %s", transport.ErrTransport, resp.StatusCode, string(respBody))
	}

	var response struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("%w: %w", transport.ErrDecoding, err)
	}

	return response.Text, nil
}
