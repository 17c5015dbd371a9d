// Package llm wraps the OpenAI-compatible model service (llama.cpp in the
// reference deployment) behind a small synchronous client.
//
// Every call is blocking, carries an explicit timeout, and is rate limited.
// Connection refusal and timeouts map to ErrUnavailable so callers can treat
// "service not ready" uniformly: the turn is aborted and the operator may
// retry manually.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"
)

// ErrUnavailable indicates the model service refused the connection or timed
// out. The turn is aborted without state mutation; not retried automatically.
var ErrUnavailable = errors.New("model service unavailable")

// ErrEmptyResponse indicates the model returned no usable output.
var ErrEmptyResponse = errors.New("model returned empty response")

// Message roles for role-tagged prompt sequences.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a model prompt.
type Message struct {
	Role    string
	Content string
}

// Request is a single chat invocation: one call per turn, no retry loop.
type Request struct {
	Messages    []Message
	MaxTokens   int64
	Temperature float64
}

// Config configures the client.
type Config struct {
	// BaseURL is the service root (e.g. http://localhost:8080); the OpenAI
	// compatibility prefix /v1 is appended here.
	BaseURL string

	// Model is the chat model identifier. llama.cpp ignores it but the
	// protocol requires one.
	Model string

	// EmbedderModel is the embedding model identifier.
	EmbedderModel string

	// Timeout bounds each call. Explicit, not a library default.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client is a synchronous client for chat and embedding calls.
type Client struct {
	client     openai.Client
	model      string
	embedModel string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a Client. The reference deployment requires no API key; the
// SDK demands a non-empty one, so a placeholder is supplied.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: openai.NewClient(
			option.WithBaseURL(cfg.BaseURL+"/v1"),
			option.WithAPIKey("not-needed"),
		),
		model:      cfg.Model,
		embedModel: cfg.EmbedderModel,
		timeout:    cfg.Timeout,
		// Proactive limit keeps a misbehaving loop from hammering the
		// single local inference server.
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		logger:  logger,
	}
}

// Chat sends one role-tagged message sequence and returns the generated text.
func (c *Client) Chat(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(req.MaxTokens)
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return "", c.classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("chat completion",
		"messages", len(req.Messages),
		"duration", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text, satisfying knowledge.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, c.classify(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResponse
	}

	raw := resp.Data[0].Embedding
	embedding := make([]float32, len(raw))
	for i, v := range raw {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// Ping verifies the service is reachable with a minimal completion, so a
// misconfigured endpoint fails at startup instead of mid-conversation.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Chat(ctx, Request{
		Messages:  []Message{{Role: RoleUser, Content: "Hello"}},
		MaxTokens: 5,
	})
	if errors.Is(err, ErrEmptyResponse) {
		// Reachable but terse; good enough for a connectivity check.
		return nil
	}
	return err
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			result = append(result, openai.SystemMessage(m.Content))
		case RoleAssistant:
			result = append(result, openai.AssistantMessage(m.Content))
		default:
			result = append(result, openai.UserMessage(m.Content))
		}
	}
	return result
}

// classify maps transport-level failures to ErrUnavailable; everything else
// (HTTP errors from the service itself) passes through.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
