package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"assist_server/core/port/out"
	"assist_server/pkg/apperr"
	"assist_server/pkg/httputil"
	"assist_server/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const DefaultModel = "gpt-4o-mini"

type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client is the chat-completion client used for draft generation.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	cb          *gobreaker.CircuitBreaker
}

var _ out.LLMClient = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = httputil.NewOptimizedClient(httputil.OpenAIClientConfig(cfg.Timeout))
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = httpClient

	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openai-chat",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithField("breaker", name).Warn("circuit breaker state changed from %s to %s", from.String(), to.String())
			},
		}),
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, req out.CompletionRequest) (*out.CompletionResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	res, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, apperr.ExternalError("openai", err)
	}

	resp := res.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return nil, apperr.ExternalError("openai", errors.New("completion returned no choices"))
	}

	return &out.CompletionResult{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
