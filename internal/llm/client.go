package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/gradepilot/backend/internal/errdefs"
	"github.com/gradepilot/backend/internal/metrics"
	"github.com/gradepilot/backend/pkg/circuitbreaker"
	"github.com/gradepilot/backend/pkg/config"
	"github.com/gradepilot/backend/pkg/logger"
	"github.com/gradepilot/backend/pkg/retry"
)

const gradingSystemPrompt = `You are an experienced teacher grading a student's handwritten answer sheet.
Grade strictly against the provided rubric. Base every remark on the student's
actual answers; do not invent content that is not in the answer sheet.`

// Client is the grading adapter: one chat completion per assembled prompt,
// guarded by a circuit breaker, bounded retries, and a per-call timeout.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(cfg config.LLMConfig) *Client {
	client := openai.NewClient(cfg.APIKey)

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized", zap.String("model", cfg.Model))

	return &Client{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// Grade sends the assembled grading prompt and returns the model's feedback
// verbatim. The output is unstructured prose; nothing here validates that the
// model followed the requested section format.
func (c *Client) Grade(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: gradingSystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		},
	}

	var feedback string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("Grading completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
				return fmt.Errorf("completion has no usable content: %w", errdefs.ErrGradingFailed)
			}

			feedback = resp.Choices[0].Message.Content
			return nil
		})
	})

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("grading call: %w", errdefs.ErrTimeout)
		}
		if errors.Is(err, errdefs.ErrGradingFailed) {
			return "", err
		}
		return "", fmt.Errorf("grading request: %w: %w", err, errdefs.ErrGradingFailed)
	}

	return feedback, nil
}
