// Package genai implements the client for the external text-completion API
// used by the tutor chat. The client layers a rate limiter, a circuit
// breaker and retry around plain HTTP; the chat service treats it as an
// opaque prompt-in, text-out box.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/observability"
	"github.com/mathrunner-hub/mathrunner-stats-hub/pkg/circuitbreaker"
	"github.com/mathrunner-hub/mathrunner-stats-hub/pkg/retry"
)

// Message is one prior turn handed to Complete.
type Message struct {
	Role string // "user" or "model"
	Text string
}

// Completer is the interface the chat service consumes.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message, prompt string) (string, error)
}

// Config holds client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	RequestTimeout    time.Duration
	RequestsPerMinute int
	MaxOutputTokens   int
	Temperature       float64
}

// DefaultConfig returns production defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
		APIKey:            apiKey,
		Model:             "gemini-1.5-flash",
		RequestTimeout:    20 * time.Second,
		RequestsPerMinute: 30,
		MaxOutputTokens:   512,
		Temperature:       0.7,
	}
}

// Client calls the completion API.
type Client struct {
	config  Config
	http    *http.Client
	limiter *RateLimiter
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// New creates a client.
func New(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		config:  config,
		http:    &http.Client{Timeout: config.RequestTimeout},
		limiter: NewRateLimiter(config.RequestsPerMinute),
		logger:  logger,
	}
	c.breaker = circuitbreaker.CompletionAPIBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit state changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})
	return c
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, system string, history []Message, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req := c.buildRequest(system, history, prompt)

	var text string
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var innerErr error
		text, innerErr = retry.DoWithData(ctx, func(ctx context.Context) (string, error) {
			return c.generate(ctx, req)
		},
			retry.WithMaxAttempts(2),
			retry.WithInitialDelay(500*time.Millisecond),
		)
		return innerErr
	})

	if err != nil {
		observability.CompletionRequests.WithLabelValues("error").Inc()
		if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyProbes) {
			return "", shared.ErrCompletionUnavailable
		}
		return "", err
	}
	observability.CompletionRequests.WithLabelValues("ok").Inc()
	return text, nil
}

func (c *Client) buildRequest(system string, history []Message, prompt string) GenerateRequest {
	contents := make([]Content, 0, len(history)+1)
	for _, m := range history {
		role := m.Role
		if role != "model" {
			role = "user"
		}
		contents = append(contents, Content{Role: role, Parts: []Part{{Text: m.Text}}})
	}
	contents = append(contents, Content{Role: "user", Parts: []Part{{Text: prompt}}})

	req := GenerateRequest{
		Contents: contents,
		GenerationConfig: &GenerationConfig{
			MaxOutputTokens: c.config.MaxOutputTokens,
			Temperature:     c.config.Temperature,
		},
	}
	if system != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}
	return req
}

func (c *Client) generate(ctx context.Context, genReq GenerateRequest) (string, error) {
	body, err := json.Marshal(genReq)
	if err != nil {
		return "", retry.Stop(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.config.BaseURL, c.config.Model, c.config.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", retry.Stop(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", shared.ErrCompletionRateLimited
	case resp.StatusCode >= 500:
		return "", shared.ErrCompletionUnavailable
	case resp.StatusCode >= 400:
		// Client errors do not heal on retry.
		return "", retry.Stop(shared.WrapError("genai", "Complete", shared.ErrExternalService,
			fmt.Sprintf("status %d", resp.StatusCode), errors.New(string(data))))
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(data, &genResp); err != nil {
		return "", retry.Stop(shared.ErrCompletionBadResponse)
	}
	if genResp.Error != nil {
		return "", retry.Stop(shared.WrapError("genai", "Complete", shared.ErrExternalService,
			genResp.Error.Message, nil))
	}

	text := genResp.Text()
	if text == "" {
		return "", shared.ErrCompletionBadResponse
	}
	return text, nil
}
