// Package real implements a real AI client backed by an OpenAI-compatible API.
package real

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/observability"
	"github.com/fairyhunter13/msme-loan-scorer/internal/config"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

// Client implements domain.AIClient using OpenAI chat completions and
// embeddings. Rate limits and 5xx responses are retried with exponential
// backoff; 4xx responses are permanent failures.
type Client struct {
	cfg     config.Config
	chatHC  *http.Client
	embedHC *http.Client
}

// New constructs a real AI client. Chat calls get a longer timeout than
// embeddings since plan reviews can take a while to generate.
func New(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		chatHC:  &http.Client{Timeout: 60 * time.Second},
		embedHC: &http.Client{Timeout: 30 * time.Second},
	}
}

// ChatJSON calls the chat completions endpoint and returns the message content.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	payload := map[string]any{
		"model":       c.cfg.ChatModel,
		"temperature": 0.2,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	slog.Info("calling chat completions", slog.String("model", c.cfg.ChatModel), slog.Int("max_tokens", maxTokens))
	if err := c.postJSON(ctx, c.chatHC, "/chat/completions", "chat", payload, &out); err != nil {
		return "", fmt.Errorf("openai chat failed: %w", err)
	}
	if len(out.Choices) == 0 {
		slog.Error("chat completions returned empty choices", slog.String("model", c.cfg.ChatModel))
		return "", errors.New("empty choices from chat completions")
	}
	return out.Choices[0].Message.Content, nil
}

// Embed calls the embeddings endpoint and returns one vector per input text.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if c.cfg.OpenAIAPIKey == "" || c.cfg.EmbeddingsModel == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY or EMBEDDINGS_MODEL missing", domain.ErrInvalidArgument)
	}
	payload := map[string]any{
		"model": c.cfg.EmbeddingsModel,
		"input": texts,
	}
	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	slog.Info("calling embeddings", slog.String("model", c.cfg.EmbeddingsModel), slog.Int("text_count", len(texts)))
	if err := c.postJSON(ctx, c.embedHC, "/embeddings", "embed", payload, &out); err != nil {
		return nil, fmt.Errorf("openai embed failed: %w", err)
	}
	if len(out.Data) == 0 {
		slog.Error("embeddings returned empty data")
		return nil, errors.New("empty data from embeddings")
	}

	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		vecs[i] = v
	}
	return vecs, nil
}

// postJSON posts payload to the given API path and decodes the 2xx response
// into out, retrying transient failures under the configured backoff policy.
func (c *Client) postJSON(ctx domain.Context, hc *http.Client, path, op string, payload, out any) error {
	endpoint := c.cfg.OpenAIBaseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	attempt := func() error {
		start := time.Now()
		// A fresh request per attempt; the body reader is consumed on each try.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(req)
		observability.AIRequestsTotal.WithLabelValues("openai", op).Inc()
		observability.AIRequestDuration.WithLabelValues("openai", op).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("ai provider rate limited",
				slog.String("op", op),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("%w: %s status 429", domain.ErrRateLimited, op)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			slog.Warn("ai provider 4xx",
				slog.String("op", op),
				slog.Int("status", resp.StatusCode),
				slog.String("endpoint", endpoint),
				slog.String("body", bodySnippet(resp.Body)))
			return backoff.Permanent(fmt.Errorf("%s status %d", op, resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			slog.Error("ai provider non-2xx",
				slog.String("op", op),
				slog.Int("status", resp.StatusCode),
				slog.String("endpoint", endpoint),
				slog.String("body", bodySnippet(resp.Body)))
			return fmt.Errorf("%s status %d", op, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			slog.Error("ai provider decode error", slog.String("op", op), slog.Any("error", err))
			return err
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime, expo.InitialInterval, expo.MaxInterval, expo.Multiplier = c.cfg.GetAIBackoffConfig()
	if err := backoff.Retry(attempt, backoff.WithContext(expo, ctx)); err != nil {
		slog.Error("ai request failed after retries", slog.String("op", op), slog.Any("error", err))
		return err
	}
	return nil
}

// bodySnippet reads up to 512 bytes of an error response for log context.
func bodySnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
