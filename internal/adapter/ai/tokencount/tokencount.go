// Package tokencount provides token counting for prompt budgeting and for
// token-aware document chunking at ingestion time. It wraps tiktoken-go, the
// Go port of OpenAI's tokenizer.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens per model. Encodings are cached after first use.
// Safe for concurrent use.
type Counter struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	name := normalizeModelName(model)

	c.mu.RLock()
	enc, ok := c.encodings[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// cl100k_base covers GPT-4, GPT-3.5-turbo, and the embedding models.
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model), slog.Any("error", err))
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return nil, err
		}
	}
	c.encodings[name] = enc
	return enc, nil
}

// normalizeModelName maps provider model IDs onto names tiktoken knows.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.Contains(model, "embedding"):
		return "text-embedding-3-small"
	default:
		return "gpt-4"
	}
}

// CountTokens returns the number of tokens in text for the given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encodingFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts tokens for a two-message chat completion request,
// including the per-message framing overhead of OpenAI-compatible APIs.
func (c *Counter) CountChatTokens(systemPrompt, userPrompt, model string) (int, error) {
	enc, err := c.encodingFor(model)
	if err != nil {
		return 0, err
	}
	// 3 tokens per message plus 1 for the role, per the OpenAI counting
	// cookbook; every reply is primed with 3 more.
	n := 3
	for _, msg := range []struct{ role, content string }{
		{"system", systemPrompt},
		{"user", userPrompt},
	} {
		n += 4
		n += len(enc.Encode(msg.role, nil, nil))
		n += len(enc.Encode(msg.content, nil, nil))
	}
	return n, nil
}

// TruncateToBudget cuts text to at most maxTokens tokens for the model. The
// original text is returned when it already fits or when encoding fails.
func (c *Counter) TruncateToBudget(text, model string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	enc, err := c.encodingFor(model)
	if err != nil {
		slog.Warn("token truncation unavailable", slog.String("model", model), slog.Any("error", err))
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}

// SplitByTokens splits text into chunks of at most chunkTokens tokens with
// overlap tokens shared between consecutive chunks. Used when chunking
// extracted document text before embedding.
func (c *Counter) SplitByTokens(text, model string, chunkTokens, overlap int) []string {
	if text == "" || chunkTokens <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= chunkTokens {
		overlap = 0
	}
	enc, err := c.encodingFor(model)
	if err != nil {
		slog.Warn("token splitting unavailable, using whole text", slog.String("model", model), slog.Any("error", err))
		return []string{text}
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= chunkTokens {
		return []string{text}
	}
	step := chunkTokens - overlap
	chunks := make([]string, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := start + chunkTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
