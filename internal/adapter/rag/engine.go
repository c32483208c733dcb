// Package rag adapts the vector store and AI client into the retrieval
// engine port used by the search and generation pipelines.
package rag

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

// VectorStore is the subset of the Qdrant client the engine needs.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int, distance string) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]qdrant.ScoredPoint, error)
}

// DefaultTopK bounds retrieval when the caller does not set one.
const DefaultTopK = 5

const answerSystemPrompt = `You are an MSME lending policy assistant. Answer the question using only the provided policy excerpts. If the excerpts do not cover the question, say so briefly. Do not fabricate references.`

// Engine implements domain.RetrievalEngine over a vector store and AI client.
type Engine struct {
	ai         domain.AIClient
	store      VectorStore
	collection string
	vectorSize int
	maxTokens  int
}

// New constructs an Engine. vectorSize must match the embeddings model
// dimensionality used at ingestion time.
func New(ai domain.AIClient, store VectorStore, collection string, vectorSize int) *Engine {
	return &Engine{
		ai:         ai,
		store:      store,
		collection: collection,
		vectorSize: vectorSize,
		maxTokens:  800,
	}
}

// InitStorages ensures the backing collection exists. Idempotent.
func (e *Engine) InitStorages(ctx domain.Context) error {
	if err := e.store.EnsureCollection(ctx, e.collection, e.vectorSize, "Cosine"); err != nil {
		return fmt.Errorf("op=rag.init: %w", err)
	}
	return nil
}

// Query retrieves policy chunks for query. Local and hybrid modes return a
// list response of scored chunks; naive mode generates a free-text answer
// grounded on the retrieved chunks.
func (e *Engine) Query(ctx domain.Context, query string, p domain.QueryParams) (domain.EngineResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.EngineResponse{}, fmt.Errorf("op=rag.query: %w: empty query", domain.ErrInvalidArgument)
	}
	topK := p.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	points, err := e.search(ctx, query, topK)
	if err != nil {
		return domain.EngineResponse{}, err
	}

	if p.Mode == domain.ModeNaive {
		return e.generate(ctx, query, points)
	}

	items := make([]domain.EngineItem, 0, len(points))
	for _, pt := range points {
		score := pt.Score
		items = append(items, domain.EngineItem{
			Content: pt.Payload.Text,
			Score:   &score,
			Metadata: map[string]any{
				"doc_id":    pt.Payload.DocID,
				"file_path": pt.Payload.FilePath,
			},
			ChunkID: pt.Payload.ChunkID,
		})
	}
	return domain.ListResponse(items), nil
}

func (e *Engine) search(ctx domain.Context, query string, topK int) ([]qdrant.ScoredPoint, error) {
	vecs, err := e.ai.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("op=rag.embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("op=rag.embed: empty embedding response")
	}
	points, err := e.store.Search(ctx, e.collection, vecs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("op=rag.search: %w", err)
	}
	return points, nil
}

func (e *Engine) generate(ctx domain.Context, query string, points []qdrant.ScoredPoint) (domain.EngineResponse, error) {
	var sb strings.Builder
	for i, pt := range points {
		if pt.Payload.Text == "" {
			continue
		}
		fmt.Fprintf(&sb, "[%d] (%s) %s\n\n", i+1, pt.Payload.FilePath, pt.Payload.Text)
	}
	if sb.Len() == 0 {
		slog.Warn("no policy context retrieved for generation", slog.String("query", query))
		return domain.TextResponse("I'm sorry, I could not find relevant policy context for that question."), nil
	}
	userPrompt := "Policy excerpts:\n\n" + sb.String() + "\nQuestion: " + query
	answer, err := e.ai.ChatJSON(ctx, answerSystemPrompt, userPrompt, e.maxTokens)
	if err != nil {
		return domain.EngineResponse{}, fmt.Errorf("op=rag.generate: %w", err)
	}
	return domain.TextResponse(answer), nil
}
