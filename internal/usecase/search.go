// Package usecase contains the application services: policy search and
// answer generation, loan assessment, and recommendation composition.
package usecase

import (
	"fmt"
	"strings"
	"sync"

	"log/slog"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/observability"
	"github.com/fairyhunter13/msme-loan-scorer/internal/citation"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/internal/metadata"
	"github.com/fairyhunter13/msme-loan-scorer/internal/rerank"
	"github.com/fairyhunter13/msme-loan-scorer/pkg/textx"
)

// engineState tracks lazy engine initialization.
type engineState int

const (
	stateUninitialized engineState = iota
	stateInitializing
	stateReady
)

// placeholderSummaryLimit caps placeholder content taken from a document's
// stored summary.
const placeholderSummaryLimit = 300

// generationFallback is returned when the engine cannot produce an answer.
const generationFallback = "I'm sorry, I could not generate an answer from the policy documents right now. Please try again later."

// SearchService orchestrates retrieval, citation resolution and answer
// generation. The engine and metadata caches are shared across requests;
// initialization happens at most once, guarded by the mutex.
type SearchService struct {
	engine   domain.RetrievalEngine
	caches   *metadata.Caches
	resolver *citation.Resolver
	reranker *rerank.Reranker
	answers  domain.AnswerCache

	mu    sync.Mutex
	state engineState
}

// NewSearchService wires the search orchestrator. reranker and answers may be
// nil; re-ranking and answer caching are then skipped.
func NewSearchService(engine domain.RetrievalEngine, caches *metadata.Caches, resolver *citation.Resolver, reranker *rerank.Reranker, answers domain.AnswerCache) *SearchService {
	return &SearchService{
		engine:   engine,
		caches:   caches,
		resolver: resolver,
		reranker: reranker,
		answers:  answers,
	}
}

// ensureReady initializes the engine's storage exactly once. Failed attempts
// reset to uninitialized so a later request can retry.
func (s *SearchService) ensureReady(ctx domain.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateReady {
		return nil
	}
	s.state = stateInitializing
	if err := s.engine.InitStorages(ctx); err != nil {
		s.state = stateUninitialized
		return fmt.Errorf("op=search.init: %w", err)
	}
	s.state = stateReady
	return nil
}

// Search retrieves policy excerpts for query with resolved citations.
// External failures degrade to an empty result list; the method never
// returns an error to the transport layer.
func (s *SearchService) Search(ctx domain.Context, query string, topK int, enableRerank bool) []domain.RetrievedResult {
	if topK <= 0 {
		topK = 5
	}
	if err := s.ensureReady(ctx); err != nil {
		slog.Error("retrieval engine initialization failed", slog.Any("error", err))
		return []domain.RetrievedResult{}
	}

	resp, err := s.engine.Query(ctx, query, domain.QueryParams{
		Mode:         domain.ModeHybrid,
		TopK:         topK,
		EnableRerank: enableRerank,
	})
	if err != nil {
		slog.Error("retrieval query failed",
			slog.String("query", query),
			slog.Int("top_k", topK),
			slog.Any("error", err))
		return []domain.RetrievedResult{}
	}

	results := normalizeResponse(resp)
	results = dropRefusals(results)
	if enableRerank && s.reranker != nil {
		results = s.applyRerank(ctx, query, results, topK)
	}
	for i := range results {
		results[i].Rank = i + 1
		strategy := s.resolver.Resolve(&results[i], i, s.caches)
		observability.ObserveCitation(strategy)
	}

	if len(results) == 0 && !s.caches.Empty() {
		results = s.placeholderResults(topK)
	}
	observability.SearchResultsReturned.Observe(float64(len(results)))
	return results
}

// Generate produces a cleaned free-text answer for query. Cached answers are
// served without touching the engine. Failures degrade to a fixed fallback
// string, never an error.
func (s *SearchService) Generate(ctx domain.Context, query string) string {
	if s.answers != nil {
		if cached, ok, err := s.answers.Get(ctx, query); err == nil && ok {
			observability.ObserveAnswerCache("hit")
			return cached
		} else if err != nil {
			slog.Warn("answer cache lookup failed", slog.Any("error", err))
		}
		observability.ObserveAnswerCache("miss")
	}

	if err := s.ensureReady(ctx); err != nil {
		slog.Error("retrieval engine initialization failed", slog.Any("error", err))
		return generationFallback
	}
	resp, err := s.engine.Query(ctx, query, domain.QueryParams{Mode: domain.ModeNaive})
	if err != nil {
		slog.Error("generation query failed", slog.String("query", query), slog.Any("error", err))
		return generationFallback
	}

	answer := citation.CleanResponse(textOf(resp))
	if answer == "" {
		return generationFallback
	}
	if s.answers != nil {
		if err := s.answers.Set(ctx, query, answer); err != nil {
			slog.Warn("answer cache store failed", slog.Any("error", err))
		}
	}
	return answer
}

// Documents returns the cached metadata for all ingested documents in load
// order.
func (s *SearchService) Documents() []domain.DocumentMetadata {
	ids := s.caches.DocIDs()
	out := make([]domain.DocumentMetadata, 0, len(ids))
	for _, id := range ids {
		if md, ok := s.caches.Doc(id); ok {
			out = append(out, md)
		}
	}
	return out
}

// normalizeResponse flattens the engine's heterogeneous response shapes into
// uniform result records. String-shaped content gets a descending synthetic
// score since the engine supplies none.
func normalizeResponse(resp domain.EngineResponse) []domain.RetrievedResult {
	switch resp.Kind {
	case domain.ResponseText:
		if resp.Text == "" {
			return nil
		}
		return []domain.RetrievedResult{{Content: resp.Text, Score: 1.0}}
	case domain.ResponseObject:
		content := resp.Object.Answer
		if content == "" {
			content = resp.Object.Content
		}
		if content == "" {
			return nil
		}
		score := 1.0
		if resp.Object.Score != nil {
			score = *resp.Object.Score
		}
		return []domain.RetrievedResult{{Content: content, Score: score, Metadata: resp.Object.Metadata}}
	case domain.ResponseList:
		out := make([]domain.RetrievedResult, 0, len(resp.Items))
		for i, item := range resp.Items {
			r, ok := normalizeItem(item, i)
			if !ok {
				slog.Debug("discarding empty engine item", slog.Int("index", i))
				continue
			}
			out = append(out, r)
		}
		return out
	default:
		return nil
	}
}

func normalizeItem(item domain.EngineItem, index int) (domain.RetrievedResult, bool) {
	if item.IsText {
		if item.Text == "" {
			return domain.RetrievedResult{}, false
		}
		return domain.RetrievedResult{
			Content: item.Text,
			Score:   syntheticScore(index),
		}, true
	}
	if item.Content == "" {
		return domain.RetrievedResult{}, false
	}
	score := syntheticScore(index)
	if item.Score != nil {
		score = *item.Score
	}
	return domain.RetrievedResult{
		Content:  item.Content,
		Score:    score,
		Metadata: item.Metadata,
		ChunkID:  item.ChunkID,
	}, true
}

func syntheticScore(index int) float64 {
	s := 1.0 - 0.1*float64(index)
	if s < 0 {
		s = 0
	}
	return s
}

// dropRefusals removes engine fallback non-answers so they are never
// surfaced as citable content.
func dropRefusals(results []domain.RetrievedResult) []domain.RetrievedResult {
	out := results[:0]
	for _, r := range results {
		if ai.IsRefusal(r.Content) {
			slog.Debug("dropping refusal result")
			continue
		}
		out = append(out, r)
	}
	return out
}

// applyRerank reorders results by embedding similarity to the query,
// carrying metadata and chunk ids through the reorder. The pending index is
// keyed on trimmed content because the reranker trims candidates before
// scoring them.
func (s *SearchService) applyRerank(ctx domain.Context, query string, results []domain.RetrievedResult, topK int) []domain.RetrievedResult {
	if len(results) == 0 {
		return results
	}
	docs := make([]string, len(results))
	pending := make(map[string][]int, len(results))
	for i, r := range results {
		docs[i] = r.Content
		key := strings.TrimSpace(r.Content)
		pending[key] = append(pending[key], i)
	}
	ranked := s.reranker.Rerank(ctx, query, docs, topK)
	if len(ranked) == 0 {
		return results
	}
	out := make([]domain.RetrievedResult, 0, len(ranked))
	for _, rd := range ranked {
		key := strings.TrimSpace(rd.Content)
		idxs := pending[key]
		if len(idxs) == 0 {
			continue
		}
		idx := idxs[0]
		pending[key] = idxs[1:]
		r := results[idx]
		r.Score = rd.Score
		r.Rank = rd.Rank
		out = append(out, r)
	}
	return out
}

// placeholderResults synthesizes results from cached document summaries so a
// caller never sees a hard empty response while documents exist.
func (s *SearchService) placeholderResults(topK int) []domain.RetrievedResult {
	ids := s.caches.DocIDs()
	out := make([]domain.RetrievedResult, 0, topK)
	for i, id := range ids {
		if len(out) >= topK {
			break
		}
		md, ok := s.caches.Doc(id)
		if !ok {
			continue
		}
		content := textx.ClipRunes(md.ContentSummary, placeholderSummaryLimit)
		score := 0.8 - 0.1*float64(i)
		if score < 0 {
			score = 0
		}
		mdCopy := md
		out = append(out, domain.RetrievedResult{
			Rank:             len(out) + 1,
			Content:          content,
			Score:            score,
			DocumentMetadata: &mdCopy,
		})
	}
	return out
}

func textOf(resp domain.EngineResponse) string {
	switch resp.Kind {
	case domain.ResponseText:
		return resp.Text
	case domain.ResponseObject:
		if resp.Object.Answer != "" {
			return resp.Object.Answer
		}
		return resp.Object.Content
	case domain.ResponseList:
		for _, item := range resp.Items {
			if item.IsText && item.Text != "" {
				return item.Text
			}
			if item.Content != "" {
				return item.Content
			}
		}
	}
	return ""
}
