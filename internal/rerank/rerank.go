// Package rerank reorders retrieval candidates by embedding cosine
// similarity, independent of the engine's own ranking.
package rerank

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

// RankedDoc is one re-ranked candidate with its similarity score.
type RankedDoc struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Reranker scores candidates against a query via the embedding client.
type Reranker struct {
	ai domain.AIClient
}

// New constructs a Reranker backed by the given AI client.
func New(ai domain.AIClient) *Reranker {
	return &Reranker{ai: ai}
}

// Rerank orders documents by cosine similarity to query, descending, with
// stable tie-breaks on input order. Ranks are re-assigned 1-based after
// sorting and the list is truncated to topN when topN > 0.
//
// Any embedding failure degrades gracefully: the original candidates are
// returned in input order with synthetic descending scores 1.0 - 0.1*i
// rather than propagating the error.
func (r *Reranker) Rerank(ctx domain.Context, query string, documents []string, topN int) []RankedDoc {
	query = strings.TrimSpace(query)
	if query == "" {
		slog.Error("rerank rejected: query must be a non-empty string")
		return nil
	}
	if len(documents) == 0 {
		return nil
	}

	valid := make([]string, 0, len(documents))
	for _, doc := range documents {
		if trimmed := strings.TrimSpace(doc); trimmed != "" {
			valid = append(valid, trimmed)
		} else {
			slog.Warn("rerank skipping empty candidate")
		}
	}
	if len(valid) == 0 {
		slog.Warn("rerank: no valid candidates")
		return nil
	}

	slog.Info("re-ranking candidates", slog.Int("count", len(valid)), slog.String("query", query))

	queryVecs, err := r.ai.Embed(ctx, []string{query})
	if err != nil || len(queryVecs) == 0 {
		slog.Error("rerank query embedding failed", slog.Any("error", err))
		return fallbackRanking(documents, topN)
	}
	docVecs, err := r.ai.Embed(ctx, valid)
	if err != nil || len(docVecs) != len(valid) {
		slog.Error("rerank document embedding failed", slog.Any("error", err))
		return fallbackRanking(documents, topN)
	}

	results := make([]RankedDoc, len(valid))
	for i, doc := range valid {
		results[i] = RankedDoc{
			Content: doc,
			Score:   cosineSimilarity(queryVecs[0], docVecs[i]),
			Rank:    i + 1,
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i := range results {
		results[i].Rank = i + 1
	}
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results
}

// fallbackRanking returns the original candidates in input order with
// synthetic descending scores.
func fallbackRanking(documents []string, topN int) []RankedDoc {
	n := len(documents)
	if topN > 0 && topN < n {
		n = topN
	}
	out := make([]RankedDoc, n)
	for i := 0; i < n; i++ {
		out[i] = RankedDoc{Content: documents[i], Score: 1.0 - 0.1*float64(i), Rank: i + 1}
	}
	return out
}

// cosineSimilarity computes dot(a,b)/(|a|*|b|); zero when either norm is zero.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
