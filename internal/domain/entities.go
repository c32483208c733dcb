// Package domain defines the core entities and ports of the loan scorer.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrInternal        = errors.New("internal error")
)

// Risk bands for the 0-10 assessment score.
const (
	BandRed     = "red"
	BandAmber   = "amber"
	BandGreen   = "green"
	BandEmerald = "emerald"
)

// DocumentMetadata describes one ingested policy document. Records are
// created at ingestion time, persisted to the ingestion summary side file,
// and loaded read-only at service start.
type DocumentMetadata struct {
	DocumentID       string   `json:"document_id"`
	DocumentName     string   `json:"document_name"`
	DocumentType     string   `json:"document_type"`
	DocumentCategory string   `json:"document_category,omitempty"`
	BusinessDomain   string   `json:"business_domain"`
	Description      string   `json:"description,omitempty"`
	ContentSummary   string   `json:"content_summary,omitempty"`
	SourceFile       string   `json:"source_file,omitempty"`
	FilePath         string   `json:"file_path,omitempty"`
	TotalPages       int      `json:"total_pages,omitempty"`
	TotalCharacters  int      `json:"total_characters,omitempty"`
	IngestionDate    string   `json:"ingestion_date,omitempty"`
	ContentTopics    []string `json:"content_topics,omitempty"`
}

// RetrievedResult is one normalized retrieval hit. It lives only for the
// duration of a single search request.
// Invariant: results returned to callers always carry a DocumentMetadata
// with a non-empty DocumentName, synthesized if no grounding exists.
type RetrievedResult struct {
	Rank             int               `json:"rank"`
	Content          string            `json:"content"`
	Score            float64           `json:"score"`
	Metadata         map[string]any    `json:"metadata"`
	ChunkID          string            `json:"chunk_id,omitempty"`
	DocumentMetadata *DocumentMetadata `json:"document_metadata,omitempty"`
}

// LoanApplication is the applicant-provided input for an assessment.
type LoanApplication struct {
	BusinessName      string
	IndustryType      string
	AnnualTurnover    float64
	NetProfit         float64
	LoanAmount        float64
	UdyamRegistration bool
	BusinessPlan      string
}

// ScoreComponent is one line of the assessment score breakdown.
type ScoreComponent struct {
	Reason string `json:"reason"`
	Points int    `json:"points"`
}

// DerivedRatios are percentages computed from the raw financials.
type DerivedRatios struct {
	ProfitMarginPct   float64 `json:"profit_margin_pct"`
	LoanToTurnoverPct float64 `json:"loan_to_turnover_pct"`
}

// Assessment is a completed scoring outcome, persisted for later retrieval.
type Assessment struct {
	ID                string
	BusinessName      string
	IndustryType      string
	AnnualTurnover    float64
	NetProfit         float64
	LoanAmount        float64
	UdyamRegistration bool
	BusinessPlan      string
	Score             int
	Band              string
	Breakdown         []ScoreComponent
	Derived           DerivedRatios
	Recommendations   []string
	CreatedAt         time.Time
}

// QueryMode selects the retrieval engine's query strategy.
type QueryMode string

// Query modes supported by the retrieval engine.
const (
	ModeLocal  QueryMode = "local"
	ModeNaive  QueryMode = "naive"
	ModeHybrid QueryMode = "hybrid"
)

// QueryParams parameterizes one retrieval engine query.
type QueryParams struct {
	Mode         QueryMode
	TopK         int
	EnableRerank bool
}

// ResponseKind tags the shape variant of an engine response.
type ResponseKind int

// Engine response variants.
const (
	ResponseText ResponseKind = iota
	ResponseObject
	ResponseList
)

// EngineObject is the mapping-shaped engine response payload.
type EngineObject struct {
	Answer   string
	Content  string
	Score    *float64
	Metadata map[string]any
}

// EngineItem is one element of a list-shaped engine response; either a bare
// text snippet or an object carrying content with engine-supplied score and
// metadata.
type EngineItem struct {
	IsText   bool
	Text     string
	Content  string
	Score    *float64
	Metadata map[string]any
	ChunkID  string
}

// EngineResponse is the tagged variant covering the heterogeneous shapes a
// retrieval engine may return: a bare string, a mapping, or a sequence.
type EngineResponse struct {
	Kind   ResponseKind
	Text   string
	Object EngineObject
	Items  []EngineItem
}

// TextResponse wraps a bare string answer.
func TextResponse(s string) EngineResponse {
	return EngineResponse{Kind: ResponseText, Text: s}
}

// ObjectResponse wraps a mapping-shaped answer.
func ObjectResponse(o EngineObject) EngineResponse {
	return EngineResponse{Kind: ResponseObject, Object: o}
}

// ListResponse wraps a sequence of items.
func ListResponse(items []EngineItem) EngineResponse {
	return EngineResponse{Kind: ResponseList, Items: items}
}

// Ports

// AIClient provides embeddings and JSON-constrained chat completions.
type AIClient interface {
	// Embed returns one embedding vector per input text.
	Embed(ctx Context, texts []string) ([][]float32, error)
	// ChatJSON returns the model's message content for the given prompts.
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// RetrievalEngine is the external retrieval collaborator. InitStorages must
// complete before the first Query.
type RetrievalEngine interface {
	InitStorages(ctx Context) error
	Query(ctx Context, query string, p QueryParams) (EngineResponse, error)
}

// AssessmentRepository persists completed assessments.
type AssessmentRepository interface {
	Create(ctx Context, a Assessment) (string, error)
	Get(ctx Context, id string) (Assessment, error)
}

// AnswerCache caches generated answers. Implementations derive a stable
// storage key from the query.
type AnswerCache interface {
	Get(ctx Context, query string) (string, bool, error)
	Set(ctx Context, query, answer string) error
}

// TextExtractor extracts plain text from a document file at path.
type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}

// Context is an alias to allow decoupling from std context in domain.
// Adapters and usecases pass context.Context through.
type Context = context.Context
