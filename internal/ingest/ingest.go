// Package ingest builds the retrieval corpus: it extracts text from policy
// documents, chunks it by token count, embeds the chunks into the vector
// collection, and writes the metadata side files the citation resolver loads
// at service start.
package ingest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/internal/metadata"
	"github.com/fairyhunter13/msme-loan-scorer/pkg/textx"
)

// VectorUpserter is the subset of the Qdrant client the pipeline needs.
type VectorUpserter interface {
	EnsureCollection(ctx domain.Context, name string, vectorSize int, distance string) error
	UpsertChunks(ctx domain.Context, collection string, vectors [][]float32, payloads []qdrant.ChunkPayload, ids []string) error
}

// Options tune one ingestion run.
type Options struct {
	Collection    string
	VectorSize    int
	ChunkTokens   int
	OverlapTokens int
	// ManifestPath optionally names a YAML manifest enriching per-document
	// metadata (display name, type, category, topics).
	ManifestPath string
	// WorkingDir receives the side files read by the citation resolver.
	WorkingDir string
	Model      string
}

func (o *Options) defaults() {
	if o.ChunkTokens <= 0 {
		o.ChunkTokens = 400
	}
	if o.OverlapTokens <= 0 {
		o.OverlapTokens = 50
	}
	if o.VectorSize <= 0 {
		o.VectorSize = 1536
	}
	if o.Model == "" {
		o.Model = "text-embedding-3-small"
	}
}

// manifest mirrors the optional YAML document manifest.
type manifest struct {
	Documents []manifestEntry `yaml:"documents"`
}

type manifestEntry struct {
	File        string   `yaml:"file"`
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Category    string   `yaml:"category"`
	Domain      string   `yaml:"domain"`
	Description string   `yaml:"description"`
	Topics      []string `yaml:"topics"`
}

// DocumentResult records the outcome for one source file.
type DocumentResult struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Chunks   int    `json:"chunks,omitempty"`
	Error    string `json:"error,omitempty"`

	Metadata *domain.DocumentMetadata `json:"metadata,omitempty"`
}

// Summary is the aggregate outcome of one ingestion run.
type Summary struct {
	Documents      []DocumentResult
	ChunksUpserted int
}

// Pipeline wires the extractor, embedder and vector store into one run.
type Pipeline struct {
	ai        domain.AIClient
	extractor domain.TextExtractor
	store     VectorUpserter
	counter   *tokencount.Counter
	opts      Options
}

// New constructs a Pipeline. opts.Collection and opts.WorkingDir must be set.
func New(ai domain.AIClient, extractor domain.TextExtractor, store VectorUpserter, opts Options) *Pipeline {
	opts.defaults()
	return &Pipeline{
		ai:        ai,
		extractor: extractor,
		store:     store,
		counter:   tokencount.NewCounter(),
		opts:      opts,
	}
}

// embedBatch bounds embedding request size.
const embedBatch = 16

// IngestDir processes every supported document directly under dir and writes
// the side files to the working directory. Per-document failures are recorded
// in the summary and do not abort the run.
func (p *Pipeline) IngestDir(ctx domain.Context, dir string) (Summary, error) {
	if err := p.store.EnsureCollection(ctx, p.opts.Collection, p.opts.VectorSize, "Cosine"); err != nil {
		return Summary{}, fmt.Errorf("op=ingest.collection: %w", err)
	}
	man, err := p.loadManifest()
	if err != nil {
		return Summary{}, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("op=ingest.readdir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var sum Summary
	status := make(map[string]docStatusEntry, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if !supportedFile(path) {
			slog.Debug("skipping unsupported file", slog.String("file", name))
			continue
		}
		res, entry := p.ingestOne(ctx, name, path, man[strings.ToLower(name)])
		sum.Documents = append(sum.Documents, res)
		if res.Status == "success" {
			sum.ChunksUpserted += res.Chunks
			status[res.Metadata.DocumentID] = entry
		}
	}

	if err := p.writeSideFiles(sum, status); err != nil {
		return sum, err
	}
	slog.Info("ingestion complete",
		slog.Int("documents", len(sum.Documents)),
		slog.Int("chunks", sum.ChunksUpserted))
	return sum, nil
}

func (p *Pipeline) ingestOne(ctx domain.Context, name, path string, man *manifestEntry) (DocumentResult, docStatusEntry) {
	text, err := p.extractor.ExtractPath(ctx, name, path)
	if err != nil {
		slog.Warn("extraction failed", slog.String("file", name), slog.Any("error", err))
		return DocumentResult{Filename: name, Status: "failed", Error: err.Error()}, docStatusEntry{}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return DocumentResult{Filename: name, Status: "failed", Error: "no text extracted"}, docStatusEntry{}
	}

	chunks := p.counter.SplitByTokens(text, p.opts.Model, p.opts.ChunkTokens, p.opts.OverlapTokens)
	if len(chunks) == 0 {
		return DocumentResult{Filename: name, Status: "failed", Error: "no chunks produced"}, docStatusEntry{}
	}

	docID := DocumentID(name)
	md := p.documentMetadata(docID, name, path, text, man)
	chunkIDs := make([]string, len(chunks))
	for i := range chunks {
		chunkIDs[i] = chunkID(docID, i, chunks[i])
	}

	if err := p.upsertChunks(ctx, docID, path, chunks, chunkIDs); err != nil {
		slog.Warn("upsert failed", slog.String("file", name), slog.Any("error", err))
		return DocumentResult{Filename: name, Status: "failed", Error: err.Error()}, docStatusEntry{}
	}

	return DocumentResult{Filename: name, Status: "success", Chunks: len(chunks), Metadata: &md},
		docStatusEntry{ChunksList: chunkIDs, FilePath: path, Status: "processed"}
}

func (p *Pipeline) upsertChunks(ctx domain.Context, docID, path string, chunks, chunkIDs []string) error {
	for i := 0; i < len(chunks); i += embedBatch {
		end := i + embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		vecs, err := p.ai.Embed(ctx, batch)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		payloads := make([]qdrant.ChunkPayload, len(batch))
		ids := make([]string, len(batch))
		for j := range batch {
			ord := i + j
			payloads[j] = qdrant.ChunkPayload{
				ChunkID:  chunkIDs[ord],
				DocID:    docID,
				FilePath: path,
				Text:     batch[j],
				Ordinal:  ord,
			}
			// Deterministic point id so re-ingestion overwrites instead of
			// duplicating points.
			ids[j] = uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkIDs[ord])).String()
		}
		if err := p.store.UpsertChunks(ctx, p.opts.Collection, vecs, payloads, ids); err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) documentMetadata(docID, name, path, text string, man *manifestEntry) domain.DocumentMetadata {
	md := domain.DocumentMetadata{
		DocumentID:      docID,
		DocumentName:    strings.TrimSuffix(name, filepath.Ext(name)),
		DocumentType:    "MSME_POLICY_DOCUMENT",
		BusinessDomain:  "MSME_LOANS",
		SourceFile:      name,
		FilePath:        path,
		TotalCharacters: len(text),
		IngestionDate:   time.Now().UTC().Format(time.RFC3339),
		ContentSummary:  summaryOf(text),
	}
	if man == nil {
		return md
	}
	if man.Name != "" {
		md.DocumentName = man.Name
	}
	if man.Type != "" {
		md.DocumentType = man.Type
	}
	if man.Category != "" {
		md.DocumentCategory = man.Category
	}
	if man.Domain != "" {
		md.BusinessDomain = man.Domain
	}
	if man.Description != "" {
		md.Description = man.Description
	}
	if len(man.Topics) > 0 {
		md.ContentTopics = man.Topics
	}
	return md
}

func (p *Pipeline) loadManifest() (map[string]*manifestEntry, error) {
	out := make(map[string]*manifestEntry)
	if p.opts.ManifestPath == "" {
		return out, nil
	}
	b, err := os.ReadFile(p.opts.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("op=ingest.manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("op=ingest.manifest: %w", err)
	}
	for i := range m.Documents {
		e := &m.Documents[i]
		if e.File == "" {
			continue
		}
		out[strings.ToLower(e.File)] = e
	}
	return out, nil
}

// docStatusEntry mirrors one value of the document status side file.
type docStatusEntry struct {
	ChunksList []string `json:"chunks_list"`
	FilePath   string   `json:"file_path"`
	Status     string   `json:"status,omitempty"`
}

type ingestionSummaryFile struct {
	IngestionSession struct {
		Timestamp          string           `json:"timestamp"`
		DocumentsProcessed []DocumentResult `json:"documents_processed"`
	} `json:"ingestion_session"`
}

func (p *Pipeline) writeSideFiles(sum Summary, status map[string]docStatusEntry) error {
	if err := os.MkdirAll(p.opts.WorkingDir, 0o750); err != nil {
		return fmt.Errorf("op=ingest.workdir: %w", err)
	}
	var f ingestionSummaryFile
	f.IngestionSession.Timestamp = time.Now().UTC().Format(time.RFC3339)
	f.IngestionSession.DocumentsProcessed = sum.Documents
	if err := writeJSON(filepath.Join(p.opts.WorkingDir, metadata.IngestionSummaryFile), f); err != nil {
		return err
	}
	return writeJSON(filepath.Join(p.opts.WorkingDir, metadata.DocStatusFile), status)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("op=ingest.sidefile: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("op=ingest.sidefile: %w", err)
	}
	return nil
}

// DocumentID derives the canonical document id from a source file name:
// lowercased, spaces replaced with underscores, extension dropped.
func DocumentID(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.ReplaceAll(strings.ToLower(base), " ", "_")
}

func chunkID(docID string, ordinal int, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", docID, ordinal, text)))
	return fmt.Sprintf("chunk-%x", sum[:8])
}

func summaryOf(text string) string {
	const limit = 300
	return textx.ClipRunes(text, limit)
}

func supportedFile(path string) bool {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for _, allowed := range []string{
		"application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain",
	} {
		if mt.Is(allowed) {
			return true
		}
	}
	return false
}
