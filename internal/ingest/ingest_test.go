package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/internal/ingest"
	"github.com/fairyhunter13/msme-loan-scorer/internal/metadata"
)

type fakeExtractor struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeExtractor) ExtractPath(_ domain.Context, fileName, _ string) (string, error) {
	if err := f.errs[fileName]; err != nil {
		return "", err
	}
	return f.texts[fileName], nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (fakeEmbedder) ChatJSON(_ domain.Context, _, _ string, _ int) (string, error) {
	return "", errors.New("not used")
}

type fakeUpserter struct {
	ensured  []string
	payloads []qdrant.ChunkPayload
	ids      []string
}

func (f *fakeUpserter) EnsureCollection(_ domain.Context, name string, _ int, _ string) error {
	f.ensured = append(f.ensured, name)
	return nil
}

func (f *fakeUpserter) UpsertChunks(_ domain.Context, _ string, _ [][]float32, payloads []qdrant.ChunkPayload, ids []string) error {
	f.payloads = append(f.payloads, payloads...)
	f.ids = append(f.ids, ids...)
	return nil
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func newPipeline(t *testing.T, ex *fakeExtractor, manifestPath string) (*ingest.Pipeline, *fakeUpserter, string) {
	t.Helper()
	up := &fakeUpserter{}
	workDir := t.TempDir()
	p := ingest.New(fakeEmbedder{}, ex, up, ingest.Options{
		Collection:   "policy_chunks",
		WorkingDir:   workDir,
		ManifestPath: manifestPath,
	})
	return p, up, workDir
}

func TestIngestDir_Success(t *testing.T) {
	docs := t.TempDir()
	writeDoc(t, docs, "MSME Loan Policy.txt", "plain text placeholder")

	ex := &fakeExtractor{texts: map[string]string{
		"MSME Loan Policy.txt": "Eligibility requires Udyam registration. Collateral free loans available.",
	}}
	p, up, workDir := newPipeline(t, ex, "")

	sum, err := p.IngestDir(context.Background(), docs)
	require.NoError(t, err)

	assert.Equal(t, []string{"policy_chunks"}, up.ensured)
	require.Len(t, sum.Documents, 1)
	doc := sum.Documents[0]
	assert.Equal(t, "success", doc.Status)
	require.NotNil(t, doc.Metadata)
	assert.Equal(t, "msme_loan_policy", doc.Metadata.DocumentID)
	assert.Equal(t, "MSME Loan Policy", doc.Metadata.DocumentName)
	assert.Equal(t, "MSME_POLICY_DOCUMENT", doc.Metadata.DocumentType)
	assert.Equal(t, "MSME_LOANS", doc.Metadata.BusinessDomain)
	assert.Positive(t, sum.ChunksUpserted)
	require.NotEmpty(t, up.payloads)
	assert.Equal(t, "msme_loan_policy", up.payloads[0].DocID)
	assert.NotEmpty(t, up.payloads[0].ChunkID)
	assert.Len(t, up.ids, len(up.payloads))

	// Side files must round-trip through the metadata caches.
	caches := metadata.Load(workDir)
	md, ok := caches.Doc("msme_loan_policy")
	require.True(t, ok)
	assert.Equal(t, "MSME Loan Policy", md.DocumentName)
	gotDoc, ok := caches.ChunkDoc(up.payloads[0].ChunkID)
	require.True(t, ok)
	assert.Equal(t, "msme_loan_policy", gotDoc)
	path, ok := caches.PathFor("msme_loan_policy")
	require.True(t, ok)
	assert.Contains(t, path, "MSME Loan Policy.txt")
}

func TestIngestDir_ManifestOverrides(t *testing.T) {
	docs := t.TempDir()
	writeDoc(t, docs, "policy.txt", "placeholder")

	manifestPath := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(`documents:
  - file: policy.txt
    name: MSME Lending Guidelines
    type: GUIDELINES
    category: lending
    description: Central guidelines for MSME lending.
    topics: [loan_eligibility, application_process]
`), 0o600))

	ex := &fakeExtractor{texts: map[string]string{"policy.txt": "Some policy text."}}
	p, _, _ := newPipeline(t, ex, manifestPath)

	sum, err := p.IngestDir(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, sum.Documents, 1)
	md := sum.Documents[0].Metadata
	require.NotNil(t, md)
	assert.Equal(t, "MSME Lending Guidelines", md.DocumentName)
	assert.Equal(t, "GUIDELINES", md.DocumentType)
	assert.Equal(t, "lending", md.DocumentCategory)
	assert.Equal(t, []string{"loan_eligibility", "application_process"}, md.ContentTopics)
}

func TestIngestDir_ExtractionFailureRecorded(t *testing.T) {
	docs := t.TempDir()
	writeDoc(t, docs, "good.txt", "good content")
	writeDoc(t, docs, "bad.txt", "bad content")

	ex := &fakeExtractor{
		texts: map[string]string{"good.txt": "Usable policy text."},
		errs:  map[string]error{"bad.txt": errors.New("tika status 422")},
	}
	p, _, _ := newPipeline(t, ex, "")

	sum, err := p.IngestDir(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, sum.Documents, 2)

	byName := map[string]ingest.DocumentResult{}
	for _, d := range sum.Documents {
		byName[d.Filename] = d
	}
	assert.Equal(t, "failed", byName["bad.txt"].Status)
	assert.Contains(t, byName["bad.txt"].Error, "tika status 422")
	assert.Equal(t, "success", byName["good.txt"].Status)
}

func TestIngestDir_SkipsUnsupportedFiles(t *testing.T) {
	docs := t.TempDir()
	// PNG magic bytes; not a supported document type.
	require.NoError(t, os.WriteFile(filepath.Join(docs, "logo.png"),
		[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0o600))

	p, up, _ := newPipeline(t, &fakeExtractor{}, "")

	sum, err := p.IngestDir(context.Background(), docs)
	require.NoError(t, err)
	assert.Empty(t, sum.Documents)
	assert.Empty(t, up.payloads)
}

func TestIngestDir_DeterministicPointIDs(t *testing.T) {
	text := "Stable policy text for idempotent re-ingestion."
	run := func() []string {
		docs := t.TempDir()
		writeDoc(t, docs, "policy.txt", "placeholder")
		ex := &fakeExtractor{texts: map[string]string{"policy.txt": text}}
		p, up, _ := newPipeline(t, ex, "")
		_, err := p.IngestDir(context.Background(), docs)
		require.NoError(t, err)
		return up.ids
	}
	assert.Equal(t, run(), run())
}

func TestIngestDir_SideFilesWritten(t *testing.T) {
	docs := t.TempDir()
	writeDoc(t, docs, "policy.txt", "placeholder")
	ex := &fakeExtractor{texts: map[string]string{"policy.txt": "Policy text."}}
	p, _, workDir := newPipeline(t, ex, "")

	_, err := p.IngestDir(context.Background(), docs)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(workDir, metadata.DocStatusFile))
	require.NoError(t, err)
	var status map[string]struct {
		ChunksList []string `json:"chunks_list"`
		FilePath   string   `json:"file_path"`
	}
	require.NoError(t, json.Unmarshal(b, &status))
	entry, ok := status["policy"]
	require.True(t, ok)
	assert.NotEmpty(t, entry.ChunksList)
	assert.Contains(t, entry.FilePath, "policy.txt")
}

func TestDocumentID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "msme_loan_policy", ingest.DocumentID("MSME Loan Policy.pdf"))
	assert.Equal(t, "notes", ingest.DocumentID("notes.txt"))
	assert.Equal(t, "no_ext", ingest.DocumentID("No Ext"))
}
