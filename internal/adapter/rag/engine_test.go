package rag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/rag"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

type fakeAI struct {
	embedErr error
	chatOut  string
	chatErr  error
	lastUser string
}

func (f *fakeAI) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeAI) ChatJSON(_ domain.Context, _, userPrompt string, _ int) (string, error) {
	f.lastUser = userPrompt
	return f.chatOut, f.chatErr
}

type fakeStore struct {
	ensured    []string
	points     []qdrant.ScoredPoint
	searchErr  error
	lastTopK   int
	lastVector []float32
}

func (f *fakeStore) EnsureCollection(_ context.Context, name string, _ int, _ string) error {
	f.ensured = append(f.ensured, name)
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ string, vector []float32, topK int) ([]qdrant.ScoredPoint, error) {
	f.lastVector = vector
	f.lastTopK = topK
	return f.points, f.searchErr
}

func twoPoints() []qdrant.ScoredPoint {
	return []qdrant.ScoredPoint{
		{Score: 0.92, Payload: qdrant.ChunkPayload{
			ChunkID: "chunk-1", DocID: "msme_loan_policy", FilePath: "docs/msme_loan_policy.pdf",
			Text: "Eligibility requires Udyam registration.",
		}},
		{Score: 0.78, Payload: qdrant.ChunkPayload{
			ChunkID: "chunk-2", DocID: "msme_loan_policy", FilePath: "docs/msme_loan_policy.pdf",
			Text: "Collateral-free loans up to the notified ceiling.",
		}},
	}
}

func TestEngine_InitStorages(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	e := rag.New(&fakeAI{}, store, "policy_chunks", 1536)

	require.NoError(t, e.InitStorages(context.Background()))
	assert.Equal(t, []string{"policy_chunks"}, store.ensured)
}

func TestEngine_Query_HybridReturnsList(t *testing.T) {
	t.Parallel()
	store := &fakeStore{points: twoPoints()}
	e := rag.New(&fakeAI{}, store, "policy_chunks", 3)

	resp, err := e.Query(context.Background(), "eligibility criteria", domain.QueryParams{Mode: domain.ModeHybrid, TopK: 2})
	require.NoError(t, err)

	assert.Equal(t, domain.ResponseList, resp.Kind)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 2, store.lastTopK)

	first := resp.Items[0]
	assert.Equal(t, "Eligibility requires Udyam registration.", first.Content)
	require.NotNil(t, first.Score)
	assert.InDelta(t, 0.92, *first.Score, 1e-9)
	assert.Equal(t, "chunk-1", first.ChunkID)
	assert.Equal(t, "msme_loan_policy", first.Metadata["doc_id"])
	assert.Equal(t, "docs/msme_loan_policy.pdf", first.Metadata["file_path"])
}

func TestEngine_Query_DefaultTopK(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	e := rag.New(&fakeAI{}, store, "policy_chunks", 3)

	_, err := e.Query(context.Background(), "q", domain.QueryParams{Mode: domain.ModeLocal})
	require.NoError(t, err)
	assert.Equal(t, rag.DefaultTopK, store.lastTopK)
}

func TestEngine_Query_NaiveGeneratesAnswer(t *testing.T) {
	t.Parallel()
	ai := &fakeAI{chatOut: "Udyam registration is mandatory."}
	store := &fakeStore{points: twoPoints()}
	e := rag.New(ai, store, "policy_chunks", 3)

	resp, err := e.Query(context.Background(), "is udyam required?", domain.QueryParams{Mode: domain.ModeNaive, TopK: 2})
	require.NoError(t, err)

	assert.Equal(t, domain.ResponseText, resp.Kind)
	assert.Equal(t, "Udyam registration is mandatory.", resp.Text)
	assert.Contains(t, ai.lastUser, "Eligibility requires Udyam registration.")
	assert.Contains(t, ai.lastUser, "is udyam required?")
}

func TestEngine_Query_NaiveNoContext(t *testing.T) {
	t.Parallel()
	ai := &fakeAI{chatOut: "should not be used"}
	e := rag.New(ai, &fakeStore{}, "policy_chunks", 3)

	resp, err := e.Query(context.Background(), "anything", domain.QueryParams{Mode: domain.ModeNaive})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseText, resp.Kind)
	assert.Contains(t, resp.Text, "could not find relevant policy context")
	assert.Empty(t, ai.lastUser)
}

func TestEngine_Query_EmptyQuery(t *testing.T) {
	t.Parallel()
	e := rag.New(&fakeAI{}, &fakeStore{}, "policy_chunks", 3)

	_, err := e.Query(context.Background(), "   ", domain.QueryParams{Mode: domain.ModeLocal})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEngine_Query_SearchErrorPropagates(t *testing.T) {
	t.Parallel()
	store := &fakeStore{searchErr: errors.New("qdrant down")}
	e := rag.New(&fakeAI{}, store, "policy_chunks", 3)

	_, err := e.Query(context.Background(), "q", domain.QueryParams{Mode: domain.ModeLocal})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant down")
}

func TestEngine_Query_EmbedErrorPropagates(t *testing.T) {
	t.Parallel()
	e := rag.New(&fakeAI{embedErr: errors.New("embed failed")}, &fakeStore{}, "policy_chunks", 3)

	_, err := e.Query(context.Background(), "q", domain.QueryParams{Mode: domain.ModeLocal})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed failed")
}
