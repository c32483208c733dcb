package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/repo/memory"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/internal/usecase"
)

type planReviewAI struct {
	response string
	err      error
	calls    int
}

func (p *planReviewAI) Embed(_ domain.Context, _ []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (p *planReviewAI) ChatJSON(_ domain.Context, _, _ string, _ int) (string, error) {
	p.calls++
	return p.response, p.err
}

type staticRecommender struct {
	recs []string
}

func (r *staticRecommender) Compose(_ domain.Context, _ domain.LoanApplication) []string {
	return r.recs
}

const validPlan = "We manufacture precision auto components for two OEM customers and will use the loan to add a CNC machine, doubling monthly capacity."

func solidApplication() domain.LoanApplication {
	return domain.LoanApplication{
		BusinessName:      "Acme Components",
		IndustryType:      "manufacturing",
		AnnualTurnover:    10_000_000,
		NetProfit:         1_500_000, // 15% margin
		LoanAmount:        800_000,   // 8% of turnover
		UdyamRegistration: true,
		BusinessPlan:      validPlan,
	}
}

func newAssessService(aiClient domain.AIClient, recs []string) *usecase.AssessService {
	return usecase.NewAssessService(aiClient, memory.NewAssessmentRepo(), &staticRecommender{recs: recs})
}

func TestAssess_StrongApplicationScoresEmerald(t *testing.T) {
	ai := &planReviewAI{response: `{"valid": true, "score": 5}`}
	svc := newAssessService(ai, []string{"keep records"})

	a, err := svc.Assess(context.Background(), solidApplication())
	require.NoError(t, err)

	// udyam 2 + margin 3 + loan ratio 2 + industry 1 + plan 2 = 10
	assert.Equal(t, 10, a.Score)
	assert.Equal(t, domain.BandEmerald, a.Band)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, []string{"keep records"}, a.Recommendations)
	assert.InDelta(t, 15.0, a.Derived.ProfitMarginPct, 1e-9)
	assert.InDelta(t, 8.0, a.Derived.LoanToTurnoverPct, 1e-9)
}

func TestAssess_ScoreClampedAndBands(t *testing.T) {
	tests := []struct {
		name string
		app  func() domain.LoanApplication
		ai   string
		want int
		band string
	}{
		{
			name: "weak application lands red",
			app: func() domain.LoanApplication {
				app := solidApplication()
				app.UdyamRegistration = true
				app.NetProfit = 50_000       // 0.5% margin
				app.LoanAmount = 4_000_000   // 40% of turnover: -1
				app.IndustryType = "trading" // no sector point
				return app
			},
			ai:   `{"valid": true, "score": 1}`,
			want: 1, // 2 - 1
			band: domain.BandRed,
		},
		{
			name: "adequate plan adds one point",
			app: func() domain.LoanApplication {
				app := solidApplication()
				app.NetProfit = 600_000    // 6% margin: 2
				app.LoanAmount = 1_500_000 // 15%: 1
				app.IndustryType = "retail"
				return app
			},
			ai:   `{"valid": true, "score": 3}`,
			want: 6, // 2 + 2 + 1 + 1
			band: domain.BandAmber,
		},
		{
			name: "green band",
			app: func() domain.LoanApplication {
				app := solidApplication()
				app.IndustryType = "it services"
				return app
			},
			ai:   `{"valid": true, "score": 2}`,
			want: 8, // 2 + 3 + 2 + 1, weak plan adds nothing
			band: domain.BandGreen,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newAssessService(&planReviewAI{response: tc.ai}, nil)
			a, err := svc.Assess(context.Background(), tc.app())
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.Score)
			assert.Equal(t, tc.band, a.Band)
		})
	}
}

func TestAssess_ShortPlanShortCircuits(t *testing.T) {
	ai := &planReviewAI{response: `{"valid": true, "score": 5}`}
	svc := newAssessService(ai, []string{"unused"})

	app := solidApplication()
	app.BusinessPlan = "too short"
	a, err := svc.Assess(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, 0, a.Score)
	assert.Equal(t, domain.BandRed, a.Band)
	require.Len(t, a.Recommendations, 1)
	assert.Contains(t, a.Recommendations[0], "too short")
	assert.Zero(t, ai.calls)
}

func TestAssess_PlanWithPIIRejected(t *testing.T) {
	ai := &planReviewAI{response: `{"valid": true, "score": 5}`}
	svc := newAssessService(ai, nil)

	app := solidApplication()
	app.BusinessPlan = validPlan + " Contact me at owner@example.com for details."
	a, err := svc.Assess(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, 0, a.Score)
	assert.Equal(t, domain.BandRed, a.Band)
	require.Len(t, a.Recommendations, 1)
	assert.Contains(t, a.Recommendations[0], "personal data")
	assert.Zero(t, ai.calls)
}

func TestAssess_AIFailureFallsBackToNeutralReview(t *testing.T) {
	ai := &planReviewAI{err: errors.New("model unavailable")}
	svc := newAssessService(ai, nil)

	a, err := svc.Assess(context.Background(), solidApplication())
	require.NoError(t, err)

	// Neutral review scores 3: one plan point on top of the 8 rule points.
	assert.Equal(t, 9, a.Score)
	assert.Equal(t, 1, ai.calls)
}

func TestAssess_InvalidAIJSONFallsBackToNeutralReview(t *testing.T) {
	ai := &planReviewAI{response: "the plan looks great, five stars"}
	svc := newAssessService(ai, nil)

	a, err := svc.Assess(context.Background(), solidApplication())
	require.NoError(t, err)
	assert.Equal(t, 9, a.Score)
}

func TestAssess_MarkdownWrappedAIResponseAccepted(t *testing.T) {
	ai := &planReviewAI{response: "```json\n{\"valid\": true, \"score\": 4}\n```"}
	svc := newAssessService(ai, nil)

	a, err := svc.Assess(context.Background(), solidApplication())
	require.NoError(t, err)
	// Plan score 4 contributes 2 points.
	assert.Equal(t, 10, a.Score)
}

func TestAssess_SanitizesHTMLInPlan(t *testing.T) {
	ai := &planReviewAI{response: `{"valid": true, "score": 3}`}
	svc := newAssessService(ai, nil)

	app := solidApplication()
	app.BusinessPlan = "<p>" + validPlan + "</p><script>alert(1)</script>"
	a, err := svc.Assess(context.Background(), app)
	require.NoError(t, err)
	assert.NotContains(t, a.BusinessPlan, "<")
	assert.Contains(t, a.BusinessPlan, "precision auto components")
}

func TestAssess_PersistedAndRetrievable(t *testing.T) {
	repo := memory.NewAssessmentRepo()
	svc := usecase.NewAssessService(&planReviewAI{response: `{"valid": true, "score": 3}`}, repo, nil)

	created, err := svc.Assess(context.Background(), solidApplication())
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Score, got.Score)
	assert.Equal(t, created.Band, got.Band)
	assert.Equal(t, "Acme Components", got.BusinessName)
}

func TestAssess_GetUnknownID(t *testing.T) {
	svc := newAssessService(&planReviewAI{}, nil)
	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssess_BreakdownReasonsPresent(t *testing.T) {
	svc := newAssessService(&planReviewAI{response: `{"valid": true, "score": 5}`}, nil)

	a, err := svc.Assess(context.Background(), solidApplication())
	require.NoError(t, err)

	var reasons []string
	total := 0
	for _, c := range a.Breakdown {
		reasons = append(reasons, c.Reason)
		total += c.Points
	}
	assert.Equal(t, a.Score, total)
	joined := strings.Join(reasons, "; ")
	assert.Contains(t, joined, "Udyam")
	assert.Contains(t, joined, "profit margin")
	assert.Contains(t, joined, "loan-to-turnover")
}
