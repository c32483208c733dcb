package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"log/slog"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/observability"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/pkg/textx"
)

// minPlanLength is the minimum accepted business plan length after
// sanitation.
const minPlanLength = 50

const planReviewSystemPrompt = `You are a loan officer reviewing MSME business plans. Score the plan's quality from 0 to 5 considering clarity, market understanding and financial realism. Respond with JSON only: {"valid": true|false, "score": <0-5>}.`

// planReview is the AI judgement of business plan quality.
type planReview struct {
	Valid bool `json:"valid"`
	Score int  `json:"score"`
}

// Recommender composes advisory recommendations for an application.
type Recommender interface {
	Compose(ctx domain.Context, app domain.LoanApplication) []string
}

// AssessService scores loan applications against the rule table plus an
// AI-judged plan quality component and persists the outcome.
type AssessService struct {
	ai          domain.AIClient
	cleaner     *ai.ResponseCleaner
	repo        domain.AssessmentRepository
	recommender Recommender
}

// NewAssessService wires the assessment service. recommender may be nil;
// recommendations are then omitted.
func NewAssessService(aiClient domain.AIClient, repo domain.AssessmentRepository, recommender Recommender) *AssessService {
	return &AssessService{
		ai:          aiClient,
		cleaner:     ai.NewResponseCleaner(),
		repo:        repo,
		recommender: recommender,
	}
}

// Assess scores the application, composes recommendations and persists the
// assessment. A plan failing validation short-circuits to score 0 in the red
// band with the validation reason as the only recommendation.
func (s *AssessService) Assess(ctx domain.Context, app domain.LoanApplication) (domain.Assessment, error) {
	app.BusinessPlan = textx.SanitizeHTML(app.BusinessPlan)

	a := domain.Assessment{
		BusinessName:      app.BusinessName,
		IndustryType:      app.IndustryType,
		AnnualTurnover:    app.AnnualTurnover,
		NetProfit:         app.NetProfit,
		LoanAmount:        app.LoanAmount,
		UdyamRegistration: app.UdyamRegistration,
		BusinessPlan:      app.BusinessPlan,
		Derived:           deriveRatios(app),
	}

	if reason, ok := validatePlan(app.BusinessPlan); !ok {
		a.Score = 0
		a.Band = domain.BandRed
		a.Breakdown = []domain.ScoreComponent{{Reason: reason, Points: 0}}
		a.Recommendations = []string{reason}
		return s.persist(ctx, a)
	}

	score, breakdown := s.scoreApplication(ctx, app, a.Derived)
	a.Score = score
	a.Band = bandFor(score)
	a.Breakdown = breakdown
	if s.recommender != nil {
		a.Recommendations = s.recommender.Compose(ctx, app)
	}
	return s.persist(ctx, a)
}

// Get retrieves a persisted assessment by id.
func (s *AssessService) Get(ctx domain.Context, id string) (domain.Assessment, error) {
	return s.repo.Get(ctx, id)
}

func (s *AssessService) persist(ctx domain.Context, a domain.Assessment) (domain.Assessment, error) {
	id, err := s.repo.Create(ctx, a)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("op=assess.persist: %w", err)
	}
	a.ID = id
	observability.ObserveAssessment(a.Score, a.Band)
	return a, nil
}

// validatePlan gates the business plan before any prompt or storage sees it.
func validatePlan(plan string) (string, bool) {
	if len(plan) < minPlanLength {
		return "Business plan is too short; provide at least a few sentences covering the business model and use of funds.", false
	}
	if textx.ContainsPII(plan) {
		return "Business plan contains personal data (phone, identity, card or email); remove it and resubmit.", false
	}
	return "", true
}

func deriveRatios(app domain.LoanApplication) domain.DerivedRatios {
	var d domain.DerivedRatios
	if app.AnnualTurnover > 0 {
		d.ProfitMarginPct = app.NetProfit / app.AnnualTurnover * 100
		d.LoanToTurnoverPct = app.LoanAmount / app.AnnualTurnover * 100
	}
	return d
}

func (s *AssessService) scoreApplication(ctx domain.Context, app domain.LoanApplication, d domain.DerivedRatios) (int, []domain.ScoreComponent) {
	var breakdown []domain.ScoreComponent
	score := 0
	add := func(reason string, points int) {
		score += points
		breakdown = append(breakdown, domain.ScoreComponent{Reason: reason, Points: points})
	}

	if app.UdyamRegistration {
		add("Udyam registration verified", 2)
	}

	switch {
	case d.ProfitMarginPct >= 10:
		add("Strong profit margin (>=10%)", 3)
	case d.ProfitMarginPct >= 5:
		add("Healthy profit margin (>=5%)", 2)
	case d.ProfitMarginPct >= 2:
		add("Modest profit margin (>=2%)", 1)
	}

	switch {
	case d.LoanToTurnoverPct <= 10:
		add("Conservative loan-to-turnover ratio (<=10%)", 2)
	case d.LoanToTurnoverPct <= 20:
		add("Moderate loan-to-turnover ratio (<=20%)", 1)
	case d.LoanToTurnoverPct > 30:
		add("High loan-to-turnover ratio (>30%)", -1)
	}

	industry := strings.ToLower(app.IndustryType)
	if strings.Contains(industry, "manufacturing") || strings.Contains(industry, "services") {
		add("Priority industry sector", 1)
	}

	review := s.reviewPlan(ctx, app.BusinessPlan)
	switch {
	case review.Score >= 4:
		add("Strong business plan (AI review)", 2)
	case review.Score == 3:
		add("Adequate business plan (AI review)", 1)
	}

	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, breakdown
}

// reviewPlan asks the model to judge plan quality. Any failure falls back to
// a neutral review so the rule score still stands on its own.
func (s *AssessService) reviewPlan(ctx domain.Context, plan string) planReview {
	neutral := planReview{Valid: true, Score: 3}

	raw, err := s.ai.ChatJSON(ctx, planReviewSystemPrompt, "Business plan:\n"+plan, 200)
	if err != nil {
		slog.Warn("plan review call failed", slog.Any("error", err))
		return neutral
	}
	cleaned, err := s.cleaner.CleanAndValidateJSON(raw)
	if err != nil {
		slog.Warn("plan review returned invalid JSON", slog.Any("error", err))
		return neutral
	}
	var review planReview
	if err := json.Unmarshal([]byte(cleaned), &review); err != nil {
		slog.Warn("plan review parse failed", slog.Any("error", err))
		return neutral
	}
	if review.Score < 0 {
		review.Score = 0
	}
	if review.Score > 5 {
		review.Score = 5
	}
	return review
}

func bandFor(score int) string {
	switch {
	case score <= 3:
		return domain.BandRed
	case score <= 6:
		return domain.BandAmber
	case score <= 8:
		return domain.BandGreen
	default:
		return domain.BandEmerald
	}
}
