package usecase

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/pkg/textx"
)

// udyamRecommendation is returned without any engine call when the mandatory
// registration is missing.
const udyamRecommendation = "Recommendation: Obtain Udyam registration before applying. Udyam registration is mandatory for MSME loan schemes. User should: register the business on the Udyam portal (udyamregistration.gov.in), obtain the registration certificate, and reapply with the Udyam number."

// recommendationFallback is used when generation yields nothing usable.
const recommendationFallback = "Recommendation: Maintain audited financial records and a clear repayment plan. User should: prepare the last two years of financial statements, document the intended use of funds, and consult the lending policy for scheme-specific requirements."

// planPromptTokenBudget caps how much plan text is embedded in the prompt.
const planPromptTokenBudget = 600

// excerptLimit caps excerpt length in document-based recommendations.
const excerptLimit = 200

// AnswerGenerator produces a free-text advisory answer for a prompt.
type AnswerGenerator interface {
	Generate(ctx domain.Context, query string) string
}

// ExcerptSearcher retrieves cited policy excerpts.
type ExcerptSearcher interface {
	Search(ctx domain.Context, query string, topK int, enableRerank bool) []domain.RetrievedResult
}

// RecommendService composes loan-advisory recommendations: one generated
// recommendation plus cited policy excerpts.
type RecommendService struct {
	generator AnswerGenerator
	searcher  ExcerptSearcher
	counter   *tokencount.Counter
	chatModel string
}

// NewRecommendService wires the composer. searcher may be nil; excerpt
// recommendations are then omitted.
func NewRecommendService(generator AnswerGenerator, searcher ExcerptSearcher, chatModel string) *RecommendService {
	return &RecommendService{
		generator: generator,
		searcher:  searcher,
		counter:   tokencount.NewCounter(),
		chatModel: chatModel,
	}
}

// Compose returns recommendations for the application. Applications without
// Udyam registration short-circuit to the fixed registration advisory.
func (s *RecommendService) Compose(ctx domain.Context, app domain.LoanApplication) []string {
	if !app.UdyamRegistration {
		return []string{udyamRecommendation}
	}

	out := []string{s.generateRecommendation(ctx, app)}
	out = append(out, s.excerptRecommendations(ctx, app)...)
	return out
}

func (s *RecommendService) generateRecommendation(ctx domain.Context, app domain.LoanApplication) string {
	plan := s.counter.TruncateToBudget(textx.SanitizeHTML(app.BusinessPlan), s.chatModel, planPromptTokenBudget)
	prompt := fmt.Sprintf(
		"An MSME in the %s sector with annual turnover %.0f requests a loan of %.0f. Business plan: %s\n"+
			"Give one loan-advisory recommendation grounded in MSME lending policy. "+
			"Answer in exactly this format:\nRecommendation: <one sentence>\nUser should: <concrete next steps>",
		app.IndustryType, app.AnnualTurnover, app.LoanAmount, plan)

	generated := strings.TrimSpace(s.generator.Generate(ctx, prompt))
	if generated == "" || ai.IsRefusal(generated) {
		return recommendationFallback
	}
	if !strings.HasPrefix(generated, "Recommendation:") {
		generated = "Recommendation: " + generated
	}
	return generated
}

func (s *RecommendService) excerptRecommendations(ctx domain.Context, app domain.LoanApplication) []string {
	if s.searcher == nil {
		return nil
	}
	query := fmt.Sprintf("loan eligibility and scheme requirements for %s MSME", app.IndustryType)
	results := s.searcher.Search(ctx, query, 3, false)
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.DocumentMetadata == nil || strings.TrimSpace(r.Content) == "" {
			continue
		}
		out = append(out, fmt.Sprintf("[From %s] %s",
			r.DocumentMetadata.DocumentName, textx.Truncate(strings.TrimSpace(r.Content), excerptLimit)))
	}
	return out
}
