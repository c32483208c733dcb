package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/msme-loan-scorer/internal/config"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/internal/usecase"
)

// maxBodyBytes bounds request bodies on the JSON endpoints.
const maxBodyBytes = 1 << 20

// Server aggregates handler dependencies.
type Server struct {
	Cfg    config.Config
	Assess *usecase.AssessService
	Search *usecase.SearchService

	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
	QdrantCheck func(ctx context.Context) error
	TikaCheck   func(ctx context.Context) error
}

var validate = validator.New()

type assessRequest struct {
	BusinessName      string  `json:"business_name" validate:"required,max=200"`
	IndustryType      string  `json:"industry_type" validate:"required,max=100"`
	AnnualTurnover    float64 `json:"annual_turnover" validate:"required,gt=0"`
	NetProfit         float64 `json:"net_profit"`
	LoanAmount        float64 `json:"loan_amount" validate:"required,gt=0"`
	UdyamRegistration bool    `json:"udyam_registration"`
	BusinessPlan      string  `json:"business_plan" validate:"required"`
}

type assessResponse struct {
	ID                string                  `json:"id"`
	BusinessName      string                  `json:"business_name"`
	Score             int                     `json:"score"`
	Band              string                  `json:"band"`
	Breakdown         []domain.ScoreComponent `json:"breakdown"`
	Derived           domain.DerivedRatios    `json:"derived"`
	Recommendations   []string                `json:"recommendations"`
	UdyamRegistration bool                    `json:"udyam_registration"`
	CreatedAt         time.Time               `json:"created_at,omitempty"`
}

type searchRequest struct {
	Query        string `json:"query" validate:"required,max=500"`
	TopK         int    `json:"top_k" validate:"omitempty,min=1,max=20"`
	EnableRerank bool   `json:"enable_rerank"`
}

type generateRequest struct {
	Query string `json:"query" validate:"required,max=500"`
}

// decodeAndValidate parses the JSON body into dst and runs struct validation.
func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidArgument, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// AssessHandler scores a loan application.
func (s *Server) AssessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assessRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if limit := s.Cfg.BusinessPlanCharLimit; limit > 0 && len(req.BusinessPlan) > limit {
			writeError(w, r, fmt.Errorf("%w: business_plan exceeds %d characters", domain.ErrInvalidArgument, limit), nil)
			return
		}

		a, err := s.Assess.Assess(r.Context(), domain.LoanApplication{
			BusinessName:      req.BusinessName,
			IndustryType:      req.IndustryType,
			AnnualTurnover:    req.AnnualTurnover,
			NetProfit:         req.NetProfit,
			LoanAmount:        req.LoanAmount,
			UdyamRegistration: req.UdyamRegistration,
			BusinessPlan:      req.BusinessPlan,
		})
		if err != nil {
			LoggerFrom(r).Error("assessment failed", "error", err)
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toAssessResponse(a))
	}
}

// AssessmentGetHandler retrieves a persisted assessment by id.
func (s *Server) AssessmentGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: missing assessment id", domain.ErrInvalidArgument), nil)
			return
		}
		a, err := s.Assess.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toAssessResponse(a))
	}
}

func toAssessResponse(a domain.Assessment) assessResponse {
	return assessResponse{
		ID:                a.ID,
		BusinessName:      a.BusinessName,
		Score:             a.Score,
		Band:              a.Band,
		Breakdown:         a.Breakdown,
		Derived:           a.Derived,
		Recommendations:   a.Recommendations,
		UdyamRegistration: a.UdyamRegistration,
		CreatedAt:         a.CreatedAt,
	}
}

// SearchHandler returns cited policy excerpts for a query.
func (s *Server) SearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		results := s.Search.Search(r.Context(), req.Query, req.TopK, req.EnableRerank)
		writeJSON(w, http.StatusOK, map[string]any{
			"query":   req.Query,
			"results": results,
			"count":   len(results),
		})
	}
}

// GenerateHandler returns a cleaned free-text answer for a query.
func (s *Server) GenerateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		answer := s.Search.Generate(r.Context(), req.Query)
		writeJSON(w, http.StatusOK, map[string]any{
			"query":  req.Query,
			"answer": answer,
		})
	}
}

// DocumentsHandler lists the ingested policy documents.
func (s *Server) DocumentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs := s.Search.Documents()
		writeJSON(w, http.StatusOK, map[string]any{
			"documents": docs,
			"count":     len(docs),
		})
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler reports readiness of the service's dependencies. Optional
// dependencies (nil checks) are skipped.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		name string
		fn   func(ctx context.Context) error
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := []check{
			{"db", s.DBCheck},
			{"redis", s.RedisCheck},
			{"qdrant", s.QdrantCheck},
			{"tika", s.TikaCheck},
		}
		status := make(map[string]string, len(checks))
		healthy := true
		for _, c := range checks {
			if c.fn == nil {
				status[c.name] = "skipped"
				continue
			}
			if err := c.fn(ctx); err != nil {
				status[c.name] = "unhealthy: " + err.Error()
				healthy = false
				continue
			}
			status[c.name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"checks": status})
	}
}
