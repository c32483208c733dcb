// Package postgres provides PostgreSQL database adapters.
//
// It implements repository interfaces for data persistence.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AssessmentRepo persists and loads loan assessments using a minimal pgx pool.
type AssessmentRepo struct{ Pool PgxPool }

// NewAssessmentRepo constructs an AssessmentRepo with the given pool.
func NewAssessmentRepo(p PgxPool) *AssessmentRepo { return &AssessmentRepo{Pool: p} }

// Create stores a completed assessment and returns its id (generates one if empty).
func (r *AssessmentRepo) Create(ctx domain.Context, a domain.Assessment) (string, error) {
	tracer := otel.Tracer("repo.assessments")
	ctx, span := tracer.Start(ctx, "assessments.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "assessments"),
	)
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	breakdown, err := json.Marshal(a.Breakdown)
	if err != nil {
		return "", fmt.Errorf("op=assessment.create: %w", err)
	}
	recs, err := json.Marshal(a.Recommendations)
	if err != nil {
		return "", fmt.Errorf("op=assessment.create: %w", err)
	}
	q := `INSERT INTO assessments
		(id, business_name, industry_type, annual_turnover, net_profit, loan_amount,
		 udyam_registration, business_plan, score, band, breakdown,
		 profit_margin_pct, loan_to_turnover_pct, recommendations, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = r.Pool.Exec(ctx, q, id, a.BusinessName, a.IndustryType, a.AnnualTurnover, a.NetProfit,
		a.LoanAmount, a.UdyamRegistration, a.BusinessPlan, a.Score, a.Band, breakdown,
		a.Derived.ProfitMarginPct, a.Derived.LoanToTurnoverPct, recs, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=assessment.create: %w", err)
	}
	return id, nil
}

// Get loads an assessment by id.
func (r *AssessmentRepo) Get(ctx domain.Context, id string) (domain.Assessment, error) {
	tracer := otel.Tracer("repo.assessments")
	ctx, span := tracer.Start(ctx, "assessments.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "assessments"),
	)
	q := `SELECT id, business_name, industry_type, annual_turnover, net_profit, loan_amount,
		udyam_registration, business_plan, score, band, breakdown,
		profit_margin_pct, loan_to_turnover_pct, recommendations, created_at
		FROM assessments WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var (
		a         domain.Assessment
		breakdown []byte
		recs      []byte
	)
	if err := row.Scan(&a.ID, &a.BusinessName, &a.IndustryType, &a.AnnualTurnover, &a.NetProfit,
		&a.LoanAmount, &a.UdyamRegistration, &a.BusinessPlan, &a.Score, &a.Band, &breakdown,
		&a.Derived.ProfitMarginPct, &a.Derived.LoanToTurnoverPct, &recs, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Assessment{}, fmt.Errorf("op=assessment.get: %w", domain.ErrNotFound)
		}
		return domain.Assessment{}, fmt.Errorf("op=assessment.get: %w", err)
	}
	if err := json.Unmarshal(breakdown, &a.Breakdown); err != nil {
		return domain.Assessment{}, fmt.Errorf("op=assessment.get: %w", err)
	}
	if err := json.Unmarshal(recs, &a.Recommendations); err != nil {
		return domain.Assessment{}, fmt.Errorf("op=assessment.get: %w", err)
	}
	return a, nil
}
