// Package memory provides in-memory repository implementations used when no
// database is configured.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

// AssessmentRepo stores assessments in process memory. Safe for concurrent
// use; contents are lost on restart.
type AssessmentRepo struct {
	mu sync.RWMutex
	m  map[string]domain.Assessment
}

// NewAssessmentRepo constructs an empty in-memory repository.
func NewAssessmentRepo() *AssessmentRepo {
	return &AssessmentRepo{m: make(map[string]domain.Assessment)}
}

// Create stores an assessment and returns its id (generates one if empty).
func (r *AssessmentRepo) Create(_ domain.Context, a domain.Assessment) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.m[a.ID] = a
	r.mu.Unlock()
	return a.ID, nil
}

// Get loads an assessment by id.
func (r *AssessmentRepo) Get(_ domain.Context, id string) (domain.Assessment, error) {
	r.mu.RLock()
	a, ok := r.m[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Assessment{}, fmt.Errorf("op=assessment.get: %w", domain.ErrNotFound)
	}
	return a, nil
}
