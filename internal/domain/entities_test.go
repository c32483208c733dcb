package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

func TestEngineResponseConstructors(t *testing.T) {
	t.Parallel()

	txt := domain.TextResponse("answer")
	assert.Equal(t, domain.ResponseText, txt.Kind)
	assert.Equal(t, "answer", txt.Text)

	sc := 0.9
	obj := domain.ObjectResponse(domain.EngineObject{Content: "c", Score: &sc})
	assert.Equal(t, domain.ResponseObject, obj.Kind)
	assert.Equal(t, "c", obj.Object.Content)

	lst := domain.ListResponse([]domain.EngineItem{{IsText: true, Text: "a"}})
	assert.Equal(t, domain.ResponseList, lst.Kind)
	assert.Len(t, lst.Items, 1)
}

func TestErrorSentinelsDistinct(t *testing.T) {
	t.Parallel()
	errs := []error{
		domain.ErrInvalidArgument,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrUpstreamTimeout,
		domain.ErrInternal,
	}
	seen := map[string]bool{}
	for _, e := range errs {
		assert.False(t, seen[e.Error()], e.Error())
		seen[e.Error()] = true
	}
}
