package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai"
)

func TestIsRefusal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"I'm sorry, I cannot answer that.", true},
		{"I apologize, but no relevant context was found.", true},
		{"  i'm sorry, nothing matched.", true},
		{"MSME loans require Udyam registration.", false},
		{"Sorry documentation is listed in section 3.", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ai.IsRefusal(tt.in), "input %q", tt.in)
	}
}
