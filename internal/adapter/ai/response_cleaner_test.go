package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai"
)

func TestCleanJSONResponse(t *testing.T) {
	t.Parallel()

	rc := ai.NewResponseCleaner()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain json untouched",
			in:   `{"valid": true, "quality_score": 4}`,
			want: `{"valid": true, "quality_score": 4}`,
		},
		{
			name: "markdown fenced",
			in:   "```json\n{\"valid\": false, \"quality_score\": 1}\n```",
			want: `{"valid": false, "quality_score": 1}`,
		},
		{
			name: "prose around object",
			in:   "Here is my review:\n{\"valid\": true, \"quality_score\": 3}\nHope that helps!",
			want: `{"valid": true, "quality_score": 3}`,
		},
		{
			name: "trailing comma",
			in:   `{"valid": true, "quality_score": 5,}`,
			want: `{"valid": true, "quality_score": 5}`,
		},
		{
			name: "nested object extraction",
			in:   `noise {"a": {"b": 1}} more noise`,
			want: `{"a": {"b": 1}}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rc.CleanJSONResponse(tt.in)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestCleanAndValidateJSON(t *testing.T) {
	t.Parallel()

	rc := ai.NewResponseCleaner()

	got, err := rc.CleanAndValidateJSON("```json\n{\"valid\": true, \"quality_score\": 2}\n```")
	require.NoError(t, err)
	assert.True(t, rc.IsValidJSON(got))

	_, err = rc.CleanAndValidateJSON("this is not json at all")
	require.Error(t, err)
	var vErr *ai.JSONValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestIsValidJSON(t *testing.T) {
	t.Parallel()

	rc := ai.NewResponseCleaner()
	assert.True(t, rc.IsValidJSON(`{"a":1}`))
	assert.True(t, rc.IsValidJSON(`[1,2]`))
	assert.False(t, rc.IsValidJSON(`{"a":}`))
}
