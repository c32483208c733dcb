package citation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/msme-loan-scorer/internal/citation"
)

func TestCleanResponseRemovesUnresolvedReferencesBlock(t *testing.T) {
	t.Parallel()
	in := "Working capital loans require Udyam registration.\n\n### References\n[1] unknown_source\n"
	got := citation.CleanResponse(in)
	assert.Equal(t, "Working capital loans require Udyam registration.", got)
}

func TestCleanResponseKeepsResolvedReferences(t *testing.T) {
	t.Parallel()
	in := "Answer body.\n\n### References\n[1] MSME Loan.pdf"
	got := citation.CleanResponse(in)
	assert.Equal(t, "Answer body.\n\n### References\n[1] MSME Loan.pdf", got)
}

func TestCleanResponseMixedReferencesDropsOnlyUnresolved(t *testing.T) {
	t.Parallel()
	in := "Body.\n\nReferences:\n[1] unknown_source\n[2] Guidelines.pdf\n"
	got := citation.CleanResponse(in)
	assert.Equal(t, "Body.\n\nReferences:\n[2] Guidelines.pdf", got)
}

func TestCleanResponseStripsInlineUnresolvedCitationLine(t *testing.T) {
	t.Parallel()
	in := "First point.\n[3] unknown_source\nSecond point."
	got := citation.CleanResponse(in)
	assert.Equal(t, "First point.\nSecond point.", got)
}

func TestCleanResponseIdempotent(t *testing.T) {
	t.Parallel()
	in := "Answer.\n\n## References\n[1] unknown_source\n[2] unknown_source\n\nTrailing paragraph."
	once := citation.CleanResponse(in)
	twice := citation.CleanResponse(once)
	assert.Equal(t, once, twice)
	assert.NotContains(t, once, "unknown_source")
	assert.Contains(t, once, "Trailing paragraph.")
}

func TestCleanResponseEmptyAndPlainInputsUnchanged(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", citation.CleanResponse(""))
	assert.Equal(t, "No citations here.", citation.CleanResponse("No citations here."))
}
