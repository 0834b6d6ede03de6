package deepresearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_FencedBlock(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"queries\": [{\"query\": \"go generics\", \"researchGoal\": \"overview\"}]}\n```\nLet me know if that works."
	var out plannerResponse
	err := ExtractJSON(raw, "queries", &out)
	require.NoError(t, err)
	require.Len(t, out.Queries, 1)
	assert.Equal(t, "go generics", out.Queries[0].Query)
}

func TestExtractJSON_BalancedObjectWithoutFence(t *testing.T) {
	raw := `Sure thing. {"learnings": ["a", "b"], "followUpQuestions": []} Hope that helps.`
	var out processorResponse
	err := ExtractJSON(raw, "learnings", &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Learnings)
}

func TestExtractJSON_BraceInsideString(t *testing.T) {
	raw := `{"learnings": ["contains a { brace } inside"], "followUpQuestions": []}`
	var out processorResponse
	err := ExtractJSON(raw, "learnings", &out)
	require.NoError(t, err)
	require.Len(t, out.Learnings, 1)
	assert.Contains(t, out.Learnings[0], "brace")
}

func TestExtractJSON_WholeText(t *testing.T) {
	raw := `{"queries": [{"query": "x", "researchGoal": "y"}]}`
	var out plannerResponse
	err := ExtractJSON(raw, "queries", &out)
	require.NoError(t, err)
	require.Len(t, out.Queries, 1)
}

func TestExtractJSON_NoCandidateMatches(t *testing.T) {
	raw := "no json here at all, sorry."
	var out plannerResponse
	err := ExtractJSON(raw, "queries", &out)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadResponse))
}

func TestExtractJSON_RequiredKeyMissingFallsBackToWholeText(t *testing.T) {
	// The whole-text tier still unmarshals successfully (json.Unmarshal
	// tolerates missing fields); it just yields a zero-value result.
	raw := `{"other": 1}`
	var out plannerResponse
	err := ExtractJSON(raw, "queries", &out)
	require.NoError(t, err)
	assert.Empty(t, out.Queries)
}
