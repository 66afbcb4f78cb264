package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/engine/internal/entities"
)

func TestParseSuggestions_DecodesLLMResponse(t *testing.T) {
	text := `[{"title":"Clair de Lune","artist":"Debussy","album":"Suite Bergamasque","confidence":0.92}]`

	suggestions, err := parseSuggestions(text, "llm")
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Clair de Lune", suggestions[0].Title)
	assert.Equal(t, "llm", suggestions[0].Source)
	require.NotNil(t, suggestions[0].Album)
	assert.Equal(t, "Suite Bergamasque", *suggestions[0].Album)
}

func TestParseSuggestions_RejectsNonJSON(t *testing.T) {
	_, err := parseSuggestions("not json at all", "llm")
	assert.Error(t, err)
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthsScoreZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
}

func TestHummingSearch_RanksByCombinedScoreAndRespectsLimit(t *testing.T) {
	h := NewHummingSearch(t.TempDir())
	queryMFCC := []float64{1, 0, 0}
	queryChroma := []float64{1, 0}

	library := []Fingerprint{
		{Suggestion: entities.SongSuggestion{Title: "Exact Match"}, MFCC: []float64{1, 0, 0}, Chroma: []float64{1, 0}},
		{Suggestion: entities.SongSuggestion{Title: "Orthogonal"}, MFCC: []float64{0, 1, 0}, Chroma: []float64{0, 1}},
		{Suggestion: entities.SongSuggestion{Title: "Partial"}, MFCC: []float64{1, 1, 0}, Chroma: []float64{1, 0}},
	}

	results := h.Search(queryMFCC, queryChroma, library, 2, 0.1)

	require.Len(t, results, 2)
	assert.Equal(t, "Exact Match", results[0].Title)
	assert.InDelta(t, 1.0, results[0].Confidence, 1e-9)
	assert.Equal(t, "humming", results[0].Source)
}

func TestHummingSearch_FiltersBelowMinConfidence(t *testing.T) {
	h := NewHummingSearch(t.TempDir())
	library := []Fingerprint{
		{Suggestion: entities.SongSuggestion{Title: "Orthogonal"}, MFCC: []float64{0, 1}, Chroma: []float64{0, 1}},
	}

	results := h.Search([]float64{1, 0}, []float64{1, 0}, library, 5, 0.5)
	assert.Empty(t, results)
}
