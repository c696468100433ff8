package similarity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreAllCriteria(t *testing.T) {
	current := Case{
		DocumentType:   "Habilitação de Crédito",
		PrimaryValue:   69600,
		Classification: "quirografário",
		Divergent:      true,
		PartyCount:     2,
		IssueCount:     3,
	}
	exemplar := Case{
		DocumentType:   "habilitacao de credito",
		PrimaryValue:   80000,
		Classification: "Quirografário",
		Divergent:      true,
		PartyCount:     2,
		IssueCount:     4,
	}

	score, reasons := Score(current, exemplar)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.LessOrEqual(t, score, 1.0)
	assert.Equal(t, []string{
		"same type (habilitacao de credito)",
		"same value band (high)",
		"same classification (quirografário)",
		"divergent calculations",
		"same party count (2)",
		"similar complexity",
	}, reasons)
}

func TestScorePartialMatches(t *testing.T) {
	current := Case{DocumentType: "Habilitação de Crédito", PrimaryValue: 69600}
	exemplar := Case{DocumentType: "Habilitação Retardatária", PrimaryValue: 20000}

	score, reasons := Score(current, exemplar)
	assert.InDelta(t, 0.3, score, 1e-9)
	assert.Equal(t, []string{"similar type", "similar value"}, reasons)
}

func TestScoreNonDivergentPairAddsNothing(t *testing.T) {
	score, _ := Score(Case{DocumentType: "Recurso"}, Case{DocumentType: "Recurso"})
	assert.InDelta(t, 0.4, score, 1e-9)
}

func TestScoreFloorWhenNothingMatches(t *testing.T) {
	score, reasons := Score(Case{DocumentType: "Apelação"}, Case{DocumentType: "Mandado de Segurança", PrimaryValue: 10})
	assert.Equal(t, 0.1, score)
	assert.Equal(t, []string{"same agent"}, reasons)
}

func TestValueBand(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{999.99, BandVeryLow},
		{1000, BandLow},
		{49999, BandMedium},
		{50000, BandHigh},
		{100000, BandVeryHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValueBand(tt.value), "value %v", tt.value)
	}
}

func seed(t *testing.T, store *MemoryStore) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	exemplars := []Exemplar{
		{ID: "old-match", AgentID: "a1", Processed: true, CreatedAt: base, Text: "modelo 1",
			Facts: Case{DocumentType: "Habilitação de Crédito", PrimaryValue: 70000}},
		{ID: "new-weak", AgentID: "a1", Processed: true, CreatedAt: base.Add(time.Hour), Text: "modelo 2",
			Facts: Case{DocumentType: "Apelação"}},
		{ID: "newest-partial", AgentID: "a1", Processed: true, CreatedAt: base.Add(2 * time.Hour), Text: "modelo 3",
			Facts: Case{DocumentType: "Habilitação Retardatária"}},
		{ID: "pending", AgentID: "a1", Processed: false, CreatedAt: base.Add(3 * time.Hour),
			Facts: Case{DocumentType: "Habilitação de Crédito"}},
		{ID: "other-agent", AgentID: "a2", Processed: true, CreatedAt: base,
			Facts: Case{DocumentType: "Habilitação de Crédito"}},
	}
	for _, ex := range exemplars {
		require.NoError(t, store.Save(context.Background(), ex))
	}
}

func TestFindSimilarRanksAndTruncates(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store)
	r := NewRetriever(store)

	got, err := r.FindSimilar(context.Background(), "a1", Case{DocumentType: "Habilitação de Crédito", PrimaryValue: 69600}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "old-match", got[0].ExemplarID)
	assert.InDelta(t, 0.6, got[0].Similarity, 1e-9)
	assert.Equal(t, "modelo 1", got[0].ExemplarText)
	assert.Equal(t, "newest-partial", got[1].ExemplarID)
	assert.InDelta(t, 0.2, got[1].Similarity, 1e-9)
}

func TestFindSimilarNeverEmptyWithHistory(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store)
	r := NewRetriever(store)

	got, err := r.FindSimilar(context.Background(), "a2", Case{DocumentType: "Agravo"}, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.1, got[0].Similarity)
	assert.NotEmpty(t, got[0].MatchReasons)
}

func TestFindSimilarWithoutHistory(t *testing.T) {
	r := NewRetriever(NewMemoryStore())
	got, err := r.FindSimilar(context.Background(), "nobody", Case{}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Find(context.Background(), "nobody", Case{}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindRecentSyntheticScores(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		require.NoError(t, store.Save(context.Background(), Exemplar{
			ID: fmt.Sprintf("ex-%d", i), AgentID: "a1", Processed: true, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	r := NewRetriever(store)

	got, err := r.FindRecent(context.Background(), "a1", 8)
	require.NoError(t, err)
	require.Len(t, got, 8)
	assert.Equal(t, "ex-7", got[0].ExemplarID)
	assert.InDelta(t, 0.3, got[0].Similarity, 1e-9)
	assert.InDelta(t, 0.25, got[1].Similarity, 1e-9)
	assert.InDelta(t, 0.01, got[6].Similarity, 1e-9)
	assert.InDelta(t, 0.01, got[7].Similarity, 1e-9)
	assert.Equal(t, []string{"recent exemplar"}, got[0].MatchReasons)

	got, err = r.FindRecent(context.Background(), "a1", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryStoreRequiresAgent(t *testing.T) {
	err := NewMemoryStore().Save(context.Background(), Exemplar{ID: "x"})
	assert.Error(t, err)
}
