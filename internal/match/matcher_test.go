package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
	"github.com/tradecraft-foods/reconcile-cli/internal/normalize"
)

func candidate(name, country string) model.CandidateRecord {
	return normalize.Record(model.RawRecord{Name: name, Type: "product", Country: country})
}

func TestMatch_ExactNameAndCountryScores100(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "e1", Type: model.EntityProduct, Name: "cane sugar", Country: "US"},
	}

	matches := m.Match(candidate("Cane Sugar", "US"), pool)
	require.Len(t, matches, 1)
	assert.InDelta(t, 100, matches[0].Score, 0.001)
}

func TestMatch_SupersetNameLandsInReviewBand(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "e1", Type: model.EntityProduct, Name: "cane sugar", Country: "US"},
	}

	// Token-set ratio is 100 (subset) but the edit similarity drags the
	// name score down; with matching countries the combined score sits
	// between the fuzzy and auto thresholds.
	matches := m.Match(candidate("organic cane sugar", "US"), pool)
	require.Len(t, matches, 1)
	assert.GreaterOrEqual(t, matches[0].Score, 80.0)
	assert.Less(t, matches[0].Score, 95.0)
}

func TestMatch_CountryMismatchLowersScore(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "same", Type: model.EntityProduct, Name: "cane sugar", Country: "US"},
		{ID: "diff", Type: model.EntityProduct, Name: "cane sugar", Country: "BR"},
	}

	matches := m.Match(candidate("cane sugar", "US"), pool)
	require.Len(t, matches, 2)
	assert.Equal(t, "same", matches[0].EntityID)
	assert.Equal(t, "diff", matches[1].EntityID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMatch_UncertainCountryHalvesCountryWeight(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "e1", Type: model.EntityProduct, Name: "cane sugar", Country: "US"},
	}

	certain := m.Match(candidate("cane sugar", "Brazil"), pool)
	uncertain := m.Match(candidate("cane sugar", "Freedonia"), pool)
	require.Len(t, certain, 1)
	require.Len(t, uncertain, 1)

	// Both mismatch on country, but the unresolved country contributes
	// only half the penalty.
	assert.Greater(t, uncertain[0].Score, certain[0].Score)
}

func TestMatch_AbsentCountryScoresNameOnly(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "e1", Type: model.EntityProduct, Name: "cane sugar", Country: "BR"},
	}

	matches := m.Match(candidate("cane sugar", ""), pool)
	require.Len(t, matches, 1)
	assert.InDelta(t, 100, matches[0].Score, 0.001)
}

func TestMatch_TypeFilter(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "p1", Type: model.EntityProduct, Name: "paprika"},
		{ID: "i1", Type: model.EntityIngredient, Name: "paprika"},
	}

	matches := m.Match(candidate("paprika", ""), pool)
	require.Len(t, matches, 1)
	assert.Equal(t, "p1", matches[0].EntityID)
}

func TestMatch_FloorExcludesWeakMatches(t *testing.T) {
	m := New(50)
	pool := []model.Entity{
		{ID: "e1", Type: model.EntityProduct, Name: "completely unrelated thing"},
	}

	matches := m.Match(candidate("cane sugar", ""), pool)
	assert.Empty(t, matches)
}

func TestMatch_AliasImprovesScore(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "e1", Type: model.EntityProduct, Name: "sucrose", Aliases: []string{"cane sugar"}},
	}

	matches := m.Match(candidate("cane sugar", ""), pool)
	require.Len(t, matches, 1)
	assert.InDelta(t, 100, matches[0].Score, 0.001)
	assert.Equal(t, "sucrose", matches[0].EntityName)
}

func TestMatch_TieBreakByAliasCountThenID(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "b", Type: model.EntityProduct, Name: "cane sugar"},
		{ID: "a", Type: model.EntityProduct, Name: "cane sugar"},
		{ID: "c", Type: model.EntityProduct, Name: "cane sugar", Aliases: []string{"sugar", "sucrose"}},
	}

	matches := m.Match(candidate("cane sugar", ""), pool)
	require.Len(t, matches, 3)
	assert.Equal(t, "c", matches[0].EntityID) // most aliases first
	assert.Equal(t, "a", matches[1].EntityID) // then lexical id order
	assert.Equal(t, "b", matches[2].EntityID)
}

func TestMatch_Deterministic(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "e1", Type: model.EntityProduct, Name: "cane sugar", Country: "US"},
		{ID: "e2", Type: model.EntityProduct, Name: "organic sugar", Country: "US"},
		{ID: "e3", Type: model.EntityProduct, Name: "raw cane sugar", Country: "BR"},
	}
	rec := candidate("organic cane sugar", "US")

	first := m.Match(rec, pool)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.Match(rec, pool))
	}
}

func TestMatch_FieldBreakdown(t *testing.T) {
	m := New(5)
	pool := []model.Entity{
		{ID: "e1", Type: model.EntityProduct, Name: "cane sugar", Country: "US"},
	}

	matches := m.Match(candidate("cane sugar", "US"), pool)
	require.Len(t, matches, 1)

	byField := map[string]model.FieldScore{}
	for _, f := range matches[0].Fields {
		byField[f.Field] = f
	}
	require.Contains(t, byField, "name_token_set")
	require.Contains(t, byField, "name_edit")
	require.Contains(t, byField, "country")
	assert.InDelta(t, 100, byField["country"].Score, 0.001)
}

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "cane sugar", "cane sugar", 100},
		{"subset", "organic cane sugar", "cane sugar", 100},
		{"word order", "sugar cane", "cane sugar", 100},
		{"both empty", "", "", 100},
		{"one empty", "cane sugar", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tokenSetRatio(tt.a, tt.b), 0.001)
		})
	}
}

func TestTokenSetRatio_Disjoint(t *testing.T) {
	got := tokenSetRatio("paprika", "vanilla extract")
	assert.Less(t, got, 50.0)
}
