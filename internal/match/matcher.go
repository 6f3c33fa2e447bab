// Package match scores candidate records against the pool of known graph
// entities. Matching is deterministic: identical inputs always produce the
// same ordered result, which keeps re-runs reproducible.
package match

import (
	"sort"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
	"github.com/tradecraft-foods/reconcile-cli/internal/normalize"
)

// Weights controls how the per-field similarities combine into one score.
// TokenSet and Edit split the name score between the token-set ratio and the
// plain edit-distance similarity; Country is the share of the combined score
// given to country equality when both sides carry a country.
type Weights struct {
	TokenSet float64
	Edit     float64
	Country  float64
}

// DefaultWeights returns the tuned weighting. With these values a candidate
// like "organic cane sugar" scores ~85 against an entity "cane sugar" in the
// same country: inside the review band, not high enough to auto-resolve.
func DefaultWeights() Weights {
	return Weights{TokenSet: 0.6, Edit: 0.4, Country: 0.15}
}

// Matcher ranks pool entities against normalized candidate records.
type Matcher struct {
	weights Weights

	// floor excludes matches scoring below it to bound result size.
	floor float64
}

// New creates a Matcher with the default weights and the given score floor.
func New(floor float64) *Matcher {
	return &Matcher{weights: DefaultWeights(), floor: floor}
}

// NewWithWeights creates a Matcher with explicit weights.
func NewWithWeights(w Weights, floor float64) *Matcher {
	return &Matcher{weights: w, floor: floor}
}

// Match scores rec against every same-type entity in pool and returns the
// matches at or above the floor, ordered by score descending. Ties are broken
// by alias count (more established entities first), then entity ID.
func (m *Matcher) Match(rec model.CandidateRecord, pool []model.Entity) []model.Match {
	aliasCount := make(map[string]int, len(pool))

	var out []model.Match
	for _, ent := range pool {
		if ent.Type != rec.Type {
			continue
		}
		mt := m.score(rec, ent)
		if mt.Score < m.floor {
			continue
		}
		aliasCount[ent.ID] = len(ent.Aliases)
		out = append(out, mt)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		ai, aj := aliasCount[out[i].EntityID], aliasCount[out[j].EntityID]
		if ai != aj {
			return ai > aj
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

func (m *Matcher) score(rec model.CandidateRecord, ent model.Entity) model.Match {
	nameWeightTotal := m.weights.TokenSet + m.weights.Edit

	// Best name similarity across the entity name and all known aliases.
	var bestTS, bestEdit, bestName float64
	for _, name := range append([]string{ent.Name}, ent.Aliases...) {
		ts := tokenSetRatio(rec.Name, name)
		es := editSimilarity(rec.Name, name)
		combined := (m.weights.TokenSet*ts + m.weights.Edit*es) / nameWeightTotal
		if combined > bestName {
			bestName, bestTS, bestEdit = combined, ts, es
		}
	}

	fields := []model.FieldScore{
		{Field: "name_token_set", Score: bestTS, Weight: m.weights.TokenSet / nameWeightTotal},
		{Field: "name_edit", Score: bestEdit, Weight: m.weights.Edit / nameWeightTotal},
	}

	score := bestName
	if rec.Country != "" && ent.Country != "" {
		cw := m.weights.Country
		if rec.CountryUncertain {
			cw /= 2
		}
		eq := 0.0
		if countriesEqual(rec, ent) {
			eq = 100
		}
		score = (1-cw)*bestName + cw*eq
		fields = append(fields, model.FieldScore{Field: "country", Score: eq, Weight: cw})
	}

	return model.Match{
		EntityID:   ent.ID,
		EntityName: ent.Name,
		Score:      clamp(score),
		Fields:     fields,
	}
}

// countriesEqual compares on canonical ISO code when both sides resolve,
// otherwise on the folded country string.
func countriesEqual(rec model.CandidateRecord, ent model.Entity) bool {
	entCode, entName, entOK := normalize.Country(ent.Country)
	if rec.CountryCode != "" && entOK {
		return rec.CountryCode == entCode
	}
	entCountry := normalize.Clean(ent.Country)
	if entOK {
		entCountry = entName
	}
	return rec.Country == entCountry
}

func clamp(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
