package model

// RawRecord holds the untouched cell values of one submission row.
type RawRecord struct {
	SourceFile string `json:"source_file"`
	RowIndex   int    `json:"row_index"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Country    string `json:"country"`
}

// CandidateRecord is one submission row after normalization. It is immutable
// once produced; its fate is captured by a committed entity or a review item.
type CandidateRecord struct {
	SourceFile string    `json:"source_file"`
	RowIndex   int       `json:"row_index"`
	Raw        RawRecord `json:"raw"`

	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	Country     string     `json:"country,omitempty"`
	CountryCode string     `json:"country_code,omitempty"`

	// CountryUncertain is set when the raw country value did not resolve to
	// a canonical country and was passed through as-is. The matcher lowers
	// the country contribution for such records.
	CountryUncertain bool `json:"country_uncertain,omitempty"`
}

// FieldScore records how much a single field contributed to a match score.
type FieldScore struct {
	Field  string  `json:"field"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Match is a scored association between a candidate record and one existing
// entity. Scores are on a 0-100 scale.
type Match struct {
	EntityID   string       `json:"entity_id"`
	EntityName string       `json:"entity_name"`
	Score      float64      `json:"score"`
	Fields     []FieldScore `json:"fields,omitempty"`
}
