// Package model defines the core domain types shared across the
// reconciliation engine: graph entities, candidate records, matches,
// review items, and ingestion summaries.
package model

import "time"

// EntityType distinguishes the two kinds of canonical entities in the graph.
type EntityType string

const (
	EntityProduct    EntityType = "product"
	EntityIngredient EntityType = "ingredient"
)

// ParseEntityType maps a normalized cell value to an EntityType. It accepts
// singular and plural spellings; anything else yields an empty type.
func ParseEntityType(s string) EntityType {
	switch s {
	case "product", "products":
		return EntityProduct
	case "ingredient", "ingredients":
		return EntityIngredient
	default:
		return ""
	}
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	return t == EntityProduct || t == EntityIngredient
}

// Entity is a canonical product or ingredient as stored in the external
// graph. The graph store owns these records; this side only reads them and
// proposes writes through the gateway.
type Entity struct {
	ID        string     `json:"id"`
	Type      EntityType `json:"type"`
	Name      string     `json:"name"`
	Country   string     `json:"country,omitempty"`
	Aliases   []string   `json:"aliases,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
}
