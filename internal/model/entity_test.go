package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in   string
		want EntityType
	}{
		{"product", EntityProduct},
		{"products", EntityProduct},
		{"ingredient", EntityIngredient},
		{"ingredients", EntityIngredient},
		{"widget", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEntityType(tt.in))
		})
	}
}

func TestEntityTypeValid(t *testing.T) {
	assert.True(t, EntityProduct.Valid())
	assert.True(t, EntityIngredient.Valid())
	assert.False(t, EntityType("").Valid())
	assert.False(t, EntityType("widget").Valid())
}

func TestReviewStatusTerminal(t *testing.T) {
	assert.False(t, ReviewPending.Terminal())
	assert.True(t, ReviewApprovedMatch.Terminal())
	assert.True(t, ReviewApprovedNew.Terminal())
	assert.True(t, ReviewIgnored.Terminal())
}
