package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Organic Cane Sugar", "organic cane sugar"},
		{"collapse whitespace", "  cane \t sugar  ", "cane sugar"},
		{"null sentinel", "NULL", ""},
		{"none sentinel", "None", ""},
		{"na sentinel", "N/A", ""},
		{"dash sentinel", "-", ""},
		{"nan sentinel", "NaN", ""},
		{"empty", "", ""},
		{"unicode fold", "Kaﬀee", "kaffee"},
		{"fullwidth digits", "ｓｕｇａｒ１", "sugar1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestCountry(t *testing.T) {
	tests := []struct {
		in       string
		wantCode string
		wantOK   bool
	}{
		{"US", "US", true},
		{"usa", "US", true},
		{"United States", "US", true},
		{"america", "US", true},
		{"UK", "GB", true},
		{"great britain", "GB", true},
		{"Deutschland", "DE", true},
		{"narnia", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			code, _, ok := Country(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestRecord(t *testing.T) {
	rec := Record(model.RawRecord{
		SourceFile: "suppliers.csv",
		RowIndex:   3,
		Name:       "  Organic CANE Sugar ",
		Type:       "Products",
		Country:    "USA",
	})

	assert.Equal(t, "suppliers.csv", rec.SourceFile)
	assert.Equal(t, 3, rec.RowIndex)
	assert.Equal(t, "organic cane sugar", rec.Name)
	assert.Equal(t, model.EntityProduct, rec.Type)
	assert.Equal(t, "US", rec.CountryCode)
	assert.False(t, rec.CountryUncertain)
}

func TestRecord_UnrecognizedCountryPassesThrough(t *testing.T) {
	rec := Record(model.RawRecord{
		Name:    "paprika",
		Type:    "ingredient",
		Country: "Freedonia",
	})

	require.Equal(t, model.EntityIngredient, rec.Type)
	assert.Equal(t, "freedonia", rec.Country)
	assert.Empty(t, rec.CountryCode)
	assert.True(t, rec.CountryUncertain)
}

func TestRecord_NullCountry(t *testing.T) {
	rec := Record(model.RawRecord{Name: "salt", Type: "ingredient", Country: "N/A"})

	assert.Empty(t, rec.Country)
	assert.Empty(t, rec.CountryCode)
	assert.False(t, rec.CountryUncertain)
}

func TestRecord_UnknownTypeYieldsInvalid(t *testing.T) {
	rec := Record(model.RawRecord{Name: "salt", Type: "widget"})
	assert.False(t, rec.Type.Valid())
}

func TestRecord_EmptyNameStillNormalizes(t *testing.T) {
	rec := Record(model.RawRecord{Name: "   ", Type: "product", Country: "US"})
	assert.Empty(t, rec.Name)
	assert.Equal(t, model.EntityProduct, rec.Type)
}
