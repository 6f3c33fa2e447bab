package normalize

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var countriesYAML []byte

type countryEntry struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// countryIndex maps folded spellings (codes, names, aliases) to the entry.
var countryIndex = buildCountryIndex()

func buildCountryIndex() map[string]countryEntry {
	var table struct {
		Countries []countryEntry `yaml:"countries"`
	}
	if err := yaml.Unmarshal(countriesYAML, &table); err != nil {
		panic(fmt.Sprintf("normalize: bad embedded country table: %v", err))
	}

	idx := make(map[string]countryEntry, len(table.Countries)*3)
	for _, c := range table.Countries {
		idx[Clean(c.Code)] = c
		idx[Clean(c.Name)] = c
		for _, a := range c.Aliases {
			idx[Clean(a)] = c
		}
	}
	return idx
}

// Country resolves a free-text country value to its canonical ISO code and
// display name. The input is expected to already be Clean-ed; Country cleans
// it again so callers with raw input get the same answer.
func Country(s string) (code, name string, ok bool) {
	c, found := countryIndex[Clean(s)]
	if !found {
		return "", "", false
	}
	return c.Code, Clean(c.Name), true
}
