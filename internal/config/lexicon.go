package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"commsight/internal/errors"
)

// Category is one risk category in the lexicon: a name, a weight, and the
// keyword/phrase patterns that count as hits.
type Category struct {
	Name     string   `json:"category" yaml:"category" mapstructure:"category"`
	Weight   int      `json:"weight" yaml:"weight" mapstructure:"weight"`
	Patterns []string `json:"patterns" yaml:"patterns" mapstructure:"patterns"`
}

// lexiconFile is the on-disk YAML shape of a standalone lexicon.
type lexiconFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadLexicon reads a lexicon from a YAML file.
func LoadLexicon(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.InvalidConfiguration, "failed to read lexicon file", err)
	}

	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.New(errors.InvalidConfiguration, "failed to parse lexicon file", err)
	}

	return file.Categories, nil
}

// ValidateLexicon checks the lexicon eagerly. A broken lexicon is fatal:
// every score depends on it.
func ValidateLexicon(lexicon []Category) error {
	if len(lexicon) == 0 {
		return errors.Newf(errors.InvalidConfiguration, "lexicon must contain at least one category")
	}

	seen := make(map[string]bool, len(lexicon))
	for _, cat := range lexicon {
		if cat.Name == "" {
			return errors.Newf(errors.InvalidConfiguration, "lexicon category with empty name")
		}
		if seen[cat.Name] {
			return errors.Newf(errors.InvalidConfiguration, "duplicate lexicon category %q", cat.Name)
		}
		seen[cat.Name] = true

		if cat.Weight <= 0 || cat.Weight > 100 {
			return errors.Newf(errors.InvalidConfiguration,
				"lexicon category %q weight must be in 1..100, got %d", cat.Name, cat.Weight)
		}
		if len(cat.Patterns) == 0 {
			return errors.Newf(errors.InvalidConfiguration,
				"lexicon category %q has no patterns", cat.Name)
		}
		for _, p := range cat.Patterns {
			if p == "" {
				return errors.Newf(errors.InvalidConfiguration,
					"lexicon category %q has an empty pattern", cat.Name)
			}
		}
	}

	return nil
}

// DefaultLexicon returns the built-in risk lexicon. Operators are expected
// to replace it with a case-specific one via scoring.lexiconPath.
func DefaultLexicon() []Category {
	return []Category{
		{
			Name:   "threat",
			Weight: 50,
			Patterns: []string{
				"i will hurt", "hurt you", "kill you", "you will regret",
				"make you pay", "come after you",
			},
		},
		{
			Name:   "danger",
			Weight: 25,
			Patterns: []string{
				"dangerous", "not safe", "put you at risk", "something bad will happen",
			},
		},
		{
			Name:   "extortion",
			Weight: 40,
			Patterns: []string{
				"blackmail", "pay me or", "unless you pay", "extort",
			},
		},
		{
			Name:   "fraud",
			Weight: 30,
			Patterns: []string{
				"fraud", "fake invoice", "launder", "off the books",
			},
		},
		{
			Name:   "leak",
			Weight: 30,
			Patterns: []string{
				"leak", "expose you", "send it to everyone", "make it public",
			},
		},
	}
}
