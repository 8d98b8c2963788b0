package correlate

import (
	"os"

	"gopkg.in/yaml.v3"

	"commsight/internal/errors"
)

// AliasMapping is one curated operator override: messages whose normalized
// sender matches Alias (on Platform, or on any platform when Platform is
// empty) are attributed to the identity named Canonical. Overrides always
// win over registry lookups and the similarity heuristic.
type AliasMapping struct {
	Platform  string `json:"platform,omitempty" yaml:"platform,omitempty"`
	Alias     string `json:"alias" yaml:"alias"`
	Canonical string `json:"canonical" yaml:"canonical"`
}

// aliasMapFile is the on-disk YAML shape of an alias-mapping table.
type aliasMapFile struct {
	Mappings []AliasMapping `yaml:"mappings"`
}

// LoadAliasMap reads a curated alias-mapping table from a YAML file.
func LoadAliasMap(path string) ([]AliasMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.InvalidConfiguration, "failed to read alias map file", err)
	}

	var file aliasMapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.New(errors.InvalidConfiguration, "failed to parse alias map file", err)
	}

	for _, m := range file.Mappings {
		if m.Alias == "" || m.Canonical == "" {
			return nil, errors.Newf(errors.InvalidConfiguration,
				"alias map entries require both alias and canonical")
		}
	}

	return file.Mappings, nil
}

// aliasMapIndex resolves (platform, normalized alias) lookups with
// platform-specific entries taking precedence over wildcard entries.
type aliasMapIndex struct {
	byPlatform map[string]string // platform \x00 alias -> canonical
	wildcard   map[string]string // alias -> canonical
}

func buildAliasMapIndex(mappings []AliasMapping) *aliasMapIndex {
	idx := &aliasMapIndex{
		byPlatform: make(map[string]string),
		wildcard:   make(map[string]string),
	}
	for _, m := range mappings {
		alias := NormalizeSender(m.Alias)
		canonical := NormalizeSender(m.Canonical)
		if m.Platform == "" {
			idx.wildcard[alias] = canonical
		} else {
			idx.byPlatform[m.Platform+"\x00"+alias] = canonical
		}
	}
	return idx
}

func (idx *aliasMapIndex) lookup(platform, alias string) (string, bool) {
	if c, ok := idx.byPlatform[platform+"\x00"+alias]; ok {
		return c, true
	}
	c, ok := idx.wildcard[alias]
	return c, ok
}
