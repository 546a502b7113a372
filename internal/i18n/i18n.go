// Package i18n holds the static interface strings in both site languages.
// The selected interface language is independent of a session's language.
package i18n

import (
	_ "embed"
	"fmt"
	"maps"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/DeafMist/devotion-feed/internal/models"
)

// Default is the interface language used when nothing else is selected.
const Default = models.LanguageEnglish

//go:embed strings.yaml
var stringsYAML []byte

var tables = sync.OnceValues(func() (map[models.Language]map[string]string, error) {
	var raw map[models.Language]map[string]string
	if err := yaml.Unmarshal(stringsYAML, &raw); err != nil {
		return nil, fmt.Errorf("decode ui strings: %w", err)
	}
	for _, l := range models.Languages {
		if len(raw[l]) == 0 {
			return nil, fmt.Errorf("ui strings: no table for %q", l)
		}
	}
	return raw, nil
})

// x/text has no Tagalog constant and may canonicalize "tl" to "fil", so
// every entry past the first maps to Tagalog.
var matcher = language.NewMatcher([]language.Tag{
	language.English, // first entry is the matcher's fallback
	language.Filipino,
	language.MustParse("tl"),
})

func table(lang models.Language) map[string]string {
	t, err := tables()
	if err != nil {
		panic(err)
	}
	if s, ok := t[lang]; ok {
		return s
	}
	return t[Default]
}

// Lookup returns the string for key in lang. Keys missing from lang fall back
// to the default language, then to the key itself.
func Lookup(lang models.Language, key string) string {
	if s, ok := table(lang)[key]; ok {
		return s
	}
	if s, ok := table(Default)[key]; ok {
		return s
	}
	return key
}

// Strings returns a copy of the full table for lang.
func Strings(lang models.Language) map[string]string {
	return maps.Clone(table(lang))
}

// Match picks the interface language for an Accept-Language header value.
// Tagalog and Filipino both select Tagalog; everything else selects English.
func Match(acceptLanguage string) models.Language {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No || index == 0 {
		return Default
	}
	return models.LanguageTagalog
}
