package i18n_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/devotion-feed/internal/i18n"
	"github.com/DeafMist/devotion-feed/internal/models"
)

func TestLookup(t *testing.T) {
	require.Equal(t, "Sessions", i18n.Lookup(models.LanguageEnglish, "nav.sessions"))
	require.Equal(t, "Mga Sesyon", i18n.Lookup(models.LanguageTagalog, "nav.sessions"))
	require.Equal(t, "missing.key", i18n.Lookup(models.LanguageTagalog, "missing.key"))
	require.Equal(t, "Sessions", i18n.Lookup("fr", "nav.sessions"))
}

func TestTablesHaveSameKeys(t *testing.T) {
	en := i18n.Strings(models.LanguageEnglish)
	tl := i18n.Strings(models.LanguageTagalog)
	require.NotEmpty(t, en)
	for key := range en {
		require.Contains(t, tl, key)
	}
	require.Len(t, tl, len(en))
}

func TestStringsIsCopy(t *testing.T) {
	s := i18n.Strings(models.LanguageEnglish)
	s["nav.home"] = "changed"
	require.Equal(t, "Home", i18n.Lookup(models.LanguageEnglish, "nav.home"))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		header string
		want   models.Language
	}{
		{header: "", want: models.LanguageEnglish},
		{header: "en-US,en;q=0.9", want: models.LanguageEnglish},
		{header: "tl", want: models.LanguageTagalog},
		{header: "tl-PH", want: models.LanguageTagalog},
		{header: "fil", want: models.LanguageTagalog},
		{header: "de-DE,tl;q=0.5", want: models.LanguageTagalog},
		{header: "fil-PH,fil;q=0.9,en;q=0.8", want: models.LanguageTagalog},
		{header: "en;q=0.5,tl", want: models.LanguageTagalog},
		{header: "tl;q=0.3,en", want: models.LanguageEnglish},
		{header: "de-DE", want: models.LanguageEnglish},
		{header: "not a header;;;", want: models.LanguageEnglish},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			require.Equal(t, tt.want, i18n.Match(tt.header))
		})
	}
}
