// Package listing turns the loaded session collection into the sequence shown
// to a reader, applying the language filter and search term.
package listing

import (
	"strings"

	"github.com/DeafMist/devotion-feed/internal/models"
)

// AllLanguages is the filter value that disables language filtering.
const AllLanguages = "all"

// Filter holds the reader's current selections. An empty Language means no
// language filter.
type Filter struct {
	Language models.Language
	Search   string
}

// ParseLanguage reads a language filter selection. Empty and "all" select
// every language; any other value must name one of the two languages.
func ParseLanguage(raw string) (models.Language, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, AllLanguages) {
		return "", true
	}
	return models.ParseLanguage(raw)
}

// Match reports whether s passes both filters.
func (f Filter) Match(s models.Session) bool {
	if f.Language != "" && s.Language != f.Language {
		return false
	}
	if f.Search == "" {
		return true
	}
	term := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(s.Title), term) ||
		strings.Contains(strings.ToLower(s.Speaker), term)
}

// Apply returns the sessions passing f, in their existing order.
func Apply(sessions []models.Session, f Filter) []models.Session {
	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

// View is a view model over one collection. Every setter recomputes the
// visible sequence synchronously.
type View struct {
	sessions []models.Session
	filter   Filter
	visible  []models.Session
}

// NewView builds a view showing every session.
func NewView(sessions []models.Session) *View {
	v := &View{sessions: sessions}
	v.recompute()
	return v
}

// SetSessions replaces the collection wholesale.
func (v *View) SetSessions(sessions []models.Session) {
	v.sessions = sessions
	v.recompute()
}

func (v *View) SetLanguage(lang models.Language) {
	v.filter.Language = lang
	v.recompute()
}

func (v *View) SetSearch(term string) {
	v.filter.Search = term
	v.recompute()
}

// Filter returns the current selections.
func (v *View) Filter() Filter { return v.filter }

// Items returns the visible sequence.
func (v *View) Items() []models.Session { return v.visible }

func (v *View) recompute() {
	v.visible = Apply(v.sessions, v.filter)
}
