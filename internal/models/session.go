package models

import (
	"strings"
	"time"
)

// Language is the closed set of languages a session can be delivered in.
type Language string

const (
	// LanguageTagalog is the default for anything not recognized as English.
	LanguageTagalog Language = "tl"
	LanguageEnglish Language = "en"
)

// Languages lists every valid Language, default first.
var Languages = []Language{LanguageTagalog, LanguageEnglish}

// ParseLanguage reports whether raw names one of the two languages exactly (case-insensitive).
func ParseLanguage(raw string) (Language, bool) {
	raw = strings.TrimSpace(raw)
	for _, l := range Languages {
		if strings.EqualFold(raw, string(l)) {
			return l, true
		}
	}
	return "", false
}

// Session is one normalized devotional entry ready for display.
type Session struct {
	ID           string   `json:"id" yaml:"id"`
	Date         string   `json:"date" yaml:"date"`
	Title        string   `json:"title" yaml:"title"`
	Speaker      string   `json:"speaker" yaml:"speaker"`
	Language     Language `json:"language" yaml:"language"`
	Scripture    string   `json:"scripture" yaml:"scripture"`
	VideoURL     string   `json:"video_url" yaml:"video_url"`
	ThumbnailURL string   `json:"thumbnail_url" yaml:"thumbnail_url"`
}

// Document kinds stored in the archive index.
const (
	KindSession  = "session"
	KindSnapshot = "snapshot"
)

// SessionDocument is the archived form of a Session stored in Elasticsearch.
type SessionDocument struct {
	Session
	Kind        string     `json:"kind"`
	SnapshotID  string     `json:"snapshot_id"`
	LoadedAt    time.Time  `json:"loaded_at"`
	PublishedOn *time.Time `json:"published_on,omitempty"`
}

// SnapshotMarker is written after every session of a snapshot is indexed.
// Readers only trust snapshots that have one.
type SnapshotMarker struct {
	Kind       string    `json:"kind"`
	SnapshotID string    `json:"snapshot_id"`
	LoadedAt   time.Time `json:"loaded_at"`
	Sessions   int       `json:"sessions"`
}
