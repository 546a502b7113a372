package processing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/DeafMist/devotion-feed/internal/models"
	"github.com/DeafMist/devotion-feed/internal/video"
)

// Column names in the feed header row.
const (
	ColumnDate      = "Date"
	ColumnTitle     = "Title"
	ColumnSpeaker   = "Speaker"
	ColumnLanguage  = "Language"
	ColumnScripture = "Scripture"
	ColumnVideoURL  = "Video URL"
)

// ErrInvalidRow marks a row that lacks a mandatory field.
var ErrInvalidRow = errors.New("invalid row")

// NormalizeRow converts one raw feed row keyed by header name into a Session.
// index is the row's position in the current batch and becomes the session ID.
func NormalizeRow(index int, row map[string]string) (models.Session, error) {
	date := field(row, ColumnDate)
	if date == "" {
		return models.Session{}, fmt.Errorf("%w: row %d: missing %s", ErrInvalidRow, index, ColumnDate)
	}
	title := field(row, ColumnTitle)
	if title == "" {
		return models.Session{}, fmt.Errorf("%w: row %d: missing %s", ErrInvalidRow, index, ColumnTitle)
	}

	videoURL := field(row, ColumnVideoURL)

	return models.Session{
		ID:           strconv.Itoa(index),
		Date:         date,
		Title:        title,
		Speaker:      field(row, ColumnSpeaker),
		Language:     NormalizeLanguage(row[ColumnLanguage]),
		Scripture:    field(row, ColumnScripture),
		VideoURL:     videoURL,
		ThumbnailURL: video.Thumbnail(videoURL),
	}, nil
}

// NormalizeLanguage maps raw onto the closed language set. Only a
// case-insensitive "en" yields English; everything else, including an
// empty value, is Tagalog.
func NormalizeLanguage(raw string) models.Language {
	if strings.EqualFold(strings.TrimSpace(raw), string(models.LanguageEnglish)) {
		return models.LanguageEnglish
	}
	return models.LanguageTagalog
}

func field(row map[string]string, name string) string {
	return strings.TrimSpace(row[name])
}
