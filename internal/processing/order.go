package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/DeafMist/devotion-feed/internal/models"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"1/2/2006",
	"2006/01/02",
}

// ParseDate parses a session date. The zero time and false are returned for
// values no known layout accepts.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// SortNewestFirst orders sessions by calendar date, most recent first.
// Sessions with unparseable dates go after every parseable one; ties keep
// their source order.
func SortNewestFirst(sessions []models.Session) {
	type keyed struct {
		ts time.Time
		ok bool
	}
	keys := make(map[string]keyed, len(sessions))
	for _, s := range sessions {
		ts, ok := ParseDate(s.Date)
		keys[s.Date] = keyed{ts: ts, ok: ok}
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := keys[sessions[i].Date], keys[sessions[j].Date]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ts.After(b.ts)
	})
}

// SnapshotDigest hashes the content of a loaded collection so unchanged
// reloads can be recognized.
func SnapshotDigest(sessions []models.Session) string {
	h := sha1.New()
	for _, s := range sessions {
		for _, part := range []string{s.Date, s.Title, s.Speaker, string(s.Language), s.Scripture, s.VideoURL} {
			h.Write([]byte(part))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentID builds the archive document ID for a session within a snapshot.
func DocumentID(snapshotID, sessionID string) string {
	return snapshotID + "-" + sessionID
}
