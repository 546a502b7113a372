package processing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/devotion-feed/internal/models"
	"github.com/DeafMist/devotion-feed/internal/processing"
)

func dates(sessions []models.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Date)
	}
	return out
}

func TestSortNewestFirst(t *testing.T) {
	sessions := []models.Session{
		{ID: "0", Date: "2024-05-01"},
		{ID: "1", Date: "2024-05-20"},
		{ID: "2", Date: "2024-03-10"},
	}
	processing.SortNewestFirst(sessions)
	require.Equal(t, []string{"2024-05-20", "2024-05-01", "2024-03-10"}, dates(sessions))
}

func TestSortNewestFirstInvalidDatesLast(t *testing.T) {
	sessions := []models.Session{
		{ID: "0", Date: "soon"},
		{ID: "1", Date: "2024-03-10"},
		{ID: "2", Date: "TBA"},
		{ID: "3", Date: "2024-05-20"},
	}
	processing.SortNewestFirst(sessions)
	require.Equal(t, []string{"2024-05-20", "2024-03-10", "soon", "TBA"}, dates(sessions))
}

func TestSortNewestFirstKeepsTieOrder(t *testing.T) {
	sessions := []models.Session{
		{ID: "0", Date: "2024-05-01"},
		{ID: "1", Date: "2024-05-01"},
		{ID: "2", Date: "2024-06-01"},
	}
	processing.SortNewestFirst(sessions)
	require.Equal(t, "2", sessions[0].ID)
	require.Equal(t, "0", sessions[1].ID)
	require.Equal(t, "1", sessions[2].ID)
}

func TestParseDate(t *testing.T) {
	ts, ok := processing.ParseDate("2024-02-03")
	require.True(t, ok)
	require.Equal(t, 2024, ts.Year())
	require.Equal(t, 2, int(ts.Month()))
	require.Equal(t, 3, ts.Day())

	sheet, ok := processing.ParseDate("2/3/2024")
	require.True(t, ok)
	require.Equal(t, ts, sheet)

	_, ok = processing.ParseDate("invalid")
	require.False(t, ok)
	_, ok = processing.ParseDate("")
	require.False(t, ok)
}

func TestSnapshotDigest(t *testing.T) {
	a := []models.Session{{ID: "0", Date: "2024-05-01", Title: "Faith"}}
	b := []models.Session{{ID: "7", Date: "2024-05-01", Title: "Faith"}}
	c := []models.Session{{ID: "0", Date: "2024-05-01", Title: "Hope"}}

	require.NotEmpty(t, processing.SnapshotDigest(a))
	require.Equal(t, processing.SnapshotDigest(a), processing.SnapshotDigest(b))
	require.NotEqual(t, processing.SnapshotDigest(a), processing.SnapshotDigest(c))
	require.Equal(t, "snap-3", processing.DocumentID("snap", "3"))
}
