package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/devotion-feed/internal/feed"
	"github.com/DeafMist/devotion-feed/internal/models"
	"github.com/DeafMist/devotion-feed/internal/video"
)

const sampleCSV = `Date, Title, Speaker, Language, Scripture, Video URL
2024-05-01,Faith,Ptr. Cruz,EN,Hebrews 11:1,https://youtu.be/dQw4w9WgXcQ
2024-05-20,Pananampalataya,Ptr. Santos,tl,Roma 10:17,https://www.youtube.com/watch?v=abcdefghijk

,,,,,
2024-03-10,Hope,,en,Romans 15:13,not a link
2024-04-01,,Nobody,en,,
`

func serveCSV(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadLiveFeed(t *testing.T) {
	srv := serveCSV(t, http.StatusOK, sampleCSV)
	loader := feed.NewLoader(feed.Options{URL: srv.URL, Timeout: 5 * time.Second})

	res, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, feed.SourceLive, res.Source)
	require.False(t, res.LoadedAt.IsZero())

	want := []models.Session{
		{
			ID: "1", Date: "2024-05-20", Title: "Pananampalataya", Speaker: "Ptr. Santos",
			Language: models.LanguageTagalog, Scripture: "Roma 10:17",
			VideoURL:     "https://www.youtube.com/watch?v=abcdefghijk",
			ThumbnailURL: "https://img.youtube.com/vi/abcdefghijk/maxresdefault.jpg",
		},
		{
			ID: "0", Date: "2024-05-01", Title: "Faith", Speaker: "Ptr. Cruz",
			Language: models.LanguageEnglish, Scripture: "Hebrews 11:1",
			VideoURL:     "https://youtu.be/dQw4w9WgXcQ",
			ThumbnailURL: "https://img.youtube.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
		},
		{
			ID: "2", Date: "2024-03-10", Title: "Hope",
			Language: models.LanguageEnglish, Scripture: "Romans 15:13",
			VideoURL:     "not a link",
			ThumbnailURL: video.PlaceholderThumbnail,
		},
	}
	if diff := cmp.Diff(want, res.Sessions); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadUnsetURLServesFallbackAfterDelay(t *testing.T) {
	delay := 30 * time.Millisecond
	loader := feed.NewLoader(feed.Options{FallbackDelay: delay})

	start := time.Now()
	res, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), delay)
	require.Equal(t, feed.SourceFallback, res.Source)
	require.NotEmpty(t, res.Sessions)
	if diff := cmp.Diff(feed.Fallback(), res.Sessions); diff != "" {
		t.Fatalf("fallback modified (-want +got):\n%s", diff)
	}
}

func TestLoadUnsetURLHonorsCancel(t *testing.T) {
	loader := feed.NewLoader(feed.Options{FallbackDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadUnreachableServesFallback(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	loader := feed.NewLoader(feed.Options{URL: url, Timeout: time.Second})
	res, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, feed.SourceFallback, res.Source)
	require.Equal(t, feed.Fallback(), res.Sessions)
}

func TestLoadNonSuccessStatusServesFallback(t *testing.T) {
	srv := serveCSV(t, http.StatusInternalServerError, "boom")
	loader := feed.NewLoader(feed.Options{URL: srv.URL})

	res, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, feed.SourceFallback, res.Source)
	require.Equal(t, feed.Fallback(), res.Sessions)
}

func TestLoadMalformedFeedFails(t *testing.T) {
	srv := serveCSV(t, http.StatusOK, "Date,Title\n2024-05-01,Fa\"ith\n")
	loader := feed.NewLoader(feed.Options{URL: srv.URL})

	res, err := loader.Load(context.Background())
	require.ErrorIs(t, err, feed.ErrMalformedFeed)
	require.Empty(t, res.Sessions)
}

func TestParse(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		sessions, rejected, err := feed.Parse(stringsReader(""))
		require.NoError(t, err)
		require.Empty(t, sessions)
		require.Zero(t, rejected)
	})

	t.Run("byte order mark", func(t *testing.T) {
		sessions, _, err := feed.Parse(stringsReader("\ufeffDate,Title\n2024-05-01,Faith\n"))
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		require.Equal(t, "Faith", sessions[0].Title)
	})

	t.Run("rejected rows counted", func(t *testing.T) {
		sessions, rejected, err := feed.Parse(stringsReader(sampleCSV))
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		require.Equal(t, 1, rejected)
	})

	t.Run("delimiter-only rows take no id", func(t *testing.T) {
		sessions, _, err := feed.Parse(stringsReader("Date,Title\n2024-05-02,Faith\n,\n\n2024-05-01,Hope\n"))
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		require.Equal(t, "0", sessions[0].ID)
		require.Equal(t, "1", sessions[1].ID)
	})

	t.Run("short rows", func(t *testing.T) {
		sessions, _, err := feed.Parse(stringsReader("Date,Title,Speaker\n2024-05-01,Faith\n"))
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		require.Empty(t, sessions[0].Speaker)
	})

	t.Run("unterminated quote", func(t *testing.T) {
		_, _, err := feed.Parse(stringsReader("Date,Title\n2024-05-01,\"Faith\n"))
		require.ErrorIs(t, err, feed.ErrMalformedFeed)
	})
}

func TestFallbackIsCopied(t *testing.T) {
	first := feed.Fallback()
	require.NotEmpty(t, first)
	first[0].Title = "changed"
	require.NotEqual(t, "changed", feed.Fallback()[0].Title)

	for _, s := range feed.Fallback() {
		require.NotEmpty(t, s.Title)
		require.NotEmpty(t, s.Date)
		require.Contains(t, models.Languages, s.Language)
	}
}
