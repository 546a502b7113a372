// Package feed retrieves the published session spreadsheet and keeps the
// current collection of sessions.
package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DeafMist/devotion-feed/internal/logger"
	"github.com/DeafMist/devotion-feed/internal/models"
	"github.com/DeafMist/devotion-feed/internal/processing"
)

// maxFeedBytes caps how much of the feed body is read.
const maxFeedBytes = 10 << 20

var (
	// ErrSourceUnreachable is masked by the fallback dataset and never reaches Store state.
	ErrSourceUnreachable = errors.New("feed source unreachable")
	// ErrMalformedFeed is returned when the CSV parser rejects reachable content.
	ErrMalformedFeed = errors.New("malformed feed")
)

// Source tells where a Result's sessions came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Result is the outcome of one successful load.
type Result struct {
	Sessions []models.Session
	Source   Source
	LoadedAt time.Time
}

// Options configure a Loader.
type Options struct {
	// URL of the CSV export. Empty selects the fallback dataset.
	URL string
	// Timeout bounds a single retrieval. Zero means no client timeout.
	Timeout time.Duration
	// FallbackDelay is waited before serving the fallback when URL is empty.
	FallbackDelay time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Loader performs single feed loads.
type Loader struct {
	url           string
	http          *http.Client
	fallbackDelay time.Duration
	log           *slog.Logger
}

// NewLoader builds a Loader from opts.
func NewLoader(opts Options) *Loader {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Loader{
		url:           strings.TrimSpace(opts.URL),
		http:          client,
		fallbackDelay: opts.FallbackDelay,
		log:           log,
	}
}

// Load produces the current full collection of sessions, newest first.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { loadDuration.Observe(time.Since(start).Seconds()) }()

	if l.url == "" {
		select {
		case <-time.After(l.fallbackDelay):
		case <-ctx.Done():
			loadsTotal.WithLabelValues("canceled").Inc()
			return Result{}, ctx.Err()
		}
		loadsTotal.WithLabelValues("fallback_unset").Inc()
		l.log.Debug("no feed url configured, serving fallback")
		return fallbackResult(), nil
	}

	body, err := l.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			loadsTotal.WithLabelValues("canceled").Inc()
			return Result{}, ctx.Err()
		}
		loadsTotal.WithLabelValues("fallback_unreachable").Inc()
		l.log.Warn("feed unreachable, serving fallback", slog.Any("err", err))
		return fallbackResult(), nil
	}

	sessions, rejected, err := Parse(strings.NewReader(body))
	if err != nil {
		loadsTotal.WithLabelValues("malformed").Inc()
		return Result{}, err
	}
	if rejected > 0 {
		rowsRejectedTotal.Add(float64(rejected))
		l.log.Debug("dropped invalid rows", slog.Int("rejected", rejected))
	}

	loadsTotal.WithLabelValues("live").Inc()
	return Result{Sessions: sessions, Source: SourceLive, LoadedAt: time.Now().UTC()}, nil
}

func (l *Loader) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrSourceUnreachable, err)
	}
	req.Header.Set("Accept", "text/csv")

	res, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %s", ErrSourceUnreachable, res.Status)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrSourceUnreachable, err)
	}
	return string(data), nil
}

// Parse reads a CSV export whose first line names the columns. Blank rows are
// skipped, rows the normalizer rejects are dropped and counted, and the
// survivors come back newest first.
func Parse(r io.Reader) ([]models.Session, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []models.Session{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: header: %v", ErrMalformedFeed, err)
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[i] = strings.TrimSpace(name)
	}

	sessions := make([]models.Session, 0)
	rejected := 0
	index := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
		}
		if blank(record) {
			continue
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}

		session, err := processing.NormalizeRow(index, row)
		index++
		if err != nil {
			rejected++
			continue
		}
		sessions = append(sessions, session)
	}

	processing.SortNewestFirst(sessions)
	return sessions, rejected, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func fallbackResult() Result {
	return Result{Sessions: Fallback(), Source: SourceFallback, LoadedAt: time.Now().UTC()}
}
