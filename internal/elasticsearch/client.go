package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/devotion-feed/internal/logger"
	"github.com/DeafMist/devotion-feed/internal/models"
	"github.com/DeafMist/devotion-feed/internal/processing"
)

// Client wraps go-elasticsearch with helpers for the session archive.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow an archive search.
type SearchParams struct {
	Query    string
	Language models.Language
	From     int
	Size     int
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total      int64            `json:"total"`
	SnapshotID string           `json:"snapshot_id,omitempty"`
	Items      []models.Session `json:"items"`
}

var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"kind":          map[string]any{"type": "keyword"},
			"id":            map[string]any{"type": "keyword"},
			"date":          map[string]any{"type": "keyword"},
			"title":         map[string]any{"type": "text"},
			"speaker":       map[string]any{"type": "text"},
			"language":      map[string]any{"type": "keyword"},
			"scripture":     map[string]any{"type": "text"},
			"video_url":     map[string]any{"type": "keyword", "index": false},
			"thumbnail_url": map[string]any{"type": "keyword", "index": false},
			"snapshot_id":   map[string]any{"type": "keyword"},
			"loaded_at":     map[string]any{"type": "date"},
			"published_on":  map[string]any{"type": "date"},
			"sessions":      map[string]any{"type": "integer"},
		},
	},
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if log == nil {
		log = logger.Discard()
	}

	return &Client{es: es, index: index, log: log}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the archive index with its mapping when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	payload, err := json.Marshal(indexMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created archive index", slog.String("index", c.index))
	return nil
}

// BuildDocuments converts a loaded collection into archive documents.
func BuildDocuments(snapshotID string, loadedAt time.Time, sessions []models.Session) []models.SessionDocument {
	docs := make([]models.SessionDocument, 0, len(sessions))
	for _, s := range sessions {
		doc := models.SessionDocument{
			Session:    s,
			Kind:       models.KindSession,
			SnapshotID: snapshotID,
			LoadedAt:   loadedAt.UTC(),
		}
		if ts, ok := processing.ParseDate(s.Date); ok {
			doc.PublishedOn = &ts
		}
		docs = append(docs, doc)
	}
	return docs
}

// bulkBatchSize bounds the number of documents per bulk request.
const bulkBatchSize = 500

// IndexSnapshot bulk-writes every session of a snapshot and then its marker.
// The marker is written with refresh=wait_for so the snapshot becomes
// visible to LatestSnapshot only once it is complete and searchable.
func (c *Client) IndexSnapshot(ctx context.Context, snapshotID string, loadedAt time.Time, sessions []models.Session) error {
	docs := BuildDocuments(snapshotID, loadedAt, sessions)
	for start := 0; start < len(docs); start += bulkBatchSize {
		end := min(start+bulkBatchSize, len(docs))
		if err := c.bulkIndex(ctx, docs[start:end]); err != nil {
			return err
		}
	}

	marker := models.SnapshotMarker{
		Kind:       models.KindSnapshot,
		SnapshotID: snapshotID,
		LoadedAt:   loadedAt.UTC(),
		Sessions:   len(docs),
	}
	payload, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("marshal snapshot marker: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: markerID(snapshotID),
		Body:       bytes.NewReader(payload),
		Refresh:    "wait_for",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index snapshot marker: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index snapshot marker failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

func markerID(snapshotID string) string {
	return "snapshot-" + snapshotID
}

func (c *Client) bulkIndex(ctx context.Context, docs []models.SessionDocument) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		action := map[string]any{"index": map[string]any{"_id": processing.DocumentID(doc.SnapshotID, doc.ID)}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("marshal bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("marshal doc: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Index:   c.index,
		Body:    &buf,
		Refresh: "false",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk index failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			if failed == 0 {
				first = fmt.Sprintf("%s: %s: %s", result.ID, result.Error.Type, result.Error.Reason)
			}
			failed++
		}
	}
	return fmt.Errorf("bulk index: %d of %d documents failed, first: %s", failed, len(docs), first)
}

// LatestSnapshot returns the ID of the most recently completed snapshot, or
// "" when no snapshot has finished indexing.
func (c *Client) LatestSnapshot(ctx context.Context) (string, error) {
	body := map[string]any{
		"size":    1,
		"_source": []string{"snapshot_id"},
		"query": map[string]any{
			"term": map[string]any{"kind": models.KindSnapshot},
		},
		"sort":    []map[string]any{{"loaded_at": map[string]any{"order": "desc"}}},
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source struct {
					SnapshotID string `json:"snapshot_id"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := c.search(ctx, body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Hits.Hits) == 0 {
		return "", nil
	}
	return parsed.Hits.Hits[0].Source.SnapshotID, nil
}

// SearchParamsBody builds the query body for params restricted to snapshotID.
func SearchParamsBody(params SearchParams, snapshotID string) map[string]any {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := []map[string]any{
		{"term": map[string]any{"kind": models.KindSession}},
		{"term": map[string]any{"snapshot_id": snapshotID}},
	}

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"title^2", "speaker", "scripture"},
			},
		})
	}

	if params.Language != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"language": string(params.Language)},
		})
	}

	boolQuery := map[string]any{"filter": filters}
	if len(must) > 0 {
		boolQuery["must"] = must
	}

	return map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{"published_on": map[string]any{"order": "desc", "missing": "_last"}},
			{"id": map[string]any{"order": "asc"}},
		},
	}
}

// SearchSessions runs a full-text search over the newest archived snapshot.
func (c *Client) SearchSessions(ctx context.Context, params SearchParams) (*SearchResult, error) {
	snapshotID, err := c.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshotID == "" {
		return &SearchResult{Items: []models.Session{}}, nil
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.SessionDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := c.search(ctx, SearchParamsBody(params, snapshotID), &parsed); err != nil {
		return nil, err
	}

	items := make([]models.Session, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source.Session)
	}

	return &SearchResult{
		Total:      parsed.Hits.Total.Value,
		SnapshotID: snapshotID,
		Items:      items,
	}, nil
}

func (c *Client) search(ctx context.Context, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

// DeleteSuperseded removes every document not belonging to keepSnapshot.
func (c *Client) DeleteSuperseded(ctx context.Context, keepSnapshot string, batchSize int) (int64, error) {
	query := map[string]any{
		"bool": map[string]any{
			"must_not": []map[string]any{
				{"term": map[string]any{"snapshot_id": keepSnapshot}},
			},
		},
	}
	return c.deleteByQuery(ctx, query, batchSize)
}

// DeleteOlderThan removes documents loaded more than maxAge ago, except those
// of keepSnapshot. An empty keepSnapshot protects nothing.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, keepSnapshot string, batchSize int) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	boolQuery := map[string]any{
		"filter": []map[string]any{
			{"range": map[string]any{"loaded_at": map[string]any{"lte": cutoff}}},
		},
	}
	if keepSnapshot != "" {
		boolQuery["must_not"] = []map[string]any{
			{"term": map[string]any{"snapshot_id": keepSnapshot}},
		}
	}
	return c.deleteByQuery(ctx, map[string]any{"bool": boolQuery}, batchSize)
}

// deleteByQuery loops until a batch deletes fewer documents than batchSize.
func (c *Client) deleteByQuery(ctx context.Context, query map[string]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	payload, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	totalDeleted := int64(0)
	for {
		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
			c.es.DeleteByQuery.WithMaxDocs(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
