// internal/store/reportindex/index.go
package reportindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

var (
	ErrIndexFailed  = errors.New("REPORT_INDEX_FAILED")
	ErrSearchFailed = errors.New("REPORT_SEARCH_FAILED")
)

const (
	DefaultIndex = "orgdiag-reports"

	defaultSearchSize = 20
	maxSearchSize     = 100
)

// TeamReportDoc is the per-team outcome document kept in the search index.
// One document per (run, team); the document id is "runId:teamId" so
// re-indexing a run overwrites instead of duplicating.
type TeamReportDoc struct {
	RunID        string    `json:"runId"`
	TeamID       string    `json:"teamId"`
	DatasetLabel string    `json:"datasetLabel"`
	RunState     string    `json:"runState"`
	TeamState    string    `json:"teamState"`
	Reason       string    `json:"reason,omitempty"`
	LowSample    bool      `json:"lowSample"`
	Placeholder  bool      `json:"placeholder"`
	Checksum     string    `json:"checksum,omitempty"`
	PDFSize      int64     `json:"pdfSize,omitempty"`
	Delivered    int       `json:"delivered"`
	FinishedAt   time.Time `json:"finishedAt,omitempty"`
}

// SearchResult carries one page of matching documents.
type SearchResult struct {
	Docs      []TeamReportDoc `json:"docs"`
	TotalHits int64           `json:"totalHits"`
}

// Indexer writes per-team outcome documents on run completion and serves the
// admin search endpoint. Both sides are optional: indexing failures are
// surfaced to the caller, which logs and moves on.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "reportindex", "index": index}),
	}
}

// IndexRun indexes one document per team in the finished run. Documents are
// written independently; the last write error is returned after every team
// has been attempted.
func (ix *Indexer) IndexRun(ctx context.Context, status *models.RunStatus) error {
	if status == nil {
		return fmt.Errorf("%w: nil run status", ErrIndexFailed)
	}

	teamIDs := make([]string, 0, len(status.Teams))
	for id := range status.Teams {
		teamIDs = append(teamIDs, id)
	}
	sort.Strings(teamIDs)

	var lastErr error
	for _, id := range teamIDs {
		team := status.Teams[id]
		if err := ix.indexTeam(ctx, status, team); err != nil {
			ix.logger.Warn("team document index failed", map[string]interface{}{
				"runId":  status.RunID,
				"teamId": team.TeamID,
				"error":  err.Error(),
			})
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, lastErr)
	}

	ix.logger.Debug("run indexed", map[string]interface{}{
		"runId": status.RunID,
		"teams": len(teamIDs),
	})
	return nil
}

func (ix *Indexer) indexTeam(ctx context.Context, status *models.RunStatus, team models.TeamProgress) error {
	doc := TeamReportDoc{
		RunID:        status.RunID,
		TeamID:       team.TeamID,
		DatasetLabel: status.DatasetLabel,
		RunState:     string(status.State),
		TeamState:    string(team.State),
		Reason:       team.Reason,
		LowSample:    team.LowSample,
		Placeholder:  team.Placeholder,
		Checksum:     team.Checksum,
		PDFSize:      team.PDFSize,
		Delivered:    deliveredCount(team),
		FinishedAt:   team.FinishedAt,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	res, err := ix.client.Index(
		ix.index,
		strings.NewReader(string(body)),
		ix.client.Index.WithContext(ctx),
		ix.client.Index.WithDocumentID(status.RunID+":"+team.TeamID),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index request failed: %s", res.Status())
	}
	return nil
}

// Search runs a free-text query over team outcome documents, newest first.
// An empty query returns the most recent documents.
func (ix *Indexer) Search(ctx context.Context, query string, size int) (*SearchResult, error) {
	if size < 1 {
		size = defaultSearchSize
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}

	body, _ := json.Marshal(buildSearchQuery(query))

	req := esapi.SearchRequest{
		Index: []string{ix.index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, ix.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source TeamReportDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}

	result := &SearchResult{TotalHits: r.Hits.Total.Value}
	for _, hit := range r.Hits.Hits {
		result.Docs = append(result.Docs, hit.Source)
	}
	return result, nil
}

func buildSearchQuery(query string) map[string]interface{} {
	var clause map[string]interface{}
	if strings.TrimSpace(query) == "" {
		clause = map[string]interface{}{"match_all": map[string]interface{}{}}
	} else {
		clause = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"teamId^3", "datasetLabel^2", "teamState", "runId", "reason"},
				"type":   "best_fields",
			},
		}
	}

	return map[string]interface{}{
		"query": clause,
		"sort": []map[string]interface{}{
			{"finishedAt": map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
		},
	}
}

func deliveredCount(team models.TeamProgress) int {
	n := 0
	for _, d := range team.Deliveries {
		if d.Status == models.DeliveryDelivered {
			n++
		}
	}
	return n
}
