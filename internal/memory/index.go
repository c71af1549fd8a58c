package memory

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/mohammad-safakhou/smartsummary/config"
	"github.com/mohammad-safakhou/smartsummary/internal/analysis"
	"github.com/mohammad-safakhou/smartsummary/internal/helpers"
)

// Entry is the per-URL article record kept by the index. It is overwritten
// on each successful analysis of the same URL.
type Entry struct {
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	Source           string    `json:"source"`
	PublishedAt      string    `json:"published_at"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
	Summary          string    `json:"summary"`
	Bullets          []string  `json:"bullets"`
	Topics           []string  `json:"topics"`
	CredibilityScore float64   `json:"credibility_score"`
	CredibilityLabel string    `json:"credibility_label"`
}

// Connection links the analyzed article to a previously analyzed one.
type Connection struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Reason   string `json:"reason"`
	Strength int    `json:"strength"`
}

// ConnectedArticle is a connection joined with the connected article's full
// memory entry, the shape served by the connections endpoint.
type ConnectedArticle struct {
	URL              string    `json:"url"`
	Reason           string    `json:"reason"`
	Strength         int       `json:"strength"`
	Title            string    `json:"title,omitempty"`
	Author           string    `json:"author,omitempty"`
	Source           string    `json:"source,omitempty"`
	PublishedAt      string    `json:"published_at,omitempty"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
	Summary          string    `json:"summary,omitempty"`
	Bullets          []string  `json:"bullets,omitempty"`
	Topics           []string  `json:"topics,omitempty"`
	CredibilityScore float64   `json:"credibility_score"`
	CredibilityLabel string    `json:"credibility_label,omitempty"`
}

// Index maintains cross-article memory: topic buckets and per-article
// connection sets. Everything in here is best-effort; no failure inside the
// index ever reaches the analysis caller.
type Index struct {
	cfg    *config.Config
	store  Store
	caps   *analysis.Capabilities
	logger *log.Logger
}

// NewIndex creates the article memory index
func NewIndex(cfg *config.Config, store Store, caps *analysis.Capabilities) *Index {
	return &Index{
		cfg:    cfg,
		store:  store,
		caps:   caps,
		logger: log.New(log.Writer(), "[MEMORY] ", log.LstdFlags),
	}
}

// RecordArticle indexes a finished analysis: extracts topics, upserts the
// entry, grows the topic buckets and recomputes this article's connections
// against the most recent stored entries. Capability failures degrade to
// empty topics or fewer connections.
func (ix *Index) RecordArticle(ctx context.Context, req analysis.Request, result analysis.Result) {
	topics, err := ix.caps.ExtractTopics(ctx, result.Summary, result.Bullets)
	if err != nil {
		ix.logger.Printf("Topic extraction failed for %s: %v", req.URL, err)
		topics = []string{}
	}

	entry := Entry{
		URL:              req.URL,
		Title:            req.Metadata.Title,
		Author:           req.Metadata.Author,
		Source:           req.Metadata.Source,
		PublishedAt:      req.Metadata.PublishedAt,
		AnalyzedAt:       time.Now().UTC(),
		Summary:          result.Summary,
		Bullets:          result.Bullets,
		Topics:           topics,
		CredibilityScore: result.Credibility.Score,
		CredibilityLabel: result.Credibility.Label,
	}
	if err := ix.store.UpsertEntry(ctx, entry); err != nil {
		ix.logger.Printf("Upsert failed for %s: %v", req.URL, err)
		return
	}
	for _, topic := range topics {
		if err := ix.store.AppendTopic(ctx, topic, req.URL); err != nil {
			ix.logger.Printf("Topic bucket append failed (%s): %v", topic, err)
		}
	}

	connections := ix.computeConnections(ctx, entry)
	if err := ix.store.SetConnections(ctx, helpers.CacheKey(req.URL), connections); err != nil {
		ix.logger.Printf("Store connections failed for %s: %v", req.URL, err)
	}
	ix.logger.Printf("Indexed %s: %d topics, %d connections", req.URL, len(topics), len(connections))
}

// computeConnections scans a bounded window of recent entries, keeps those
// sharing a topic or the exact author, asks the connection reasoner for a
// one-sentence explanation and scores each candidate. The window cap bounds
// cost: the recompute is O(window) capability calls per analysis.
func (ix *Index) computeConnections(ctx context.Context, current Entry) []Connection {
	window := ix.cfg.Analysis.ConnectionWindow
	if window <= 0 {
		window = 20
	}
	maxConnections := ix.cfg.Analysis.MaxConnections
	if maxConnections <= 0 {
		maxConnections = 5
	}

	recent, err := ix.store.Recent(ctx, window+1)
	if err != nil {
		ix.logger.Printf("Recent scan failed: %v", err)
		return []Connection{}
	}

	connections := []Connection{}
	seen := 0
	for _, other := range recent {
		if other.URL == current.URL {
			continue
		}
		if seen >= window {
			break
		}
		seen++

		shared := sharedTopics(current.Topics, other.Topics)
		sameAuthor := current.Author != "" && current.Author == other.Author
		if len(shared) == 0 && !sameAuthor {
			continue
		}

		reason, err := ix.caps.ExplainConnection(ctx, current.Title, current.Summary, other.Title, other.Summary, shared)
		if err != nil {
			ix.logger.Printf("Connection reasoning failed (%s <-> %s): %v", current.URL, other.URL, err)
			continue
		}

		strength := len(shared)
		if sameAuthor {
			strength += 2
		}
		connections = append(connections, Connection{
			URL:      other.URL,
			Title:    other.Title,
			Reason:   reason,
			Strength: strength,
		})
	}

	sort.SliceStable(connections, func(i, j int) bool {
		return connections[i].Strength > connections[j].Strength
	})
	if len(connections) > maxConnections {
		connections = connections[:maxConnections]
	}
	return connections
}

// Recent returns the most recently analyzed entries, newest first.
func (ix *Index) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return ix.store.Recent(ctx, limit)
}

// Total returns the number of indexed articles.
func (ix *Index) Total(ctx context.Context) (int, error) {
	return ix.store.Count(ctx)
}

// Connections returns the stored connection set for a cache key, each
// connection joined with the connected article's current entry. A connection
// whose entry has vanished keeps its own fields only.
func (ix *Index) Connections(ctx context.Context, key string) ([]ConnectedArticle, error) {
	conns, err := ix.store.Connections(ctx, key)
	if err != nil {
		return nil, err
	}
	joined := make([]ConnectedArticle, 0, len(conns))
	for _, conn := range conns {
		article := ConnectedArticle{
			URL:      conn.URL,
			Reason:   conn.Reason,
			Strength: conn.Strength,
			Title:    conn.Title,
		}
		if entry, ok, err := ix.store.Entry(ctx, conn.URL); err == nil && ok {
			article.Title = entry.Title
			article.Author = entry.Author
			article.Source = entry.Source
			article.PublishedAt = entry.PublishedAt
			article.AnalyzedAt = entry.AnalyzedAt
			article.Summary = entry.Summary
			article.Bullets = entry.Bullets
			article.Topics = entry.Topics
			article.CredibilityScore = entry.CredibilityScore
			article.CredibilityLabel = entry.CredibilityLabel
		}
		joined = append(joined, article)
	}
	return joined, nil
}

func sharedTopics(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, topic := range a {
		set[topic] = struct{}{}
	}
	var shared []string
	for _, topic := range b {
		if _, ok := set[topic]; ok {
			shared = append(shared, topic)
		}
	}
	return shared
}
