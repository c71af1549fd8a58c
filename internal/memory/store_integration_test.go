package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/smartsummary/internal/helpers"
	"github.com/mohammad-safakhou/smartsummary/internal/memory"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx,
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get redis port: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStoreEntriesAndRecency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	store := memory.NewRedisStore(startRedis(t))
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		err := store.UpsertEntry(ctx, memory.Entry{
			URL:        fmt.Sprintf("https://example.com/%d", i),
			Title:      fmt.Sprintf("Article %d", i),
			AnalyzedAt: base.Add(time.Duration(i) * time.Minute),
			Summary:    "summary",
			Topics:     []string{"ai"},
		})
		if err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 entries, got %d", count)
	}

	recent, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].URL != "https://example.com/4" {
		t.Fatalf("recency scan wrong: %+v", recent)
	}

	// Re-analyzing a URL overwrites its entry and refreshes its position.
	err = store.UpsertEntry(ctx, memory.Entry{
		URL:        "https://example.com/0",
		Title:      "Article 0 revisited",
		AnalyzedAt: base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if count, _ = store.Count(ctx); count != 5 {
		t.Fatalf("re-upsert must not grow the index, got %d", count)
	}
	entry, ok, err := store.Entry(ctx, "https://example.com/0")
	if err != nil || !ok {
		t.Fatalf("entry lookup: ok=%v err=%v", ok, err)
	}
	if entry.Title != "Article 0 revisited" {
		t.Fatalf("entry not overwritten: %+v", entry)
	}
	recent, _ = store.Recent(ctx, 1)
	if len(recent) != 1 || recent[0].URL != "https://example.com/0" {
		t.Fatalf("refreshed entry must lead the recency scan: %+v", recent)
	}

	if _, ok, err := store.Entry(ctx, "https://example.com/unknown"); err != nil || ok {
		t.Fatalf("unknown url must miss cleanly: ok=%v err=%v", ok, err)
	}
}

func TestRedisStoreTopicBucketsDeduplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	store := memory.NewRedisStore(startRedis(t))

	for _, url := range []string{"https://a", "https://b", "https://a", "https://c"} {
		if err := store.AppendTopic(ctx, "ai", url); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	urls, err := store.TopicURLs(ctx, "ai")
	if err != nil {
		t.Fatalf("topic urls: %v", err)
	}
	want := []string{"https://a", "https://b", "https://c"}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("bucket order lost: %v", urls)
		}
	}
}

func TestRedisStoreConnectionsRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	store := memory.NewRedisStore(startRedis(t))

	key := helpers.CacheKey("https://example.com/articles/1")
	conns := []memory.Connection{
		{URL: "https://example.com/articles/2", Title: "Second", Reason: "Same topic.", Strength: 3},
		{URL: "https://example.com/articles/3", Title: "Third", Reason: "Same author.", Strength: 2},
	}
	if err := store.SetConnections(ctx, key, conns); err != nil {
		t.Fatalf("set connections: %v", err)
	}

	got, err := store.Connections(ctx, key)
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	if len(got) != 2 || got[0].Strength != 3 || got[1].Reason != "Same author." {
		t.Fatalf("connections round trip lost data: %+v", got)
	}

	empty, err := store.Connections(ctx, helpers.CacheKey("https://example.com/none"))
	if err != nil {
		t.Fatalf("missing key must not error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("missing key must yield an empty set, got %+v", empty)
	}
}
