package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/smartsummary/config"
	"github.com/mohammad-safakhou/smartsummary/internal/analysis"
	"github.com/mohammad-safakhou/smartsummary/internal/conversation"
	"github.com/mohammad-safakhou/smartsummary/internal/helpers"
	"github.com/mohammad-safakhou/smartsummary/internal/memory"
	"github.com/mohammad-safakhou/smartsummary/internal/provider"
	"github.com/mohammad-safakhou/smartsummary/internal/telemetry"
)

type fakeProvider struct {
	name     string
	generate func(prompt string) (string, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, prompt string) (string, error) {
	return f.generate(prompt)
}

func (f *fakeProvider) GenerateWithSystem(_ context.Context, system string, _ []provider.Message) (string, error) {
	return f.generate(system)
}

func (f *fakeProvider) GenerateStream(_ context.Context, prompt string, onDelta func(string)) (string, error) {
	out, err := f.generate(prompt)
	if err != nil {
		return "", err
	}
	onDelta(out)
	return out, nil
}

func routeGoogle(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "factual summaries"):
		return `{"summary":"A concise summary.","bullets":["b1","b2","b3","b4","b5"]}`, nil
	case strings.Contains(prompt, "fact-checking assistant"):
		return `{"claims":[],"sources":[]}`, nil
	case strings.Contains(prompt, "topic tags"):
		return `["go"]`, nil
	default:
		return "Related coverage.", nil
	}
}

func routeAnthropic(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "media literacy"):
		return `{"score":0.8,"label":"Reliable","overall_assessment":"fine"}`, nil
	case strings.Contains(prompt, "stay grounded"):
		return "Grounded answer.", nil
	default:
		return `{"summary":"Fallback.","bullets":[]}`, nil
	}
}

type testEnv struct {
	server   *Server
	memStore *memory.MemoryStore
}

func newTestServer() *testEnv {
	cfg := &config.Config{
		General: config.GeneralConfig{Listen: ":0"},
		Analysis: config.AnalysisConfig{
			MaxContentTokens:   8000,
			ConnectionWindow:   20,
			MaxConnections:     5,
			HistoryLimit:       50,
			ReadingWordsPerMin: 200,
		},
	}
	tele := telemetry.NewTelemetry(config.TelemetryConfig{Enabled: true})
	caps := &analysis.Capabilities{
		Google:    &fakeProvider{name: "google", generate: routeGoogle},
		Anthropic: &fakeProvider{name: "anthropic", generate: routeAnthropic},
		Telemetry: tele,
	}
	memStore := memory.NewMemoryStore()
	chat := conversation.NewService(conversation.NewMemoryStore(), caps.Anthropic, tele)
	index := memory.NewIndex(cfg, memStore, caps)
	orch := analysis.NewOrchestrator(cfg, tele, caps, analysis.NewMemoryCache(), chat, index)
	return &testEnv{
		server:   New(cfg, orch, chat, index, tele),
		memStore: memStore,
	}
}

func doJSON(env *testEnv, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.server.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestServer()
	rec := doJSON(env, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["timestamp"] == "" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestAnalyzeMissingFields(t *testing.T) {
	env := newTestServer()
	rec := doJSON(env, http.MethodPost, "/analyze", `{"url":"https://example.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "Missing required fields: url, content" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestAnalyzeThenChat(t *testing.T) {
	env := newTestServer()
	rec := doJSON(env, http.MethodPost, "/analyze", `{
		"url": "https://example.com/articles/1",
		"content": "Some article content worth analyzing in depth.",
		"type": "article",
		"metadata": {"title": "T", "author": "A"}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result analysis.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Summary != "A concise summary." || result.ConversationID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	chatRec := doJSON(env, http.MethodPost, "/chat",
		`{"conversation_id": "`+result.ConversationID+`", "user_message": "What is this about?"}`)
	if chatRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", chatRec.Code, chatRec.Body.String())
	}
	var chatBody map[string]string
	_ = json.Unmarshal(chatRec.Body.Bytes(), &chatBody)
	if chatBody["assistant_message"] != "Grounded answer." {
		t.Fatalf("unexpected chat reply: %v", chatBody)
	}
}

func TestChatMissingFields(t *testing.T) {
	env := newTestServer()
	rec := doJSON(env, http.MethodPost, "/chat", `{"conversation_id": "abc"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatUnknownConversation(t *testing.T) {
	env := newTestServer()
	rec := doJSON(env, http.MethodPost, "/chat", `{"conversation_id": "nope", "user_message": "hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHistory(t *testing.T) {
	env := newTestServer()
	base := time.Now().UTC()
	for i, url := range []string{"https://a", "https://b", "https://c"} {
		err := env.memStore.UpsertEntry(context.Background(), memory.Entry{
			URL:        url,
			AnalyzedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec := doJSON(env, http.MethodGet, "/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Articles []memory.Entry `json:"articles"`
		Total    int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 3 || len(body.Articles) != 3 {
		t.Fatalf("unexpected history: total=%d len=%d", body.Total, len(body.Articles))
	}
	if body.Articles[0].URL != "https://c" {
		t.Fatalf("history not sorted newest first: %s", body.Articles[0].URL)
	}
}

func TestConnections(t *testing.T) {
	env := newTestServer()
	ctx := context.Background()
	key := helpers.CacheKey("https://example.com/articles/1")
	err := env.memStore.SetConnections(ctx, key, []memory.Connection{
		{URL: "https://example.com/articles/2", Reason: "Same topic.", Strength: 3},
	})
	if err != nil {
		t.Fatalf("seed connections: %v", err)
	}
	entry := memory.Entry{
		URL:              "https://example.com/articles/2",
		Title:            "Second Article",
		Author:           "Jane Doe",
		AnalyzedAt:       time.Now(),
		Summary:          "A short account of the second article.",
		Topics:           []string{"ai"},
		CredibilityScore: 0.7,
		CredibilityLabel: "Reliable",
	}
	if err := env.memStore.UpsertEntry(ctx, entry); err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	rec := doJSON(env, http.MethodGet, "/connections/"+key, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Connections   []memory.ConnectedArticle `json:"connections"`
		TotalArticles int                       `json:"totalArticles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Connections) != 1 || body.Connections[0].Strength != 3 {
		t.Fatalf("unexpected connections: %+v", body.Connections)
	}
	got := body.Connections[0]
	if got.Summary != entry.Summary || got.Title != entry.Title || got.Author != entry.Author {
		t.Fatalf("connection not joined with its article entry: %+v", got)
	}
	if got.CredibilityScore != entry.CredibilityScore || got.CredibilityLabel != entry.CredibilityLabel {
		t.Fatalf("connection missing credibility from its entry: %+v", got)
	}
	if body.TotalArticles != 1 {
		t.Fatalf("unexpected total: %d", body.TotalArticles)
	}
}

func TestAnalyzeStreamEmitsEventFrames(t *testing.T) {
	env := newTestServer()
	rec := doJSON(env, http.MethodPost, "/analyze/stream", `{
		"url": "https://example.com/articles/stream",
		"content": "Streaming content to analyze."
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	var types []string
	for _, frame := range strings.Split(rec.Body.String(), "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("malformed frame: %q", frame)
		}
		var event analysis.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &event); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		types = append(types, event.Type)
	}
	if len(types) == 0 || types[0] != analysis.EventStatus {
		t.Fatalf("stream must open with status, got %v", types)
	}
	if types[len(types)-1] != analysis.EventComplete {
		t.Fatalf("stream must end with complete, got %v", types)
	}
}
