package analysis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func collectEvents(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var collected []StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-deadline:
			t.Fatalf("stream never closed; got %d events", len(collected))
		}
	}
}

func TestAnalyzeStreamEventOrdering(t *testing.T) {
	google := &fakeProvider{name: "google", generate: routeGoogle}
	anthropic := &fakeProvider{name: "anthropic", generate: routeAnthropic}
	orch, _, _ := newTestOrchestrator(google, anthropic, nil)

	events, err := orch.AnalyzeStream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	collected := collectEvents(t, events)

	if len(collected) == 0 || collected[0].Type != EventStatus {
		t.Fatalf("stream must open with a status event")
	}
	last := collected[len(collected)-1]
	if last.Type != EventComplete || last.Result == nil {
		t.Fatalf("stream must terminate with complete, got %s", last.Type)
	}

	summaryComplete := -1
	firstCredChunk := -1
	factCheckComplete := -1
	for i, event := range collected {
		switch event.Type {
		case EventSummaryComplete:
			summaryComplete = i
		case EventCredibilityChunk:
			if firstCredChunk == -1 {
				firstCredChunk = i
			}
		case EventFactCheckComplete:
			factCheckComplete = i
		}
	}
	if summaryComplete == -1 || factCheckComplete == -1 {
		t.Fatalf("missing phase completion events")
	}
	if firstCredChunk != -1 && firstCredChunk < summaryComplete {
		t.Fatalf("credibility chunk emitted before summary_complete")
	}
	if factCheckComplete < summaryComplete {
		t.Fatalf("fact_check_complete before summary_complete")
	}
}

func TestAnalyzeStreamChunksCarryRawText(t *testing.T) {
	google := &fakeProvider{name: "google", generate: routeGoogle}
	anthropic := &fakeProvider{name: "anthropic", generate: routeAnthropic}
	orch, _, _ := newTestOrchestrator(google, anthropic, nil)

	events, err := orch.AnalyzeStream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunkText string
	var summaryComplete StreamEvent
	for _, event := range collectEvents(t, events) {
		switch event.Type {
		case EventSummaryChunk:
			chunkText += event.Text
		case EventSummaryComplete:
			summaryComplete = event
		}
	}
	raw, _ := routeGoogle("You extract factual summaries from source material.")
	if chunkText != raw {
		t.Fatalf("chunks should reassemble the raw provider output, got %q", chunkText)
	}
	if summaryComplete.Summary != "A concise summary." {
		t.Fatalf("summary_complete carries parsed summary, got %q", summaryComplete.Summary)
	}
}

func TestAnalyzeStreamCacheHit(t *testing.T) {
	google := &fakeProvider{name: "google", generate: routeGoogle}
	anthropic := &fakeProvider{name: "anthropic", generate: routeAnthropic}
	orch, _, _ := newTestOrchestrator(google, anthropic, nil)

	req := testRequest()
	if _, err := orch.Analyze(context.Background(), req); err != nil {
		t.Fatalf("seed analyze: %v", err)
	}
	callsBefore := google.callCount() + anthropic.callCount()

	events, err := orch.AnalyzeStream(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	collected := collectEvents(t, events)
	last := collected[len(collected)-1]
	if last.Type != EventComplete || last.Result == nil {
		t.Fatalf("cache hit must still terminate with complete")
	}
	if got := google.callCount() + anthropic.callCount(); got != callsBefore {
		t.Fatalf("cache hit made provider calls")
	}
}

func TestAnalyzeStreamDegradesToComplete(t *testing.T) {
	down := func(string) (string, error) { return "", errors.New("provider down") }
	google := &fakeProvider{name: "google", generate: down}
	anthropic := &fakeProvider{name: "anthropic", generate: down}
	orch, _, _ := newTestOrchestrator(google, anthropic, nil)

	events, err := orch.AnalyzeStream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	collected := collectEvents(t, events)
	last := collected[len(collected)-1]
	if last.Type != EventComplete {
		t.Fatalf("provider failures must still reach complete, got %s", last.Type)
	}
	if last.Result.Summary != DegradedSummary {
		t.Fatalf("expected degraded summary in final result")
	}
}

func TestAnalyzeStreamRejectsMissingFields(t *testing.T) {
	google := &fakeProvider{name: "google", generate: routeGoogle}
	anthropic := &fakeProvider{name: "anthropic", generate: routeAnthropic}
	orch, _, _ := newTestOrchestrator(google, anthropic, nil)

	if _, err := orch.AnalyzeStream(context.Background(), Request{Content: "text"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
