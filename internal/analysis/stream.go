package analysis

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/smartsummary/internal/helpers"
)

// Stream event types. Chunk events carry raw incremental provider text; only
// the *_complete events carry trustworthy structured data.
const (
	EventStatus              = "status"
	EventSummaryChunk        = "summary_chunk"
	EventSummaryComplete     = "summary_complete"
	EventCredibilityChunk    = "credibility_chunk"
	EventCredibilityComplete = "credibility_complete"
	EventFactCheckComplete   = "fact_check_complete"
	EventComplete            = "complete"
	EventError               = "error"
)

// StreamEvent is one frame of the analyze-stream response.
type StreamEvent struct {
	Type        string                 `json:"type"`
	Message     string                 `json:"message,omitempty"`
	Text        string                 `json:"text,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
	Bullets     []string               `json:"bullets,omitempty"`
	Credibility *CredibilityAssessment `json:"credibility,omitempty"`
	FactCheck   *FactCheckReport       `json:"fact_check,omitempty"`
	Result      *Result                `json:"result,omitempty"`
}

// AnalyzeStream runs the analysis pipeline while forwarding progress to the
// caller. The summary and credibility phases run sequentially (not
// interleaved) so summary_complete always precedes the first
// credibility_chunk, which keeps client-side reconstruction simple. The
// returned channel is closed exactly once, after the terminal complete or
// error event. Provider failures degrade exactly as in Analyze and still
// reach complete.
func (o *Orchestrator) AnalyzeStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 16)

	go func() {
		defer close(ch)
		startTime := time.Now()

		emit := func(event StreamEvent) bool {
			select {
			case ch <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(StreamEvent{Type: EventStatus, Message: "Starting analysis"}) {
			return
		}

		key := helpers.CacheKey(req.URL)
		if cached, ok := o.cache.Get(ctx, key); ok {
			o.logger.Printf("Streaming cached result for %s", req.URL)
			o.telemetry.RecordAnalysis(time.Since(startTime), true)
			emit(StreamEvent{Type: EventComplete, Result: &cached})
			return
		}

		cleaned := CleanContent(req.Content, o.cfg.Analysis.MaxContentTokens)

		// Phase 1: summary
		emit(StreamEvent{Type: EventStatus, Message: "Summarizing"})
		sumRes, sumErr := o.caps.SummarizeStream(ctx, cleaned, req.Metadata, func(delta string) {
			emit(StreamEvent{Type: EventSummaryChunk, Text: delta})
		})
		summary, bullets := o.resolveSummary(ctx, cleaned, req.Metadata, sumRes, sumErr)
		if !emit(StreamEvent{Type: EventSummaryComplete, Summary: summary, Bullets: bullets}) {
			return
		}

		// Phase 2: credibility
		emit(StreamEvent{Type: EventStatus, Message: "Assessing credibility"})
		credRes, credErr := o.caps.AssessCredibilityStream(ctx, cleaned, req.Metadata, req.URL, func(delta string) {
			emit(StreamEvent{Type: EventCredibilityChunk, Text: delta})
		})
		credibility := o.resolveCredibility(credRes, credErr)
		if !emit(StreamEvent{Type: EventCredibilityComplete, Credibility: &credibility}) {
			return
		}

		// Phase 3: fact check
		emit(StreamEvent{Type: EventStatus, Message: "Checking claims"})
		factRes, factErr := o.caps.FactCheck(ctx, cleaned, req.Metadata)
		factCheck := o.resolveFactCheck(factRes, factErr)
		if !emit(StreamEvent{Type: EventFactCheckComplete, FactCheck: &factCheck}) {
			return
		}

		result, err := o.assemble(ctx, req, key, cleaned, summary, bullets, credibility, factCheck)
		if err != nil {
			o.logger.Printf("Stream assembly failed for %s: %v", req.URL, err)
			o.telemetry.RecordAnalysisFailure()
			emit(StreamEvent{Type: EventError, Message: "Failed to analyze content"})
			return
		}

		o.telemetry.RecordAnalysis(time.Since(startTime), false)
		emit(StreamEvent{Type: EventComplete, Result: &result})
	}()

	return ch, nil
}
