package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/smartsummary/internal/helpers"
	"github.com/mohammad-safakhou/smartsummary/internal/provider"
	"github.com/mohammad-safakhou/smartsummary/internal/telemetry"
)

// Capabilities binds each analysis capability to the provider that serves
// it. The summarizer, fact checker, topic extractor and connection reasoner
// run on the Google provider; credibility assessment and the secondary
// summary path run on Anthropic, so a single provider outage degrades only
// the capabilities routed to it.
type Capabilities struct {
	Google    provider.Provider
	Anthropic provider.Provider
	Telemetry *telemetry.Telemetry
}

func (c *Capabilities) record(capability string, p provider.Provider, start time.Time, err error) {
	if c.Telemetry == nil {
		return
	}
	event := telemetry.CapabilityEvent{
		Capability: capability,
		Provider:   p.Name(),
		Duration:   time.Since(start),
		Success:    err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	c.Telemetry.RecordCapabilityEvent(event)
}

// Summarize produces a short summary plus five bullets via the primary
// summarizer.
func (c *Capabilities) Summarize(ctx context.Context, content string, meta Metadata) (SummaryResult, error) {
	start := time.Now()
	raw, err := c.Google.Generate(ctx, summaryPrompt(content, meta))
	if err == nil {
		var out SummaryResult
		out, err = decodeSummary(raw)
		c.record("summarize", c.Google, start, err)
		return out, err
	}
	c.record("summarize", c.Google, start, err)
	return SummaryResult{}, err
}

// SummarizeStream is Summarize with incremental output forwarded to onDelta.
func (c *Capabilities) SummarizeStream(ctx context.Context, content string, meta Metadata, onDelta func(string)) (SummaryResult, error) {
	start := time.Now()
	raw, err := c.Google.GenerateStream(ctx, summaryPrompt(content, meta), onDelta)
	if err == nil {
		var out SummaryResult
		out, err = decodeSummary(raw)
		c.record("summarize", c.Google, start, err)
		return out, err
	}
	c.record("summarize", c.Google, start, err)
	return SummaryResult{}, err
}

// SummarizeFallback retries the summarization task through the secondary
// provider in one-shot mode with the same prompt contract.
func (c *Capabilities) SummarizeFallback(ctx context.Context, content string, meta Metadata) (SummaryResult, error) {
	start := time.Now()
	raw, err := c.Anthropic.Generate(ctx, summaryPrompt(capContent(content), meta))
	if err == nil {
		var out SummaryResult
		out, err = decodeSummary(raw)
		c.record("summarize_fallback", c.Anthropic, start, err)
		return out, err
	}
	c.record("summarize_fallback", c.Anthropic, start, err)
	return SummaryResult{}, err
}

// AssessCredibility produces the structured credibility verdict.
func (c *Capabilities) AssessCredibility(ctx context.Context, content string, meta Metadata, sourceURL string) (CredibilityAssessment, error) {
	start := time.Now()
	raw, err := c.Anthropic.Generate(ctx, credibilityPrompt(content, meta, sourceURL))
	if err == nil {
		var out CredibilityAssessment
		out, err = decodeCredibility(raw)
		c.record("credibility", c.Anthropic, start, err)
		return out, err
	}
	c.record("credibility", c.Anthropic, start, err)
	return CredibilityAssessment{}, err
}

// AssessCredibilityStream is AssessCredibility with incremental output.
func (c *Capabilities) AssessCredibilityStream(ctx context.Context, content string, meta Metadata, sourceURL string, onDelta func(string)) (CredibilityAssessment, error) {
	start := time.Now()
	raw, err := c.Anthropic.GenerateStream(ctx, credibilityPrompt(content, meta, sourceURL), onDelta)
	if err == nil {
		var out CredibilityAssessment
		out, err = decodeCredibility(raw)
		c.record("credibility", c.Anthropic, start, err)
		return out, err
	}
	c.record("credibility", c.Anthropic, start, err)
	return CredibilityAssessment{}, err
}

// FactCheck extracts and assesses the source's main verifiable claims.
func (c *Capabilities) FactCheck(ctx context.Context, content string, meta Metadata) (FactCheckReport, error) {
	start := time.Now()
	raw, err := c.Google.Generate(ctx, factCheckPrompt(content, meta))
	if err == nil {
		var out FactCheckReport
		out, err = decodeFactCheck(raw)
		c.record("fact_check", c.Google, start, err)
		return out, err
	}
	c.record("fact_check", c.Google, start, err)
	return FactCheckReport{}, err
}

// ExtractTopics derives 3-5 topic tags from a finished summary.
func (c *Capabilities) ExtractTopics(ctx context.Context, summary string, bullets []string) ([]string, error) {
	start := time.Now()
	raw, err := c.Google.Generate(ctx, topicsPrompt(summary, bullets))
	if err == nil {
		var out []string
		out, err = decodeTopics(raw)
		c.record("topics", c.Google, start, err)
		return out, err
	}
	c.record("topics", c.Google, start, err)
	return nil, err
}

// ExplainConnection produces a one-sentence explanation of why two analyzed
// articles relate.
func (c *Capabilities) ExplainConnection(ctx context.Context, currentTitle, currentSummary, otherTitle, otherSummary string, sharedTopics []string) (string, error) {
	start := time.Now()
	raw, err := c.Google.Generate(ctx, connectionPrompt(currentTitle, currentSummary, otherTitle, otherSummary, sharedTopics))
	c.record("connection", c.Google, start, err)
	if err != nil {
		return "", err
	}
	return firstLine(raw), nil
}

// firstLine keeps only the first non-empty line of a response; the
// connection prompt asks for a single sentence but models sometimes append
// commentary.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(s)
}

func decodeSummary(raw string) (SummaryResult, error) {
	text, err := helpers.ExtractJSON(raw)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summary response: %w", err)
	}
	var out SummaryResult
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return SummaryResult{}, fmt.Errorf("parse summary: %w", err)
	}
	if out.Summary == "" {
		return SummaryResult{}, fmt.Errorf("summary response missing summary field")
	}
	return out, nil
}

func decodeCredibility(raw string) (CredibilityAssessment, error) {
	text, err := helpers.ExtractJSON(raw)
	if err != nil {
		return CredibilityAssessment{}, fmt.Errorf("credibility response: %w", err)
	}
	var out CredibilityAssessment
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return CredibilityAssessment{}, fmt.Errorf("parse credibility: %w", err)
	}
	if out.Label == "" {
		out.Label = LabelUnknown
	}
	if out.Score < 0 {
		out.Score = 0
	}
	if out.Score > 1 {
		out.Score = 1
	}
	return out, nil
}

func decodeFactCheck(raw string) (FactCheckReport, error) {
	text, err := helpers.ExtractJSON(raw)
	if err != nil {
		return FactCheckReport{}, fmt.Errorf("fact check response: %w", err)
	}
	var out FactCheckReport
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return FactCheckReport{}, fmt.Errorf("parse fact check: %w", err)
	}
	if out.Claims == nil {
		out.Claims = []FactClaim{}
	}
	if out.Sources == nil {
		out.Sources = []SourceRef{}
	}
	return out, nil
}

func decodeTopics(raw string) ([]string, error) {
	text, err := helpers.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("topics response: %w", err)
	}
	var out []string
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	return out, nil
}
