package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/smartsummary/config"
	"github.com/mohammad-safakhou/smartsummary/internal/helpers"
	"github.com/mohammad-safakhou/smartsummary/internal/telemetry"
)

// Orchestrator coordinates the provider capabilities for a single analysis
// request: cache check, concurrent fan-out, fallback chains, degraded
// defaults, and the fire-and-forget memory update. Provider failures never
// fail a request; the response shape is always complete.
type Orchestrator struct {
	cfg           *config.Config
	logger        *log.Logger
	telemetry     *telemetry.Telemetry
	caps          *Capabilities
	cache         Cache
	conversations ConversationCreator
	memory        MemoryRecorder
}

// NewOrchestrator creates a new orchestrator instance
func NewOrchestrator(cfg *config.Config, tele *telemetry.Telemetry, caps *Capabilities, cache Cache, conversations ConversationCreator, memory MemoryRecorder) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		logger:        log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		telemetry:     tele,
		caps:          caps,
		cache:         cache,
		conversations: conversations,
		memory:        memory,
	}
}

// Analyze runs the full analysis pipeline for a scraped source. It fails
// only on malformed input; every provider failure is absorbed into the
// documented degraded values.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	startTime := time.Now()

	pageType := req.Type
	if pageType == "" {
		pageType = "page"
	}
	o.logger.Printf("Analyzing %s: %s", pageType, req.URL)

	key := helpers.CacheKey(req.URL)
	if cached, ok := o.cache.Get(ctx, key); ok {
		o.logger.Printf("Returning cached result for %s", req.URL)
		o.telemetry.RecordAnalysis(time.Since(startTime), true)
		return cached, nil
	}

	cleaned := CleanContent(req.Content, o.cfg.Analysis.MaxContentTokens)

	// Fan out to the three capabilities concurrently. Each is allowed to
	// fail independently; the join waits for all three regardless.
	var (
		wg      sync.WaitGroup
		sumRes  SummaryResult
		sumErr  error
		credRes CredibilityAssessment
		credErr error
		factRes FactCheckReport
		factErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		sumRes, sumErr = o.caps.Summarize(ctx, cleaned, req.Metadata)
	}()
	go func() {
		defer wg.Done()
		credRes, credErr = o.caps.AssessCredibility(ctx, cleaned, req.Metadata, req.URL)
	}()
	go func() {
		defer wg.Done()
		factRes, factErr = o.caps.FactCheck(ctx, cleaned, req.Metadata)
	}()
	wg.Wait()

	summary, bullets := o.resolveSummary(ctx, cleaned, req.Metadata, sumRes, sumErr)
	credibility := o.resolveCredibility(credRes, credErr)
	factCheck := o.resolveFactCheck(factRes, factErr)

	result, err := o.assemble(ctx, req, key, cleaned, summary, bullets, credibility, factCheck)
	if err != nil {
		o.telemetry.RecordAnalysisFailure()
		return Result{}, err
	}

	o.telemetry.RecordAnalysis(time.Since(startTime), false)
	o.logger.Printf("Completed analysis for %s in %v", req.URL, time.Since(startTime))
	return result, nil
}

// resolveSummary applies the summary fallback chain: primary summarizer,
// then the secondary provider with the same prompt contract, then the fixed
// degraded values.
func (o *Orchestrator) resolveSummary(ctx context.Context, cleaned string, meta Metadata, res SummaryResult, err error) (string, []string) {
	if err == nil {
		return res.Summary, res.Bullets
	}
	o.logger.Printf("Primary summarizer failed (%v), retrying via secondary provider", err)
	fallback, fbErr := o.caps.SummarizeFallback(ctx, cleaned, meta)
	if fbErr == nil {
		return fallback.Summary, fallback.Bullets
	}
	o.logger.Printf("Secondary summary failed as well (%v), using degraded summary", fbErr)
	return DegradedSummary, DegradedBullets()
}

func (o *Orchestrator) resolveCredibility(res CredibilityAssessment, err error) CredibilityAssessment {
	if err == nil {
		return res
	}
	o.logger.Printf("Credibility assessment failed (%v), using degraded assessment", err)
	return DegradedCredibility()
}

func (o *Orchestrator) resolveFactCheck(res FactCheckReport, err error) FactCheckReport {
	if err == nil {
		return res
	}
	o.logger.Printf("Fact check failed (%v), using empty report", err)
	return EmptyFactCheckReport()
}

// assemble builds the final result, seeds the conversation, writes the
// cache entry and kicks off the asynchronous memory update.
func (o *Orchestrator) assemble(ctx context.Context, req Request, key, cleaned, summary string, bullets []string, credibility CredibilityAssessment, factCheck FactCheckReport) (Result, error) {
	if len(factCheck.Sources) > 0 {
		credibility.FactCheckSources = factCheck.Sources
	}

	conversationID, err := o.conversations.Create(ctx, req.URL, cleaned, req.Metadata)
	if err != nil {
		return Result{}, fmt.Errorf("create conversation: %w", err)
	}

	result := Result{
		Summary:        summary,
		Bullets:        bullets,
		Credibility:    credibility,
		FactCheck:      factCheck,
		SourceMeta:     o.buildSourceMeta(req.Metadata, cleaned),
		ConversationID: conversationID,
	}

	o.cache.Set(ctx, key, result)

	// Memory indexing runs detached: the response never waits for it and
	// never fails because of it.
	if o.memory != nil {
		go func(req Request, result Result) {
			memCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			o.memory.RecordArticle(memCtx, req, result)
		}(req, result)
	}

	return result, nil
}

func (o *Orchestrator) buildSourceMeta(meta Metadata, cleaned string) SourceMeta {
	wordCount := len(strings.Fields(cleaned))
	wpm := o.cfg.Analysis.ReadingWordsPerMin
	if wpm <= 0 {
		wpm = 200
	}
	readingTime := (wordCount + wpm - 1) / wpm
	return SourceMeta{
		Title:       meta.Title,
		Author:      meta.Author,
		PublishedAt: meta.PublishedAt,
		Source:      meta.Source,
		WordCount:   wordCount,
		ReadingTime: readingTime,
	}
}
