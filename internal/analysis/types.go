package analysis

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/mohammad-safakhou/smartsummary/internal/helpers"
)

// ErrInvalidRequest marks a request missing its required fields. It is the
// only error Analyze surfaces: downstream provider failures are absorbed into
// degraded field values so the response shape is always renderable.
var ErrInvalidRequest = errors.New("missing required fields: url, content")

// Metadata carries source metadata captured by the extension at scrape time.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Source      string `json:"source,omitempty"`
	Channel     string `json:"channel,omitempty"`
}

// Request is a single analysis request for a scraped page or video.
// Immutable once submitted; the URL is the dedup key.
type Request struct {
	URL      string   `json:"url"`
	Content  string   `json:"content"`
	Type     string   `json:"type,omitempty"` // article or video
	Metadata Metadata `json:"metadata,omitempty"`
}

// Validate reports whether the request carries its required fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.URL) == "" || strings.TrimSpace(r.Content) == "" {
		return ErrInvalidRequest
	}
	return nil
}

// Result is the assembled analysis for one URL. Created once per unique URL
// (subject to the cache) and immutable afterwards.
type Result struct {
	Summary        string                `json:"summary"`
	Bullets        []string              `json:"bullets"`
	Credibility    CredibilityAssessment `json:"credibility"`
	FactCheck      FactCheckReport       `json:"fact_check"`
	SourceMeta     SourceMeta            `json:"source_meta"`
	ConversationID string                `json:"conversation_id"`
}

// SourceMeta is request metadata joined with computed reading stats.
type SourceMeta struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Source      string `json:"source,omitempty"`
	WordCount   int    `json:"word_count"`
	ReadingTime int    `json:"reading_time"`
}

// Credibility labels.
const (
	LabelReliable = "Reliable"
	LabelMixed    = "Mixed"
	LabelLow      = "Low"
	LabelUnknown  = "Unknown"
)

// ScoreBreakdown splits a credibility score into its contributing factors.
type ScoreBreakdown struct {
	WebsiteScore float64 `json:"website_score"`
	AuthorScore  float64 `json:"author_score"`
	ContentScore float64 `json:"content_score"`
	Explanation  string  `json:"explanation"`
}

// SourceRef is a numbered external reference returned by a provider.
type SourceRef struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// CredibilityAssessment is the structured credibility verdict for a source.
// Score and Label are always present, even when the assessor fails.
type CredibilityAssessment struct {
	Score             float64         `json:"score"`
	Label             string          `json:"label"`
	OverallAssessment string          `json:"overall_assessment"`
	ScoreBreakdown    *ScoreBreakdown `json:"score_breakdown,omitempty"`
	WebsiteAnalysis   string          `json:"website_analysis,omitempty"`
	AuthorAnalysis    string          `json:"author_analysis,omitempty"`
	ContentAnalysis   string          `json:"content_analysis,omitempty"`
	AuthorSources     []SourceRef     `json:"author_sources,omitempty"`
	FactCheckSources  []SourceRef     `json:"fact_check_sources,omitempty"`
}

// Fact-check claim statuses.
const (
	StatusConfirmed          = "Confirmed"
	StatusPartiallyConfirmed = "Partially Confirmed"
	StatusUncertain          = "Uncertain"
	StatusContradicted       = "Contradicted"
)

// FactClaim is a single verifiable claim extracted from the source.
type FactClaim struct {
	Claim         string   `json:"claim"`
	Status        string   `json:"status"`
	Assessment    string   `json:"assessment"`
	Reliability   float64  `json:"reliability"`
	SearchQueries []string `json:"search_queries"`
}

// FactCheckReport holds extracted claims and the sources consulted.
// Empty slices, never nil, are the valid failure state.
type FactCheckReport struct {
	Claims  []FactClaim `json:"claims"`
	Sources []SourceRef `json:"sources"`
}

// EmptyFactCheckReport is the degraded report used when the fact checker
// fails: present, renderable, and empty.
func EmptyFactCheckReport() FactCheckReport {
	return FactCheckReport{Claims: []FactClaim{}, Sources: []SourceRef{}}
}

// SummaryResult is the summarizer capability's output.
type SummaryResult struct {
	Summary string   `json:"summary"`
	Bullets []string `json:"bullets"`
}

// Fixed degraded values substituted when a capability and its fallbacks fail.
const (
	DegradedSummary = "Summary temporarily unavailable. The content has been saved and you can still chat about it."

	DegradedCredibilityNote = "Credibility analysis temporarily unavailable. This does not reflect on the source quality."

	unableToAnalyze = "Unable to analyze at this time."
)

// DegradedBullets returns the fixed two-entry bullet list used when both
// summary paths fail.
func DegradedBullets() []string {
	return []string{
		"AI summarization is currently experiencing issues",
		"You can still use the chat feature to ask questions",
	}
}

// DegradedCredibility returns the fixed-shape assessment substituted on
// assessor failure. Every structured sub-field is populated so downstream
// consumers need no null-checks.
func DegradedCredibility() CredibilityAssessment {
	return CredibilityAssessment{
		Score:             0.5,
		Label:             LabelUnknown,
		OverallAssessment: DegradedCredibilityNote,
		ScoreBreakdown: &ScoreBreakdown{
			WebsiteScore: 0.5,
			AuthorScore:  0.5,
			ContentScore: 0.5,
			Explanation:  unableToAnalyze,
		},
		WebsiteAnalysis: unableToAnalyze,
		AuthorAnalysis:  unableToAnalyze,
		ContentAnalysis: unableToAnalyze,
	}
}

// CleanContent sanitises and truncates content to an approximate token
// budget before any provider call, using the ~4 chars/token approximation.
// The cut is deterministic: the same input always yields the same prompt.
func CleanContent(content string, maxTokens int) string {
	cleaned := helpers.SanitizeText(content)
	maxChars := maxTokens * 4
	if maxChars > 0 && len(cleaned) > maxChars {
		// Back up to a rune boundary so the cut never splits a character.
		for maxChars > 0 && !utf8.RuneStart(cleaned[maxChars]) {
			maxChars--
		}
		cleaned = cleaned[:maxChars]
	}
	return strings.TrimSpace(cleaned)
}

// ConversationCreator seeds a conversation for an analyzed source.
// Implemented by the conversation store; defined here so the orchestrator
// does not depend on the store package.
type ConversationCreator interface {
	Create(ctx context.Context, url, content string, meta Metadata) (string, error)
}

// MemoryRecorder receives completed analyses for the article memory index.
// Called fire-and-forget; implementations must never fail the analysis.
type MemoryRecorder interface {
	RecordArticle(ctx context.Context, req Request, result Result)
}
