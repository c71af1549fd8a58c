package analysis

import (
	"fmt"
	"net/url"
	"strings"
)

// Prompt templates for the provider capabilities. Each asks for a JSON
// payload; responses are run through the best-effort extractor because models
// routinely wrap the JSON in prose or code fences.

const promptContentCap = 6000

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func capContent(content string) string {
	if len(content) > promptContentCap {
		return content[:promptContentCap]
	}
	return content
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "Unknown"
}

func summaryPrompt(content string, meta Metadata) string {
	return fmt.Sprintf(`You extract factual summaries from source material. You do not add external facts.

SOURCE METADATA:
Title: %s
Author: %s
Published: %s

FULL TEXT:
%s

TASK:
1. Give a 2-3 sentence plain-English summary of the source. No hype.
2. Give 5 concise bullet points of the main claims/conclusions from the source, using ONLY what appears in the source.
3. Return valid JSON with:
{
  "summary": "...",
  "bullets": ["...", "...", "...", "...", "..."]
}

Return ONLY the JSON, no other text.`,
		orUnknown(meta.Title), orUnknown(meta.Author), orUnknown(meta.PublishedAt), content)
}

func credibilityPrompt(content string, meta Metadata, sourceURL string) string {
	source := meta.Source
	if source == "" {
		source = hostOf(sourceURL)
	}
	return fmt.Sprintf(`You are a careful media literacy assistant. You assess credibility and bias, not political alignment. Be specific and calm.

We have an article/video with this metadata:

Source: %s
Author: %s
Published: %s

Content:
%s

TASK:
1. Rate overall credibility 0.0 (not trustworthy) -> 1.0 (highly trustworthy).
2. Provide a one-word label: "Reliable", "Mixed", or "Low".
3. Assess the website, the author, and the content separately, citing things like:
   - Expertise / reputation of the source
   - Emotional or manipulative language
   - Presence/absence of data, citations, or verifiable specifics
   - Whether it's reporting vs opinion
4. Mention any obvious bias.
5. If you know published works by this author, list up to 3 as author_sources.

Return JSON:
{
  "score": 0.82,
  "label": "Reliable",
  "overall_assessment": "2-4 sentences explaining the overall verdict",
  "score_breakdown": {
    "website_score": 0.8,
    "author_score": 0.7,
    "content_score": 0.85,
    "explanation": "..."
  },
  "website_analysis": "...",
  "author_analysis": "...",
  "content_analysis": "...",
  "author_sources": [{"index": 1, "title": "...", "url": "..."}]
}

Return ONLY the JSON, no other text.`,
		source, orUnknown(meta.Author), orUnknown(meta.PublishedAt), capContent(content))
}

func factCheckPrompt(content string, meta Metadata) string {
	return fmt.Sprintf(`You are a fact-checking assistant. Identify the main verifiable claims in the source below and assess each one.

SOURCE METADATA:
Title: %s
Author: %s

CONTENT:
%s

TASK:
1. Extract up to 5 of the most significant verifiable claims.
2. For each claim give a status: "Confirmed", "Partially Confirmed", "Uncertain", or "Contradicted".
3. For each claim give a short assessment, a reliability score 0.0-1.0, and the search queries you would use to verify it.
4. List any sources you drew on.

Return JSON:
{
  "claims": [
    {"claim": "...", "status": "Confirmed", "assessment": "...", "reliability": 0.9, "search_queries": ["..."]}
  ],
  "sources": [{"index": 1, "title": "...", "url": "...", "snippet": "..."}]
}

Return ONLY the JSON, no other text.`,
		orUnknown(meta.Title), orUnknown(meta.Author), capContent(content))
}

func topicsPrompt(summary string, bullets []string) string {
	return fmt.Sprintf(`Extract 3-5 short topic tags from this article summary. Topics should be lowercase, 1-3 words each, and reusable across articles (e.g. "climate change", "ai regulation", "elections").

SUMMARY:
%s

KEY POINTS:
- %s

Return JSON:
["topic one", "topic two", "topic three"]

Return ONLY the JSON array, no other text.`,
		summary, strings.Join(bullets, "\n- "))
}

func connectionPrompt(currentTitle, currentSummary, otherTitle, otherSummary string, sharedTopics []string) string {
	shared := strings.Join(sharedTopics, ", ")
	if shared == "" {
		shared = "none (same author)"
	}
	return fmt.Sprintf(`Two previously analyzed articles appear related. In ONE sentence, explain the most meaningful connection between them for a reader. Be concrete, no hedging.

ARTICLE A: %s
%s

ARTICLE B: %s
%s

SHARED TOPICS: %s

Return only the sentence, no preamble.`,
		currentTitle, currentSummary, otherTitle, otherSummary, shared)
}
