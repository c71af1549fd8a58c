package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/smartsummary/config"
)

// GeminiProvider calls the Google generative language API.
type GeminiProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(cfg config.ProviderConfig) *GeminiProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &GeminiProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) baseURL() string {
	if p.cfg.BaseURL != "" {
		return strings.TrimSuffix(p.cfg.BaseURL, "/")
	}
	return "https://generativelanguage.googleapis.com/v1beta"
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// Generate runs a one-shot prompt and returns the raw text response
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.GenerateWithSystem(ctx, "", []Message{{Role: "user", Content: prompt}})
}

// GenerateWithSystem runs a chat-style request with system instruction and history
func (p *GeminiProvider) GenerateWithSystem(ctx context.Context, system string, messages []Message) (string, error) {
	if p.cfg.APIKey == "" {
		return "", fmt.Errorf("google API key not configured: %w", ErrUnavailable)
	}

	reqBody := p.buildRequest(system, messages)
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL(), p.cfg.Model, p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	text := out.text()
	if text == "" {
		return "", fmt.Errorf("no candidates in response")
	}
	return text, nil
}

// GenerateStream runs a one-shot prompt, forwarding incremental text deltas
func (p *GeminiProvider) GenerateStream(ctx context.Context, prompt string, onDelta func(string)) (string, error) {
	if p.cfg.APIKey == "" {
		return "", fmt.Errorf("google API key not configured: %w", ErrUnavailable)
	}

	reqBody := p.buildRequest("", []Message{{Role: "user", Content: prompt}})
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL(), p.cfg.Model, p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		var frame geminiResponse
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			continue
		}
		if delta := frame.text(); delta != "" {
			full.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	if full.Len() == 0 {
		return "", fmt.Errorf("empty streamed response")
	}
	return full.String(), nil
}

// buildRequest maps provider-neutral messages onto Gemini's content format,
// where the assistant role is called "model".
func (p *GeminiProvider) buildRequest(system string, messages []Message) geminiRequest {
	var reqBody geminiRequest
	if system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		reqBody.Contents = append(reqBody.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if p.cfg.MaxTokens > 0 {
		reqBody.GenerationConfig.MaxOutputTokens = p.cfg.MaxTokens
	}
	return reqBody
}
