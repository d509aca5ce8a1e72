package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	Temperature = 0.1
	maxTokens   = 256

	OpenAIBaseURL    = "https://api.openai.com/v1"
	DeepSeekBaseURL  = "https://api.deepseek.com/v1"
	AnthropicBaseURL = "https://api.anthropic.com/v1"
	GeminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"

	anthropicVersion = "2023-06-01"
)

// Completer sends one prompt to a text model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// postJSON sends body to endpoint and decodes a 2xx response into out.
func postJSON(ctx context.Context, hc *http.Client, endpoint string, headers map[string]string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient talks to OpenAI-compatible chat completion endpoints. DeepSeek
// uses the same wire format under its own base URL.
type ChatClient struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Model   string
}

func NewOpenAI(hc *http.Client, key, model string) *ChatClient {
	return &ChatClient{HTTP: hc, BaseURL: OpenAIBaseURL, APIKey: key, Model: model}
}

func NewDeepSeek(hc *http.Client, key, model string) *ChatClient {
	return &ChatClient{HTTP: hc, BaseURL: DeepSeekBaseURL, APIKey: key, Model: model}
}

func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model": c.Model,
		"messages": []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		"temperature": Temperature,
		"max_tokens":  maxTokens,
	}
	var out struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.APIKey}
	if err := postJSON(ctx, httpClient(c.HTTP), strings.TrimRight(c.BaseURL, "/")+"/chat/completions", headers, body, &out); err != nil {
		return "", errors.Wrapf(err, "chat completion %s", c.Model)
	}
	if len(out.Choices) == 0 {
		return "", errors.Errorf("chat completion %s: empty choices", c.Model)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

type AnthropicClient struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Model   string
}

func NewAnthropic(hc *http.Client, key, model string) *AnthropicClient {
	return &AnthropicClient{HTTP: hc, BaseURL: AnthropicBaseURL, APIKey: key, Model: model}
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":       c.Model,
		"system":      systemPrompt,
		"messages":    []chatMessage{{Role: "user", Content: prompt}},
		"temperature": Temperature,
		"max_tokens":  maxTokens,
	}
	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	headers := map[string]string{
		"x-api-key":         c.APIKey,
		"anthropic-version": anthropicVersion,
	}
	if err := postJSON(ctx, httpClient(c.HTTP), strings.TrimRight(c.BaseURL, "/")+"/messages", headers, body, &out); err != nil {
		return "", errors.Wrapf(err, "anthropic messages %s", c.Model)
	}
	var sb strings.Builder
	for _, part := range out.Content {
		if part.Type == "" || part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.Errorf("anthropic messages %s: empty content", c.Model)
	}
	return strings.TrimSpace(sb.String()), nil
}

type GeminiClient struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Model   string
}

func NewGemini(hc *http.Client, key, model string) *GeminiClient {
	return &GeminiClient{HTTP: hc, BaseURL: GeminiBaseURL, APIKey: key, Model: model}
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Parts []part `json:"parts"`
	}
	body := map[string]any{
		"systemInstruction": content{Parts: []part{{Text: systemPrompt}}},
		"contents":          []content{{Parts: []part{{Text: prompt}}}},
		"generationConfig": map[string]any{
			"temperature":     Temperature,
			"maxOutputTokens": maxTokens,
		},
	}
	var out struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?%s",
		strings.TrimRight(c.BaseURL, "/"), url.PathEscape(c.Model), url.Values{"key": {c.APIKey}}.Encode())
	if err := postJSON(ctx, httpClient(c.HTTP), endpoint, nil, body, &out); err != nil {
		// the key travels in the query string; keep it out of the error.
		if c.APIKey != "" && strings.Contains(err.Error(), c.APIKey) {
			return "", errors.Errorf("gemini generateContent %s: %s", c.Model, redact(err.Error(), c.APIKey))
		}
		return "", errors.Wrapf(err, "gemini generateContent %s", c.Model)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.Errorf("gemini generateContent %s: empty candidates", c.Model)
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func httpClient(hc *http.Client) *http.Client {
	if hc == nil {
		return defaultHTTPClient()
	}
	return hc
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "REDACTED")
}
