package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Cohere defaults.
const (
	CohereModel   = "command-r"
	CohereBaseURL = "https://api.cohere.com"
)

// CohereProvider calls the Cohere v2 chat endpoint over plain HTTP.
type CohereProvider struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewCohereProvider builds a provider. An empty baseURL uses api.cohere.com.
func NewCohereProvider(apiKey, model, baseURL string) *CohereProvider {
	if baseURL == "" {
		baseURL = CohereBaseURL
	}
	return &CohereProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// Name returns "Cohere".
func (p *CohereProvider) Name() string { return "Cohere" }

type cohereMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cohereRequest struct {
	Model       string          `json:"model"`
	Messages    []cohereMessage `json:"messages"`
	Temperature float32         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type cohereResponse struct {
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// Generate posts a single user message to /v2/chat.
func (p *CohereProvider) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	body, err := json.Marshal(cohereRequest{
		Model:       p.model,
		Messages:    []cohereMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal cohere request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create cohere request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("cohere request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read cohere response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: cohere: %s", ErrRateLimited, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cohere: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out cohereResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode cohere response: %w", err)
	}
	var sb strings.Builder
	for _, c := range out.Message.Content {
		if c.Type == "" || c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}
