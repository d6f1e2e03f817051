package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ClaudeClient calls the Anthropic Messages API directly over net/http,
// matching the teacher's raw-HTTP LLM adapter style rather than pulling in
// the Anthropic SDK.
type ClaudeClient struct {
	apiKey    string
	url       string
	model     string
	maxTokens int
}

// NewClaudeClient constructs a ClaudeClient. defaultMaxTokens is used
// whenever a call's GenerateParams.MaxTokens is zero.
func NewClaudeClient(apiKey, model string, defaultMaxTokens int) *ClaudeClient {
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 2048
	}
	return &ClaudeClient{
		apiKey:    apiKey,
		url:       "https://api.anthropic.com/v1/messages",
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

func (c *ClaudeClient) Generate(ctx context.Context, systemPrompt, userPrompt string, params GenerateParams) (string, error) {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	payload := map[string]interface{}{
		"model":      c.model,
		"max_tokens": maxTokens,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt},
		},
	}
	// Anthropic rejects a request that sets both temperature and top_p, so
	// only the fields the caller actually populated are sent; omitting both
	// falls back to the API's own defaults.
	if params.Temperature != nil {
		payload["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		payload["top_p"] = *params.TopP
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("claude llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content returned from claude")
	}
	return result.Content[0].Text, nil
}

func (c *ClaudeClient) BackendInfo() string {
	return fmt.Sprintf("Claude (%s)", c.model)
}
