package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var (
	thinkTagPattern     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	markdownBlockPattern = regexp.MustCompile("(?s)```markdown\\s*\\n(.*?)\\n```")
)

// extractMarkdownBlock strips any <think>...</think> reasoning trace some
// local models emit, then returns the last fenced ```markdown``` block if
// present, or the stripped text verbatim otherwise.
func extractMarkdownBlock(text string) string {
	stripped := thinkTagPattern.ReplaceAllString(text, "")
	matches := markdownBlockPattern.FindAllStringSubmatch(stripped, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(stripped)
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}

// VLLMClient calls an OpenAI-compatible chat-completions endpoint (vLLM,
// or any other OpenAI-API-compatible local server), reusing the teacher's
// raw-HTTP OpenAI adapter shape since vLLM serves the same wire format.
type VLLMClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
}

// NewVLLMClient constructs a VLLMClient. apiKey may be empty for servers
// that don't require one; the request still sends "EMPTY" as a
// placeholder bearer token, matching vLLM's own convention.
func NewVLLMClient(baseURL, apiKey, model string, defaultMaxTokens int) *VLLMClient {
	if apiKey == "" {
		apiKey = "EMPTY"
	}
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 2048
	}
	return &VLLMClient{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

func (c *VLLMClient) Generate(ctx context.Context, systemPrompt, userPrompt string, params GenerateParams) (string, error) {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	payload := map[string]interface{}{
		"model":      c.model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
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

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("vllm llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from vllm")
	}

	return extractMarkdownBlock(result.Choices[0].Message.Content), nil
}

func (c *VLLMClient) BackendInfo() string {
	return fmt.Sprintf("vLLM (%s @ %s)", c.model, c.baseURL)
}
