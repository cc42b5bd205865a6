package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrUnparseable - модель ответила текстом, из которого не удалось извлечь вердикт.
var ErrUnparseable = errors.New("ai: не удалось разобрать ответ модели")

var codeBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// Client ходит в OpenAI-совместимый chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, model, apiKey string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Verdict - решение модели по отчёту о звонке.
type Verdict struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons"`
}

const reviewSystemPrompt = `Ты проверяешь отчёт профессионала после карьерной консультации.
Отчёт проходит, если он конкретный, относится к кандидату и содержит выполнимые шаги.
Ответь строго JSON: {"passed": true|false, "reasons": ["код_причины", ...]}.
Коды причин: generic_text, off_topic, actions_not_actionable, unsafe_content.`

// ReviewFeedback просит модель оценить текст отчёта и список действий.
func (c *Client) ReviewFeedback(ctx context.Context, text string, actions []string) (Verdict, error) {
	var b strings.Builder
	b.WriteString("Отчёт:\n")
	b.WriteString(text)
	b.WriteString("\n\nДействия:\n")
	for i, a := range actions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}

	content, err := c.chatCompletionWithOptions(ctx, []map[string]string{
		{"role": "system", "content": reviewSystemPrompt},
		{"role": "user", "content": b.String()},
	}, 256, 0)
	if err != nil {
		return Verdict{}, err
	}

	raw, ok := extractJSON(content)
	if !ok {
		return Verdict{}, ErrUnparseable
	}
	var v struct {
		Passed  *bool    `json:"passed"`
		Reasons []string `json:"reasons"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.Passed == nil {
		return Verdict{}, ErrUnparseable
	}
	return Verdict{Passed: *v.Passed, Reasons: v.Reasons}, nil
}

// chatCompletionWithOptions выполняет запрос с настраиваемыми параметрами.
func (c *Client) chatCompletionWithOptions(ctx context.Context, messages []map[string]string, maxTokens int, temperature float64) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("ai: baseURL не задан")
	}

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := c.baseURL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	url += "chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return "", fmt.Errorf("ai: код ответа %d: %v", resp.StatusCode, errorBody)
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
		return "", fmt.Errorf("ai: пустой ответ")
	}

	return result.Choices[0].Message.Content, nil
}

// extractJSON ищет JSON объект в тексте, который может содержать markdown.
func extractJSON(text string) ([]byte, bool) {
	if m := codeBlockRe.FindStringSubmatch(text); len(m) > 1 && json.Valid([]byte(m[1])) {
		return []byte(m[1]), true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		candidate := []byte(text[start : end+1])
		if json.Valid(candidate) {
			return candidate, true
		}
	}
	return nil, false
}
