package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fluentedge/placement/internal/scoring"

	openai "github.com/sashabaranov/go-openai"
)

// maxResponseRunes caps how much student text is forwarded to the grader.
const maxResponseRunes = 10000

// Client wraps an OpenAI-compatible API client and implements
// scoring.Evaluator.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new grading client for an OpenAI-compatible endpoint.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the grading endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("grading endpoint unreachable: %w", err)
	}
	return nil
}

// Evaluate sends one writing/speaking response to the grading model and
// parses the structured result. One attempt, no retries; the caller's
// fallback policy absorbs failures.
func (c *Client) Evaluate(ctx context.Context, req scoring.EvalRequest) (*scoring.EvalResult, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("grading API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("grading API returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("grading response", "raw", raw)

	var result scoring.EvalResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}

	return &result, nil
}

func buildSystemPrompt(req scoring.EvalRequest) string {
	var sb strings.Builder
	sb.WriteString("You are a Cambridge English Assessment examiner grading a placement test response.\n\n")
	sb.WriteString("TARGET CEFR LEVEL: " + string(req.TargetLevel) + "\n\n")

	sb.WriteString("Grade against these criteria, each scored 0 to 5:\n")
	for _, criterion := range req.Rubric {
		sb.WriteString("- " + criterion + "\n")
	}

	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"criteriaScores": {"<criterion>": <0-5>, ...}, "overallScore": <number 0 to 20>, "feedback": "<brief feedback>"}`)
	sb.WriteString("\n")

	return sb.String()
}

func buildUserPrompt(req scoring.EvalRequest) string {
	var sb strings.Builder
	sb.WriteString("TASK: " + req.TaskPrompt + "\n\n")
	sb.WriteString("STUDENT RESPONSE:\n")
	sb.WriteString(sanitizeResponse(req.Response))
	sb.WriteString("\n")
	return sb.String()
}

func sanitizeResponse(response string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return "[No response provided]"
	}
	if utf8.RuneCountInString(response) > maxResponseRunes {
		runes := []rune(response)
		response = string(runes[:maxResponseRunes]) + "\n\n[Response truncated due to length]"
	}
	return response
}
