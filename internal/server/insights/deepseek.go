package insights

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/go-deepseek/deepseek"
	"github.com/go-deepseek/deepseek/request"
)

const maxItems = 3

// DeepSeekGenerator asks a chat model for short tips.
type DeepSeekGenerator struct {
	model    string
	complete func(ctx context.Context, system, prompt string) (string, error)
}

func NewDeepSeekGenerator(apiKey, model string) (*DeepSeekGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("DeepSeek API key is required")
	}
	client, err := deepseek.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create DeepSeek client: %w", err)
	}

	g := &DeepSeekGenerator{model: model}
	g.complete = func(ctx context.Context, system, prompt string) (string, error) {
		resp, err := client.CallChatCompletionsChat(ctx, &request.ChatCompletionsRequest{
			Model: g.model,
			Messages: []*request.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: prompt},
			},
			Stream: false,
		})
		if err != nil {
			return "", fmt.Errorf("DeepSeek API request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	}
	return g, nil
}

var systemPrompts = map[string]string{
	KindInsight: "You review a person's week of reminders and reply with at most three one-line " +
		"observations about their productivity. No preamble, one observation per line.",
	KindSuggestion: "You look at a person's recent reminders and reply with at most three one-line " +
		"suggestions for tasks they might add today. No preamble, one suggestion per line.",
}

func (g *DeepSeekGenerator) Generate(ctx context.Context, kind string, recent []*models.Reminder) ([]string, error) {
	system, ok := systemPrompts[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	out, err := g.complete(ctx, system, describe(recent))
	if err != nil {
		return nil, err
	}
	return parseLines(out), nil
}

// describe renders reminders as a compact prompt.
func describe(recent []*models.Reminder) string {
	if len(recent) == 0 {
		return "No reminders yet."
	}
	var b strings.Builder
	for _, r := range recent {
		status := "open"
		if r.IsCompleted {
			status = "done"
		}
		fmt.Fprintf(&b, "- %s | %s %s | %s | %s priority | %s\n", r.Title, r.Date, r.Time, r.Category, r.Priority, status)
	}
	return b.String()
}

// parseLines keeps up to three non-empty lines, dropping list markers.
func parseLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxItems {
			break
		}
	}
	return out
}
