package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultMaxTokens is the maximum content length before truncation (in tokens).
const DefaultMaxTokens = 16000

// PostMetadata contains LLM-generated metadata for a blog post.
type PostMetadata struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// Generator produces post summaries and topic tags using GPT-4o.
type Generator struct {
	client    *openai.Client
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator creates a metadata generator with the given OpenAI client.
// Optional maxTokens parameter sets truncation limit (defaults to DefaultMaxTokens).
func NewGenerator(client *openai.Client, maxTokens ...int) *Generator {
	max := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		max = maxTokens[0]
	}
	return &Generator{
		client:    client,
		maxTokens: max,
		logger:    slog.Default(),
	}
}

// GenerateMetadata analyzes a post and produces a summary and topic tags.
func (g *Generator) GenerateMetadata(ctx context.Context, title, content string) (*PostMetadata, error) {
	truncated := g.truncateContent(content)

	prompt := fmt.Sprintf(`Analyze this engineering blog post and provide:
1. A concise summary (2-3 sentences) of what the post covers and why it matters
2. A list of 3-8 short, lower-case topic tags (technologies, projects, fields)

Title: %s

Post content:
%s

Respond in JSON format:
{"summary": "Brief description of the post", "tags": ["tag1", "tag2"]}

Prefer tags such as: ai, machine learning, kubernetes, openshift, gpu, triton,
edge, iot, security, confidential computing, sustainability, automation, quantum.`, title, truncated)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModelGPT4o,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return parseResponse(resp.Choices[0].Message.Content)
}

// parseResponse decodes the model's JSON answer and normalises the tags:
// lower-cased, trimmed, deduplicated and sorted.
func parseResponse(raw string) (*PostMetadata, error) {
	var meta PostMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	meta.Summary = strings.TrimSpace(meta.Summary)

	seen := make(map[string]struct{}, len(meta.Tags))
	tags := make([]string, 0, len(meta.Tags))
	for _, t := range meta.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	sort.Strings(tags)
	meta.Tags = tags
	return &meta, nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncateContent(content string) string {
	// Rough estimate: 1 token ≈ 4 characters
	maxChars := g.maxTokens * 4

	if len(content) <= maxChars {
		return content
	}

	if g.logger != nil {
		g.logger.Warn("Truncating post content",
			"from_chars", len(content), "to_chars", maxChars, "est_tokens", g.maxTokens)
	}

	return content[:maxChars]
}
