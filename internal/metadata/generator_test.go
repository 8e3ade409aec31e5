package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// TestParseResponse verifies JSON parsing of valid response.
func TestParseResponse(t *testing.T) {
	jsonResponse := `{"summary": " Test summary ", "tags": ["GPU", "triton", " gpu ", ""]}`

	metadata, err := parseResponse(jsonResponse)
	if err != nil {
		t.Fatalf("Failed to parse valid JSON response: %v", err)
	}

	// Verify summary
	if metadata.Summary != "Test summary" {
		t.Errorf("Expected summary 'Test summary', got '%s'", metadata.Summary)
	}

	// Verify tags are lower-cased, deduplicated and sorted
	if len(metadata.Tags) != 2 {
		t.Fatalf("Expected 2 tags, got %d: %v", len(metadata.Tags), metadata.Tags)
	}
	if metadata.Tags[0] != "gpu" {
		t.Errorf("Expected first tag 'gpu', got '%s'", metadata.Tags[0])
	}
	if metadata.Tags[1] != "triton" {
		t.Errorf("Expected second tag 'triton', got '%s'", metadata.Tags[1])
	}
}

// TestParseResponse_Invalid verifies malformed output is an error.
func TestParseResponse_Invalid(t *testing.T) {
	if _, err := parseResponse("not json"); err == nil {
		t.Error("Expected error for malformed response")
	}
}

func TestTruncateContent(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		content   string
		wantLen   int
	}{
		{"long post, default limit", DefaultMaxTokens, strings.Repeat("Kepler reads RAPL counters. ", 4000), DefaultMaxTokens * 4},
		{"short post untouched", DefaultMaxTokens, strings.Repeat("Short. ", 140), 140 * len("Short. ")},
		{"custom limit", 1000, strings.Repeat("Triton. ", 1000), 4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Generator{maxTokens: tt.maxTokens}
			got := g.truncateContent(tt.content)
			if len(got) != tt.wantLen {
				t.Errorf("Expected length %d, got %d", tt.wantLen, len(got))
			}
			if !strings.HasPrefix(tt.content, got) {
				t.Error("Truncated content should be a prefix of the post")
			}
		})
	}
}

func TestNewGenerator_MaxTokens(t *testing.T) {
	if g := NewGenerator(nil); g.maxTokens != DefaultMaxTokens {
		t.Errorf("Expected default %d, got %d", DefaultMaxTokens, g.maxTokens)
	}
	if g := NewGenerator(nil, 500); g.maxTokens != 500 {
		t.Errorf("Expected 500, got %d", g.maxTokens)
	}
}

// TestGenerateMetadata runs a request against a fake chat completions API.
func TestGenerateMetadata(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && len(body.Messages) > 0 {
			prompt = body.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant",
				"content": "{\"summary\": \"Kepler measures pod energy.\", \"tags\": [\"Kepler\", \"sustainability\"]}"}}]
		}`))
	}))
	defer srv.Close()

	client := openai.NewClient(option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"), option.WithMaxRetries(0))
	g := NewGenerator(&client)

	meta, err := g.GenerateMetadata(context.Background(), "Sustainability at the Edge with Kepler", "Kepler exports energy metrics.")
	if err != nil {
		t.Fatalf("GenerateMetadata failed: %v", err)
	}
	if meta.Summary != "Kepler measures pod energy." {
		t.Errorf("Unexpected summary %q", meta.Summary)
	}
	if strings.Join(meta.Tags, ",") != "kepler,sustainability" {
		t.Errorf("Unexpected tags %v", meta.Tags)
	}
	if !strings.Contains(prompt, "Title: Sustainability at the Edge with Kepler") {
		t.Errorf("Prompt does not carry the title: %q", prompt)
	}
}
