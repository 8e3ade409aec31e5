// Package mcp exposes the assistant over the Model Context Protocol and a
// small HTTP API.
package mcp

import (
	"github.com/bull/ask-et/internal/answer"
	"github.com/bull/ask-et/internal/assistant"
)

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	// Query is the free-text question.
	Query string `json:"query" jsonschema:"the question about Emerging Technologies blog posts, authors or projects"`
}

// AskOutput contains the structured answer and its markdown rendering.
type AskOutput struct {
	Answer   *answer.Answer `json:"answer"`
	Markdown string         `json:"markdown"`
}

// ListDocumentsInput defines the filters of the list_documents tool.
type ListDocumentsInput struct {
	// Author keeps posts whose author contains this text (case-insensitive).
	Author string `json:"author,omitempty" jsonschema:"only posts whose author contains this text"`
	// Tag keeps posts carrying this tag or category (case-insensitive).
	Tag string `json:"tag,omitempty" jsonschema:"only posts with this tag or category"`
	// Limit is the maximum number of posts to return.
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of posts to return (default 50)"`
}

// DocumentInfo is the metadata of one post.
type DocumentInfo struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Author   string   `json:"author,omitempty"`
	Date     string   `json:"date,omitempty"`
	URL      string   `json:"url,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ListDocumentsOutput contains the matching posts, newest first.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	// Count is the number of matches before Limit was applied.
	Count int `json:"count"`
}

// GetDocumentInput defines the input parameters for the get_document tool.
type GetDocumentInput struct {
	// ID is the post identifier returned by ask or list_documents.
	ID string `json:"id" jsonschema:"the post id returned by ask or list_documents"`
}

// GetDocumentOutput contains the retrieved post.
type GetDocumentOutput struct {
	Document *DocumentInfo `json:"document,omitempty"`
	Summary  string        `json:"summary,omitempty"`
	// Content is the full text with a source header prepended.
	Content string `json:"content,omitempty"`
	// Found indicates whether the post exists.
	Found bool `json:"found"`
}

// StatusInput defines the input parameters for the index_status tool.
// This tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the snapshot being served.
type StatusOutput struct {
	Report     *assistant.Report `json:"report"`
	Consistent bool              `json:"consistent"`
	// Warning is set when chunks reference posts missing from the metadata.
	Warning string `json:"warning,omitempty"`
}
