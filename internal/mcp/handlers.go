package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/ask-et/internal/answer"
	"github.com/bull/ask-et/internal/assistant"
	"github.com/bull/ask-et/internal/query"
	"github.com/bull/ask-et/internal/storage"
)

const defaultListLimit = 50

// makeAskHandler creates the ask tool handler. The structured answer is the
// tool output; the markdown rendering is also sent as text content for
// clients that only show text.
func makeAskHandler(a *assistant.Assistant) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		ans := a.Ask(ctx, input.Query)
		md := answer.Render(ans)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: md}},
		}, AskOutput{Answer: ans, Markdown: md}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(a *assistant.Assistant) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		return nil, listDocuments(a.Corpus().Catalog, input), nil
	}
}

func listDocuments(catalog *storage.Catalog, input ListDocumentsInput) ListDocumentsOutput {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	author := query.Normalize(input.Author)
	tag := query.Normalize(input.Tag)

	out := ListDocumentsOutput{Documents: []DocumentInfo{}}
	for _, doc := range catalog.Documents() {
		if author != "" && !strings.Contains(query.Normalize(doc.Author), author) {
			continue
		}
		if tag != "" {
			if _, ok := doc.TagSet()[tag]; !ok {
				continue
			}
		}
		out.Count++
		if len(out.Documents) < limit {
			out.Documents = append(out.Documents, documentInfo(doc))
		}
	}
	return out
}

// makeGetHandler creates the get_document tool handler.
// Prepends source header: <!-- Source: url -->
func makeGetHandler(a *assistant.Assistant) func(
	context.Context, *mcp.CallToolRequest, GetDocumentInput,
) (*mcp.CallToolResult, GetDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentInput) (
		*mcp.CallToolResult, GetDocumentOutput, error,
	) {
		doc, ok := a.Corpus().Catalog.Document(strings.TrimSpace(input.ID))
		if !ok {
			// Return helpful response for not found
			return nil, GetDocumentOutput{Found: false}, nil
		}

		info := documentInfo(doc)
		content := doc.Content
		if content != "" {
			source := doc.URL
			if source == "" {
				source = doc.ID
			}
			content = fmt.Sprintf("<!-- Source: %s -->\n\n%s", source, content)
		}
		return nil, GetDocumentOutput{
			Document: &info,
			Summary:  doc.Summary,
			Content:  content,
			Found:    true,
		}, nil
	}
}

// makeStatusHandler creates the index_status tool handler.
func makeStatusHandler(a *assistant.Assistant) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		report, err := a.Corpus().Report(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("index_error: %w", err)
		}
		out := StatusOutput{Report: report, Consistent: report.Consistent()}
		if !out.Consistent {
			out.Warning = fmt.Sprintf("%d indexed posts are missing from the metadata store. Re-run ingestion.",
				len(report.OrphanParents))
		}
		return nil, out, nil
	}
}

func documentInfo(doc *storage.Document) DocumentInfo {
	return DocumentInfo{
		ID:       doc.ID,
		Title:    doc.Title,
		Author:   doc.Author,
		Date:     doc.Date,
		URL:      doc.URL,
		Category: doc.Category,
		Tags:     doc.Tags,
	}
}
