package markdown

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Default chunk bounds, in bytes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk represents a section of a post with header context.
type Chunk struct {
	Index      int    // Position in document (0, 1, 2...)
	HeaderPath string // Hierarchy: "# Doc Title > ## Section Name"
	Start      int    // Byte offset of RawContent in the source
	End        int    // Byte offset just past RawContent
	Content    string // Chunk content WITH header path prepended
	RawContent string // source[Start:End]
}

// Chunker splits posts at H1 and H2 boundaries, then splits sections longer
// than the chunk size into overlapping windows cut at whitespace.
type Chunker struct {
	parser  goldmark.Markdown
	size    int
	overlap int
}

// NewChunker creates a chunker. Non-positive size uses DefaultChunkSize; an
// overlap outside [0, size) uses DefaultChunkOverlap or size/5.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/5)
	}
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{parser: md, size: size, overlap: overlap}
}

type section struct {
	headerPath string
	start, end int
}

// ChunkDocument splits source into chunks. Text without headers is split
// by size only. Empty or whitespace-only source yields no chunks.
func (c *Chunker) ChunkDocument(source []byte) ([]Chunk, error) {
	sections, err := c.sections(source)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, sec := range sections {
		for _, span := range c.split(source, sec.start, sec.end) {
			raw := string(source[span[0]:span[1]])
			content := raw
			if sec.headerPath != "" {
				content = fmt.Sprintf("%s\n\n%s", sec.headerPath, raw)
			}
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				HeaderPath: sec.headerPath,
				Start:      span[0],
				End:        span[1],
				Content:    content,
				RawContent: raw,
			})
		}
	}
	return chunks, nil
}

// sections cuts source at every H1 and H2 heading. Text before the first
// heading is its own section without a header path.
func (c *Chunker) sections(source []byte) ([]section, error) {
	doc := c.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),   // Include H1
		toc.MaxDepth(2),   // Split at H1 and H2 only
		toc.Compact(true), // Remove empty items
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	type heading struct {
		path  string
		start int
	}
	var headings []heading
	var walk func(items toc.Items, ancestors []string)
	walk = func(items toc.Items, ancestors []string) {
		for _, item := range items {
			path := append(append([]string(nil), ancestors...), string(item.Title))
			if node := findHeaderByID(doc, string(item.ID)); node != nil && node.Lines().Len() > 0 {
				headings = append(headings, heading{
					path:  formatHeaderPath(path),
					start: lineStart(source, node.Lines().At(0).Start),
				})
			}
			walk(item.Items, path)
		}
	}
	walk(tree.Items, nil)

	var sections []section
	prev := section{start: 0}
	for _, h := range headings {
		if h.start < prev.start {
			continue
		}
		prev.end = h.start
		sections = append(sections, prev)
		prev = section{headerPath: h.path, start: h.start}
	}
	prev.end = len(source)
	sections = append(sections, prev)
	return sections, nil
}

// split returns the [start, end) spans covering source[start:end], each at
// most c.size bytes, consecutive spans overlapping by about c.overlap bytes.
// Spans are trimmed of surrounding whitespace; empty spans are dropped.
func (c *Chunker) split(source []byte, start, end int) [][2]int {
	start, end = trim(source, start, end)
	var spans [][2]int
	for start < end {
		stop := end
		if end-start > c.size {
			stop = cutPoint(source, start, start+c.size)
		}
		s, e := trim(source, start, stop)
		if s < e {
			spans = append(spans, [2]int{s, e})
		}
		if stop >= end {
			break
		}
		next := alignForward(source, max(stop-c.overlap, start+1), stop)
		if next <= start {
			next = stop
		}
		start = next
	}
	return spans
}

// cutPoint returns where to end a window [lo, hi): the last whitespace in
// its second half, else hi moved back to a rune boundary.
func cutPoint(source []byte, lo, hi int) int {
	for i := hi; i > lo+(hi-lo)/2; i-- {
		if isSpace(source[i]) {
			return i
		}
	}
	for hi > lo && !utf8.RuneStart(source[hi]) {
		hi--
	}
	return hi
}

// alignForward moves pos to the start of the next word, at most to limit.
func alignForward(source []byte, pos, limit int) int {
	for pos < limit && !isSpace(source[pos-1]) {
		pos++
	}
	for pos < limit && isSpace(source[pos]) {
		pos++
	}
	for pos < limit && !utf8.RuneStart(source[pos]) {
		pos++
	}
	return pos
}

func trim(source []byte, start, end int) (int, int) {
	for start < end && isSpace(source[start]) {
		start++
	}
	for end > start && isSpace(source[end-1]) {
		end--
	}
	return start, end
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// lineStart returns the offset of the line containing pos.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	if len(path) == 0 {
		return ""
	}

	var parts []string
	for i, segment := range path {
		// Add appropriate number of # based on depth
		prefix := strings.Repeat("#", i+1)
		parts = append(parts, fmt.Sprintf("%s %s", prefix, segment))
	}

	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			headingID, ok := heading.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}
