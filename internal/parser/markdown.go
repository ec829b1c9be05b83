package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// MarkdownParser parses plan documents written as Markdown with the plan
// definition in YAML front matter. The narrative body is informational;
// its first level-1 heading is used as the goal signature when the front
// matter omits one.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// NewMarkdownParser creates a Markdown plan parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

// Parse reads a Markdown plan document.
func (p *MarkdownParser) Parse(r io.Reader) (*models.Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	body, frontmatter := extractFrontmatter(content)
	if frontmatter == nil {
		return nil, &models.PlanParseError{Reason: "markdown plan has no YAML front matter"}
	}

	plan, err := buildPlan(frontmatter)
	if err != nil {
		return nil, err
	}

	if plan.GoalSignature == "" {
		plan.GoalSignature = p.extractTitle(body)
	}

	return plan, nil
}

// extractTitle returns the text of the first level-1 heading in the body.
func (p *MarkdownParser) extractTitle(body []byte) string {
	doc := p.markdown.Parser().Parse(text.NewReader(body))

	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok && heading.Level == 1 {
			var sb strings.Builder
			for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
				if textNode, ok := child.(*ast.Text); ok {
					sb.Write(textNode.Segment.Value(body))
				}
			}
			title = strings.TrimSpace(sb.String())
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	return title
}

// extractFrontmatter splits YAML front matter from markdown content.
// Returns the body without front matter and the front matter bytes, or
// nil when the document has none.
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))

	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}

	return content, nil
}
