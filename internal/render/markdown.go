package render

import (
	"bytes"
	"regexp"
	"strings"

	highlighting "github.com/yuin/goldmark-highlighting/v2"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"dashfolio/internal/domain/content"
)

type MarkdownRenderer struct {
	md goldmark.Markdown
}

// NewMarkdownRenderer 构造 goldmark 管线：GFM（表格/删除线/任务列表）、
// 代码高亮、原样透传内嵌 HTML（内容是作者可控的，不是用户输入）。
func NewMarkdownRenderer(codeStyle string) *MarkdownRenderer {
	if codeStyle == "" {
		codeStyle = "github"
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Linkify,
			extension.Strikethrough,
			extension.Table,
			extension.TaskList,
			highlighting.NewHighlighting(
				highlighting.WithStyle(codeStyle),
			),
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	return &MarkdownRenderer{md: md}
}

type MarkdownResult struct {
	HTML []byte
	Toc  []content.TocItem
}

// Render converts a markdown body to HTML. Heading ids are assigned at
// parse time by headingIDs, so the rendered anchors and the returned TOC
// read the same attribute instead of being matched up by position.
func (r *MarkdownRenderer) Render(src []byte) (MarkdownResult, error) {
	var buf bytes.Buffer

	ctx := parser.NewContext(parser.WithIDs(&headingIDs{}))
	reader := text.NewReader(src)
	doc := r.md.Parser().Parse(reader, parser.WithContext(ctx))

	var toc []content.TocItem
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		// 一级标题视为文章标题，不进目录
		if h.Level < 2 {
			return ast.WalkSkipChildren, nil
		}
		var idStr string
		if id, ok := h.AttributeString("id"); ok {
			switch v := id.(type) {
			case string:
				idStr = v
			case []byte:
				idStr = string(v)
			}
		}
		toc = append(toc, content.TocItem{
			ID:    idStr,
			Text:  plainText(h, src),
			Level: h.Level,
		})
		return ast.WalkSkipChildren, nil
	})

	if err := r.md.Renderer().Render(&buf, src, doc); err != nil {
		return MarkdownResult{}, err
	}
	return MarkdownResult{
		HTML: buf.Bytes(),
		Toc:  toc,
	}, nil
}

// plainText 取节点子树里所有文本段拼接，忽略行内格式。
func plainText(n ast.Node, src []byte) string {
	var b bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// ASCII word 字符加上平假名、片假名、CJK 统一表意文字保留，其余折叠成 -
var headingIDStrip = regexp.MustCompile(`[^\w\x{3040}-\x{309f}\x{30a0}-\x{30ff}\x{4e00}-\x{9fff}]+`)

// HeadingID derives the anchor id for a heading text. Duplicate heading
// texts yield duplicate ids; such anchors resolve to the first occurrence.
func HeadingID(text string) string {
	s := strings.ToLower(text)
	s = headingIDStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}

// headingIDs plugs HeadingID into goldmark's auto-heading-id hook.
// No dedup: identical heading texts get identical ids.
type headingIDs struct{}

func (g *headingIDs) Generate(value []byte, kind ast.NodeKind) []byte {
	id := HeadingID(string(value))
	if id == "" {
		return []byte("heading")
	}
	return []byte(id)
}

func (g *headingIDs) Put(value []byte) {}
