package reference

import (
	"strings"
	"unicode/utf8"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// DefaultPreviewLength 引用解析结果预览的默认长度（rune）
const DefaultPreviewLength = 120

// PlainPreview 将Markdown内容转为纯文本预览
// 剥离标记语法，压缩空白，超长截断
func PlainPreview(markdown string, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLength
	}

	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(markdown))

	var b strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if leaf := node.AsLeaf(); leaf != nil && len(leaf.Literal) > 0 {
			b.Write(leaf.Literal)
			b.WriteByte(' ')
		}
		return ast.GoToNext
	})

	text := strings.Join(strings.Fields(b.String()), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
