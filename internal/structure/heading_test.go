package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseHeading 测试标题识别与编号规范化
func TestParseHeading(t *testing.T) {
	t.Run("chapter heading", func(t *testing.T) {
		parsed, ok := ParseHeading("第六章 建设用地", 50)
		require.True(t, ok, "章标记应该被识别为标题")

		assert.Equal(t, StyleChapter, parsed.Style)
		assert.Equal(t, "6", parsed.SectionNumber, "中文章号应该规范化为阿拉伯数字")
		assert.Equal(t, "建设用地", parsed.Title)
		assert.Equal(t, 1, parsed.Level)
		assert.Empty(t, parsed.DirectContent)
	})

	t.Run("chapter heading with arabic number", func(t *testing.T) {
		parsed, ok := ParseHeading("第12章 消防设施", 50)
		require.True(t, ok)
		assert.Equal(t, "12", parsed.SectionNumber)
	})

	t.Run("section heading", func(t *testing.T) {
		parsed, ok := ParseHeading("第二节 许可程序", 50)
		require.True(t, ok, "节标记应该被识别为标题")

		assert.Equal(t, StyleSection, parsed.Style)
		assert.Equal(t, "2", parsed.SectionNumber)
		assert.Equal(t, 2, parsed.Level)
	})

	t.Run("dotted heading", func(t *testing.T) {
		parsed, ok := ParseHeading("2.1.4 防火间距要求", 50)
		require.True(t, ok, "点分编号应该被识别为标题")

		assert.Equal(t, StyleDotted, parsed.Style)
		assert.Equal(t, "2.1.4", parsed.SectionNumber, "点分编号保持原样")
		assert.Equal(t, "防火间距要求", parsed.Title)
		assert.Equal(t, 3, parsed.Level, "层级等于点号数加1")
	})

	t.Run("ordinal heading", func(t *testing.T) {
		parsed, ok := ParseHeading("三、其他规定", 50)
		require.True(t, ok, "顿号序数应该被识别为标题")

		assert.Equal(t, StyleOrdinal, parsed.Style)
		assert.Equal(t, "3", parsed.SectionNumber)
		assert.Equal(t, "其他规定", parsed.Title)
	})

	t.Run("appendix heading", func(t *testing.T) {
		parsed, ok := ParseHeading("附录A 术语和定义", 50)
		require.True(t, ok, "附录标记应该被识别为标题")

		assert.Equal(t, StyleAppendix, parsed.Style)
		assert.Equal(t, "附录A", parsed.SectionNumber)
		assert.Equal(t, "术语和定义", parsed.Title)
		assert.Equal(t, 1, parsed.Level)
	})

	t.Run("heading with direct content", func(t *testing.T) {
		text := "第一章 总则。为了加强城乡规划管理，根据有关法律法规制定本条例"
		parsed, ok := ParseHeading(text, 10)
		require.True(t, ok)

		t.Logf("标题: %q, 行内正文: %q", parsed.Title, parsed.DirectContent)
		assert.Equal(t, "总则", parsed.Title, "应该在第一个句读处切分")
		assert.Contains(t, parsed.DirectContent, "城乡规划管理")
	})

	t.Run("plain text is not a heading", func(t *testing.T) {
		_, ok := ParseHeading("本条例自发布之日起施行。", 50)
		assert.False(t, ok, "普通正文不应该被识别为标题")
	})

	t.Run("multiline text is not a heading", func(t *testing.T) {
		_, ok := ParseHeading("第一章 总则\n第二章 规划", 50)
		assert.False(t, ok, "多行文本不应该被识别为标题")
	})
}

// TestParseCJKNumber 测试中文数字解析
func TestParseCJKNumber(t *testing.T) {
	cases := map[string]int{
		"一":    1,
		"六":    6,
		"十":    10,
		"十二":   12,
		"二十一":  21,
		"一百":   100,
		"一百二十三": 123,
		"15":   15,
	}
	for input, expected := range cases {
		assert.Equal(t, expected, parseCJKNumber(input), "输入: %s", input)
	}
}
