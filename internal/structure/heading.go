package structure

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// HeadingStyle 标题编号风格
type HeadingStyle string

const (
	// StyleChapter 章标记（"第六章"）
	StyleChapter HeadingStyle = "chapter"
	// StyleSection 节标记（"第二节"）
	StyleSection HeadingStyle = "section"
	// StyleDotted 点分数字编号（"2.1.4"）
	StyleDotted HeadingStyle = "dotted"
	// StyleOrdinal 顿号序数（"三、"）
	StyleOrdinal HeadingStyle = "ordinal"
	// StyleAppendix 附录标记（"附录A"）
	StyleAppendix HeadingStyle = "appendix"
)

// ParsedHeading 标题解析结果
type ParsedHeading struct {
	Style         HeadingStyle
	SectionNumber string // 规范化编号（"6"、"2.1.4"、"附录A"）
	Title         string // 短标题
	DirectContent string // 超出阈值后切分出的行内正文
	Level         int    // 层级，1为最高
}

// 标题识别模式，按优先级排列
var (
	chapterPattern  = regexp.MustCompile(`^第([一二三四五六七八九十百零〇0-9]+)章[\s、．.：:]*(.*)$`)
	sectionPattern  = regexp.MustCompile(`^第([一二三四五六七八九十百零〇0-9]+)节[\s、．.：:]*(.*)$`)
	appendixPattern = regexp.MustCompile(`^附\s*录\s*([A-Za-z0-9一二三四五六七八九十]+)[\s、．.：:]*(.*)$`)
	dottedPattern   = regexp.MustCompile(`^(\d+(?:\.\d+)+|\d+)[\s、．]+(.+)$`)
	ordinalPattern  = regexp.MustCompile(`^([一二三四五六七八九十]+)、\s*(.*)$`)
)

// ParseHeading 尝试将一段文本解析为章节标题
// titleLimit是标题与行内正文的切分阈值（按rune计）；
// 识别失败返回nil, false
func ParseHeading(text string, titleLimit int) (*ParsedHeading, bool) {
	line := strings.TrimSpace(text)
	if line == "" || strings.ContainsRune(line, '\n') {
		return nil, false
	}

	if m := chapterPattern.FindStringSubmatch(line); m != nil {
		title, direct := splitTitleContent(m[2], titleLimit)
		return &ParsedHeading{
			Style:         StyleChapter,
			SectionNumber: strconv.Itoa(parseCJKNumber(m[1])),
			Title:         title,
			DirectContent: direct,
			Level:         1,
		}, true
	}

	if m := sectionPattern.FindStringSubmatch(line); m != nil {
		title, direct := splitTitleContent(m[2], titleLimit)
		return &ParsedHeading{
			Style:         StyleSection,
			SectionNumber: strconv.Itoa(parseCJKNumber(m[1])),
			Title:         title,
			DirectContent: direct,
			Level:         2,
		}, true
	}

	if m := appendixPattern.FindStringSubmatch(line); m != nil {
		title, direct := splitTitleContent(m[2], titleLimit)
		return &ParsedHeading{
			Style:         StyleAppendix,
			SectionNumber: "附录" + m[1],
			Title:         title,
			DirectContent: direct,
			Level:         1,
		}, true
	}

	if m := dottedPattern.FindStringSubmatch(line); m != nil {
		number := m[1]
		title, direct := splitTitleContent(m[2], titleLimit)
		// 层级 = 点号数 + 1
		return &ParsedHeading{
			Style:         StyleDotted,
			SectionNumber: number,
			Title:         title,
			DirectContent: direct,
			Level:         strings.Count(number, ".") + 1,
		}, true
	}

	if m := ordinalPattern.FindStringSubmatch(line); m != nil {
		title, direct := splitTitleContent(m[2], titleLimit)
		return &ParsedHeading{
			Style:         StyleOrdinal,
			SectionNumber: strconv.Itoa(parseCJKNumber(m[1])),
			Title:         title,
			DirectContent: direct,
			Level:         3,
		}, true
	}

	return nil, false
}

// splitTitleContent 将编号后的剩余文本切分为短标题和行内正文
// 文本不超过阈值时整体作为标题；超过时优先在句读处切分
func splitTitleContent(rest string, titleLimit int) (title, direct string) {
	rest = strings.TrimSpace(rest)
	if titleLimit <= 0 {
		titleLimit = 50
	}
	if utf8.RuneCountInString(rest) <= titleLimit {
		return rest, ""
	}

	// 阈值内存在句读时按第一个句读切分
	if idx := strings.IndexAny(rest, "。；！？"); idx >= 0 {
		if utf8.RuneCountInString(rest[:idx]) <= titleLimit {
			_, size := utf8.DecodeRuneInString(rest[idx:])
			return strings.TrimSpace(rest[:idx]), strings.TrimSpace(rest[idx+size:])
		}
	}

	runes := []rune(rest)
	return strings.TrimSpace(string(runes[:titleLimit])), strings.TrimSpace(string(runes[titleLimit:]))
}

// cjkDigits 中文数字到数值的映射
var cjkDigits = map[rune]int{
	'零': 0, '〇': 0,
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// parseCJKNumber 解析中文或阿拉伯数字（支持到千位，如"一百二十三"）
func parseCJKNumber(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}

	result := 0
	current := 0
	for _, ch := range s {
		switch ch {
		case '十':
			if current == 0 {
				current = 1
			}
			result += current * 10
			current = 0
		case '百':
			if current == 0 {
				current = 1
			}
			result += current * 100
			current = 0
		case '千':
			if current == 0 {
				current = 1
			}
			result += current * 1000
			current = 0
		default:
			if d, ok := cjkDigits[ch]; ok {
				current = d
			}
		}
	}
	return result + current
}
