package reference

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/pagestore"
)

// cjkNumerals 中文数字到数值的映射
var cjkNumerals = map[rune]int{
	'零': 0, '〇': 0,
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

// NormalizeAnnotationID 将注释标识规范化为统一形式
// "注1"、"注①"、"注一"都映射为"注1"；字母选项统一大写（"方案a"→"方案A"）；
// 纯函数且幂等，重复调用结果不变
func NormalizeAnnotationID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		// 带圈数字 ①-⑳
		if ch >= '①' && ch <= '⑳' {
			b.WriteString(strconv.Itoa(int(ch-'①') + 1))
			continue
		}
		// 带圈数字 ㉑-㉟
		if ch >= '㉑' && ch <= '㉟' {
			b.WriteString(strconv.Itoa(int(ch-'㉑') + 21))
			continue
		}

		// 中文数字序列整体转为阿拉伯数字
		if _, ok := cjkNumerals[ch]; ok || ch == '十' {
			j := i
			for j < len(runes) {
				if _, ok := cjkNumerals[runes[j]]; ok || runes[j] == '十' {
					j++
					continue
				}
				break
			}
			b.WriteString(strconv.Itoa(parseCJKNumeral(runes[i:j])))
			i = j - 1
			continue
		}

		// 全角数字转半角
		if ch >= '０' && ch <= '９' {
			b.WriteRune(ch - '０' + '0')
			continue
		}

		// 拉丁字母统一大写
		if ch >= 'a' && ch <= 'z' {
			b.WriteRune(ch - 'a' + 'A')
			continue
		}

		// 空白与常见变体标点剔除
		switch ch {
		case ' ', '\t', '　', '.', '．', '、', '：', ':':
			continue
		}

		b.WriteRune(ch)
	}
	return b.String()
}

// parseCJKNumeral 解析中文数字序列（支持"十"的位值，如"十二"=12、"二十一"=21）
func parseCJKNumeral(runes []rune) int {
	result := 0
	current := 0
	for _, ch := range runes {
		if ch == '十' {
			if current == 0 {
				current = 1
			}
			result += current * 10
			current = 0
			continue
		}
		if d, ok := cjkNumerals[ch]; ok {
			current = d
		}
	}
	return result + current
}

// AnnotationLookup 注释查找器
// 给定页码提示时先查该页，否则全集合扫描
type AnnotationLookup struct {
	store  pagestore.Store
	logger *logrus.Logger
}

// NewAnnotationLookup 创建注释查找器
func NewAnnotationLookup(store pagestore.Store, log *logrus.Logger) *AnnotationLookup {
	if log == nil {
		log = logrus.New()
	}
	return &AnnotationLookup{store: store, logger: log}
}

// Find 按注释标识查找
// pageHint>0时优先检查该页；全扫描无果时返回AnnotationNotFound
func (l *AnnotationLookup) Find(ctx context.Context, regID, rawID string, pageHint int) (*models.Annotation, error) {
	canonical := NormalizeAnnotationID(rawID)

	if pageHint > 0 {
		page, err := l.store.LoadPage(ctx, regID, pageHint)
		if err == nil {
			if ann := matchAnnotation(page, canonical); ann != nil {
				return ann, nil
			}
		} else if !models.IsCode(err, models.ErrCodePageNotFound) {
			return nil, err
		}
		// 提示页未命中，回落到全扫描
	}

	pageNums, err := l.store.ListPages(ctx, regID)
	if err != nil {
		return nil, err
	}

	for _, pageNum := range pageNums {
		page, err := l.store.LoadPage(ctx, regID, pageNum)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"reg_id":   regID,
				"page_num": pageNum,
			}).WithError(err).Warn("Failed to load page during annotation scan")
			continue
		}
		if ann := matchAnnotation(page, canonical); ann != nil {
			return ann, nil
		}
	}

	return nil, models.NewAnnotationNotFoundError(regID, rawID)
}

// matchAnnotation 在页面注释中按规范化标识匹配
func matchAnnotation(page *models.PageDocument, canonical string) *models.Annotation {
	for i := range page.Annotations {
		ann := &page.Annotations[i]
		normalized := ann.NormalizedID
		if normalized == "" {
			normalized = NormalizeAnnotationID(ann.AnnotationID)
		}
		if normalized == canonical {
			found := *ann
			if found.PageNum == 0 {
				found.PageNum = page.PageNum
			}
			if found.NormalizedID == "" {
				found.NormalizedID = normalized
			}
			return &found
		}
	}
	return nil
}
