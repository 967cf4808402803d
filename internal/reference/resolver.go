package reference

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/pagestore"
)

// 引用识别模式，按优先级排列：章 → 表 → 点分编号 → 注释 → 附录
var (
	chapterRefPattern    = regexp.MustCompile(`第([一二三四五六七八九十百零〇0-9]+)章`)
	tableRefPattern      = regexp.MustCompile(`表\s*([0-9０-９]+(?:[-－—–][0-9０-９]+)*)`)
	sectionRefPattern    = regexp.MustCompile(`(\d+(?:\.\d+)+)`)
	annotationRefPattern = regexp.MustCompile(`注\s*([0-9０-９①-⑳一二三四五六七八九十]+)`)
	appendixRefPattern   = regexp.MustCompile(`附\s*录\s*([A-Za-z0-9一二三四五六七八九十]+)`)
)

// Resolver 交叉引用解析器
// 将自由文本引用（"见第六章"、"参见表6-2"等）解析为具体位置
type Resolver struct {
	store       pagestore.Store
	annotations *AnnotationLookup
	logger      *logrus.Logger
}

// NewResolver 创建引用解析器
func NewResolver(store pagestore.Store, annotations *AnnotationLookup, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.New()
	}
	return &Resolver{
		store:       store,
		annotations: annotations,
		logger:      log,
	}
}

// Resolve 解析一条自由文本引用
// 按优先级逐个模式尝试，首个命中的模式决定解析策略；
// 无模式命中或目标不存在时返回ReferenceResolutionError
func (r *Resolver) Resolve(ctx context.Context, regID, refText string) (*models.ResolvedReference, error) {
	if m := chapterRefPattern.FindStringSubmatch(refText); m != nil {
		return r.resolveChapter(ctx, regID, refText, m[1])
	}
	if m := tableRefPattern.FindStringSubmatch(refText); m != nil {
		return r.resolveTable(ctx, regID, refText, m[1])
	}
	if m := sectionRefPattern.FindStringSubmatch(refText); m != nil {
		return r.resolveSection(ctx, regID, refText, m[1])
	}
	if m := annotationRefPattern.FindStringSubmatch(refText); m != nil {
		return r.resolveAnnotation(ctx, regID, refText, m[1])
	}
	if m := appendixRefPattern.FindStringSubmatch(refText); m != nil {
		return r.resolveAppendix(ctx, regID, refText, m[1])
	}

	return nil, models.NewReferenceResolutionError(regID, refText, "no reference pattern matched", nil)
}

// resolveChapter 解析章引用（"见第六章"）
func (r *Resolver) resolveChapter(ctx context.Context, regID, refText, number string) (*models.ResolvedReference, error) {
	structure, err := r.store.LoadStructure(ctx, regID)
	if err != nil {
		return nil, models.NewReferenceResolutionError(regID, refText, "failed to load document structure", err)
	}

	section := strconv.Itoa(parseCJKNumeral([]rune(number)))
	if n, parseErr := strconv.Atoi(number); parseErr == nil {
		section = strconv.Itoa(n)
	}

	node, ok := structure.FindBySectionNumber(section)
	if !ok {
		return nil, models.NewReferenceResolutionError(regID, refText, "chapter not found",
			models.NewChapterNotFoundError(regID, section))
	}

	return &models.ResolvedReference{
		RefType:     models.RefTypeChapter,
		RegID:       regID,
		PageNum:     node.PageNum,
		ChapterPath: structure.PathOf(node.NodeID),
		TargetID:    node.NodeID,
		Preview:     r.chapterPreview(ctx, regID, node),
	}, nil
}

// resolveTable 解析表格引用（"参见表6-2"）
func (r *Resolver) resolveTable(ctx context.Context, regID, refText, number string) (*models.ResolvedReference, error) {
	registry, err := r.store.LoadTableRegistry(ctx, regID)
	if err != nil {
		return nil, models.NewReferenceResolutionError(regID, refText, "failed to load table registry", err)
	}

	caption := "表" + normalizeTableNumber(number)
	table, ok := registry.FindByCaption(caption)
	if !ok {
		return nil, models.NewReferenceResolutionError(regID, refText, "table not found",
			models.NewTableNotFoundError(regID, caption))
	}

	return &models.ResolvedReference{
		RefType:  models.RefTypeTable,
		RegID:    regID,
		PageNum:  table.Segments[0].PageNum,
		TargetID: table.TableID,
		Preview:  PlainPreview(table.FullMarkdown(), DefaultPreviewLength),
	}, nil
}

// resolveSection 解析点分编号引用（"见2.1.4"）
func (r *Resolver) resolveSection(ctx context.Context, regID, refText, section string) (*models.ResolvedReference, error) {
	structure, err := r.store.LoadStructure(ctx, regID)
	if err != nil {
		return nil, models.NewReferenceResolutionError(regID, refText, "failed to load document structure", err)
	}

	node, ok := structure.FindBySectionNumber(section)
	if !ok {
		return nil, models.NewReferenceResolutionError(regID, refText, "section not found",
			models.NewChapterNotFoundError(regID, section))
	}

	return &models.ResolvedReference{
		RefType:     models.RefTypeSection,
		RegID:       regID,
		PageNum:     node.PageNum,
		ChapterPath: structure.PathOf(node.NodeID),
		TargetID:    node.NodeID,
		Preview:     r.chapterPreview(ctx, regID, node),
	}, nil
}

// resolveAnnotation 解析注释引用（"见注1"）
func (r *Resolver) resolveAnnotation(ctx context.Context, regID, refText, number string) (*models.ResolvedReference, error) {
	ann, err := r.annotations.Find(ctx, regID, "注"+number, 0)
	if err != nil {
		return nil, models.NewReferenceResolutionError(regID, refText, "annotation not found", err)
	}

	return &models.ResolvedReference{
		RefType:  models.RefTypeAnnotation,
		RegID:    regID,
		PageNum:  ann.PageNum,
		TargetID: ann.NormalizedID,
		Preview:  PlainPreview(ann.Content, DefaultPreviewLength),
	}, nil
}

// resolveAppendix 解析附录引用（"见附录A"）
func (r *Resolver) resolveAppendix(ctx context.Context, regID, refText, marker string) (*models.ResolvedReference, error) {
	structure, err := r.store.LoadStructure(ctx, regID)
	if err != nil {
		return nil, models.NewReferenceResolutionError(regID, refText, "failed to load document structure", err)
	}

	section := "附录" + strings.ToUpper(marker)
	node, ok := structure.FindBySectionNumber(section)
	if !ok {
		return nil, models.NewReferenceResolutionError(regID, refText, "appendix not found",
			models.NewChapterNotFoundError(regID, section))
	}

	return &models.ResolvedReference{
		RefType:     models.RefTypeAppendix,
		RegID:       regID,
		PageNum:     node.PageNum,
		ChapterPath: structure.PathOf(node.NodeID),
		TargetID:    node.NodeID,
		Preview:     r.chapterPreview(ctx, regID, node),
	}, nil
}

// chapterPreview 生成章节的内容预览
// 取章节首页中归属该节点的第一个非标题块；取不到时退回标题
func (r *Resolver) chapterPreview(ctx context.Context, regID string, node *models.ChapterNode) string {
	page, err := r.store.LoadPage(ctx, regID, node.PageNum)
	if err != nil {
		return node.Title
	}
	for _, block := range page.ContentBlocks {
		if block.ChapterNodeID == node.NodeID && block.BlockType != models.BlockTypeHeading {
			return PlainPreview(block.Content, DefaultPreviewLength)
		}
	}
	return node.Title
}

// normalizeTableNumber 规范化表格编号（全角转半角，破折号统一为"-"）
func normalizeTableNumber(number string) string {
	var b strings.Builder
	for _, ch := range number {
		switch {
		case ch >= '０' && ch <= '９':
			b.WriteRune(ch - '０' + '0')
		case ch == '－' || ch == '—' || ch == '–':
			b.WriteRune('-')
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
