package structure

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
)

// stackEntry 构建过程中打开的章节
type stackEntry struct {
	level  int
	nodeID string
}

// Builder 章节结构构建器
// 对页面流做单次前向扫描，用层级栈维护当前打开的章节链；
// 栈在页面之间保持，因此内容块跨页归属同样成立
type Builder struct {
	regID      string
	titleLimit int
	structure  *models.DocumentStructure
	stack      []stackEntry
	seq        int
	logger     *logrus.Logger
}

// NewBuilder 创建章节结构构建器
// titleLimit为标题与行内正文的切分阈值（按rune计）
func NewBuilder(regID string, titleLimit int, log *logrus.Logger) *Builder {
	if log == nil {
		log = logrus.New()
	}
	if titleLimit <= 0 {
		titleLimit = 50
	}
	return &Builder{
		regID:      regID,
		titleLimit: titleLimit,
		structure:  models.NewDocumentStructure(regID),
		logger:     log,
	}
}

// ProcessPage 处理一个页面
// 识别出的标题会在原地标注chapter_node_id和heading_level；
// 标题携带行内正文时会在其后插入一个section_content块
func (b *Builder) ProcessPage(page *models.PageDocument) {
	// 解析器未提供章节路径时，用当前栈补全
	if len(page.ChapterPath) == 0 && len(b.stack) > 0 {
		page.ChapterPath = b.currentPath()
	}

	blocks := make([]models.ContentBlock, 0, len(page.ContentBlocks))
	for _, block := range page.ContentBlocks {
		if block.BlockType == models.BlockTypeHeading || block.BlockType == models.BlockTypeText {
			if parsed, ok := ParseHeading(block.Content, b.titleLimit); ok {
				node := b.openNode(parsed, page.PageNum)
				block.BlockType = models.BlockTypeHeading
				block.HeadingLevel = node.Level
				block.ChapterNodeID = node.NodeID
				blocks = append(blocks, block)

				// 标题后的行内正文独立成块，归属新节点而不是并入标题
				if parsed.DirectContent != "" {
					content := models.ContentBlock{
						BlockID:       block.BlockID + "-content",
						BlockType:     models.BlockTypeSectionContent,
						Content:       parsed.DirectContent,
						OrderInPage:   block.OrderInPage,
						ChapterNodeID: node.NodeID,
					}
					node.ContentBlockIDs = append(node.ContentBlockIDs, content.BlockID)
					blocks = append(blocks, content)
				}
				continue
			}
		}

		// 非标题块归属最近打开的章节
		if top := b.currentNode(); top != nil {
			block.ChapterNodeID = top.NodeID
			top.ContentBlockIDs = append(top.ContentBlockIDs, block.BlockID)
		}
		blocks = append(blocks, block)
	}
	page.ContentBlocks = blocks
}

// Finalize 结束构建并返回章节结构
func (b *Builder) Finalize() *models.DocumentStructure {
	return b.structure
}

// openNode 创建新章节节点并维护层级栈
// 插入前弹出所有层级大于等于新节点的栈项，栈顶即为父节点
func (b *Builder) openNode(parsed *ParsedHeading, pageNum int) *models.ChapterNode {
	b.seq++
	node := &models.ChapterNode{
		NodeID:        fmt.Sprintf("%s-node-%04d", b.regID, b.seq),
		SectionNumber: parsed.SectionNumber,
		Title:         parsed.Title,
		Level:         parsed.Level,
		PageNum:       pageNum,
	}

	for len(b.stack) > 0 && b.stack[len(b.stack)-1].level >= parsed.Level {
		b.stack = b.stack[:len(b.stack)-1]
	}

	if len(b.stack) > 0 {
		parentID := b.stack[len(b.stack)-1].nodeID
		node.ParentID = parentID
		if parent, ok := b.structure.AllNodes[parentID]; ok {
			parent.ChildrenIDs = append(parent.ChildrenIDs, node.NodeID)
		}
	} else {
		b.structure.RootNodeIDs = append(b.structure.RootNodeIDs, node.NodeID)
	}

	b.structure.AllNodes[node.NodeID] = node
	b.stack = append(b.stack, stackEntry{level: parsed.Level, nodeID: node.NodeID})

	b.logger.WithFields(logrus.Fields{
		"reg_id":  b.regID,
		"node_id": node.NodeID,
		"section": node.SectionNumber,
		"level":   node.Level,
		"page":    pageNum,
	}).Debug("Opened chapter node")

	return node
}

// currentNode 返回最近打开的章节节点
func (b *Builder) currentNode() *models.ChapterNode {
	if len(b.stack) == 0 {
		return nil
	}
	node, ok := b.structure.AllNodes[b.stack[len(b.stack)-1].nodeID]
	if !ok {
		return nil
	}
	return node
}

// currentPath 返回当前栈对应的章节标题路径
func (b *Builder) currentPath() []string {
	titles := make([]string, 0, len(b.stack))
	for _, entry := range b.stack {
		if node, ok := b.structure.AllNodes[entry.nodeID]; ok {
			titles = append(titles, node.Title)
		}
	}
	return titles
}

// BuildFromPages 对整段页面流构建章节结构的便捷入口
func BuildFromPages(regID string, pages []*models.PageDocument, titleLimit int, log *logrus.Logger) *models.DocumentStructure {
	builder := NewBuilder(regID, titleLimit, log)
	for _, page := range pages {
		builder.ProcessPage(page)
	}
	return builder.Finalize()
}
