package models

// BlockType 内容块类型
type BlockType string

const (
	// BlockTypeText 普通文本段落
	BlockTypeText BlockType = "text"
	// BlockTypeTable 表格块
	BlockTypeTable BlockType = "table"
	// BlockTypeHeading 章节标题块
	BlockTypeHeading BlockType = "heading"
	// BlockTypeList 列表块
	BlockTypeList BlockType = "list"
	// BlockTypeSectionContent 标题行内正文块（标题后直接跟随的正文）
	BlockTypeSectionContent BlockType = "section_content"
)

// TableMeta 表格元数据
// 记录表格在跨页注册表中的归属信息
type TableMeta struct {
	TableID       string     `json:"table_id"`                  // 表格唯一标识
	Caption       string     `json:"caption,omitempty"`         // 表格标题（如"表6-2"）
	IsTruncated   bool       `json:"is_truncated"`              // 是否在本页被截断
	Cells         [][]string `json:"cells,omitempty"`           // 单元格内容（按行）
	MasterTableID string     `json:"master_table_id,omitempty"` // 续表指向首段表格ID
	SegmentIndex  int        `json:"segment_index"`             // 逻辑表格中的分段序号
}

// ContentBlock 页面中最小可寻址的内容单元
type ContentBlock struct {
	BlockID       string     `json:"block_id"`                  // 集合内唯一标识
	BlockType     BlockType  `json:"block_type"`                // 块类型
	Content       string     `json:"content"`                   // 文本或Markdown内容
	OrderInPage   int        `json:"order_in_page"`             // 页内阅读顺序
	TableMeta     *TableMeta `json:"table_meta,omitempty"`      // 表格块元数据
	ChapterNodeID string     `json:"chapter_node_id,omitempty"` // 所属章节节点ID
	HeadingLevel  int        `json:"heading_level,omitempty"`   // 标题层级（仅标题块）
}

// Annotation 页面脚注/注释
type Annotation struct {
	AnnotationID string `json:"annotation_id"` // 原始标识（如"注1"、"方案A"）
	NormalizedID string `json:"normalized_id"` // 规范化标识
	Content      string `json:"content"`       // 注释内容
	PageNum      int    `json:"page_num"`      // 所在页码
}

// PageDocument 按物理页存储的文档单元
// 由上游解析器产出，入库后只读；content_blocks保持稳定的阅读顺序
type PageDocument struct {
	RegID             string         `json:"reg_id"`              // 所属法规集合ID
	PageNum           int            `json:"page_num"`            // 页码，从1开始连续
	ChapterPath       []string       `json:"chapter_path"`        // 本页生效的章节祖先标题
	ContentBlocks     []ContentBlock `json:"content_blocks"`      // 有序内容块
	ContinuesFromPrev bool           `json:"continues_from_prev"` // 页首表格承接上一页
	ContinuesToNext   bool           `json:"continues_to_next"`   // 页尾表格延续到下一页
	Annotations       []Annotation   `json:"annotations,omitempty"`
}

// TableBlocks 返回本页所有表格块（保持页内顺序）
func (p *PageDocument) TableBlocks() []ContentBlock {
	var tables []ContentBlock
	for _, b := range p.ContentBlocks {
		if b.BlockType == BlockTypeTable {
			tables = append(tables, b)
		}
	}
	return tables
}

// FindBlock 按块ID查找本页内容块
func (p *PageDocument) FindBlock(blockID string) (ContentBlock, bool) {
	for _, b := range p.ContentBlocks {
		if b.BlockID == blockID {
			return b, true
		}
	}
	return ContentBlock{}, false
}
