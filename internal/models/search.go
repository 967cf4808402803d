package models

// SearchResult 检索结果
// 每条结果都必须携带精确的(reg_id, page_num)来源，供调用方引用出处
type SearchResult struct {
	RegID       string   `json:"reg_id"`
	PageNum     int      `json:"page_num"`
	ChapterPath []string `json:"chapter_path,omitempty"`
	BlockID     string   `json:"block_id"`
	Snippet     string   `json:"snippet"`
	Score       float64  `json:"score"` // 融合前为后端内部得分，融合后为RRF得分
}

// ResultKey 结果的去重键，用于跨后端融合
type ResultKey struct {
	RegID   string
	PageNum int
	BlockID string
}

// Key 返回结果的融合键
func (r *SearchResult) Key() ResultKey {
	return ResultKey{RegID: r.RegID, PageNum: r.PageNum, BlockID: r.BlockID}
}

// ReferenceType 交叉引用类型
type ReferenceType string

const (
	// RefTypeChapter 章节引用（"见第六章"）
	RefTypeChapter ReferenceType = "chapter"
	// RefTypeTable 表格引用（"参见表6-2"）
	RefTypeTable ReferenceType = "table"
	// RefTypeSection 点分编号引用（"见2.1.4"）
	RefTypeSection ReferenceType = "section"
	// RefTypeAnnotation 注释引用（"见注1"）
	RefTypeAnnotation ReferenceType = "annotation"
	// RefTypeAppendix 附录引用（"见附录A"）
	RefTypeAppendix ReferenceType = "appendix"
)

// ResolvedReference 引用解析结果
type ResolvedReference struct {
	RefType     ReferenceType `json:"ref_type"`
	RegID       string        `json:"reg_id"`
	PageNum     int           `json:"page_num,omitempty"`
	ChapterPath []string      `json:"chapter_path,omitempty"`
	TargetID    string        `json:"target_id,omitempty"` // 节点ID/表格ID/注释规范化ID
	Preview     string        `json:"preview,omitempty"`   // 目标内容的纯文本预览
}

// MergedContent 跨页合并加载的结果
type MergedContent struct {
	RegID           string `json:"reg_id"`
	StartPage       int    `json:"start_page"`
	EndPage         int    `json:"end_page"`
	Markdown        string `json:"markdown"`
	HasMergedTables bool   `json:"has_merged_tables"` // 是否发生过跨页表格拼接
	MissingPages    []int  `json:"missing_pages,omitempty"`
}
