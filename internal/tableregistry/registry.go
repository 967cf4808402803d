package tableregistry

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
)

// TableSegment 逻辑表格的一个分页片段
type TableSegment struct {
	PageNum      int    `json:"page_num"`
	BlockID      string `json:"block_id"`
	SegmentIndex int    `json:"segment_index"`
	Markdown     string `json:"markdown"`
}

// LogicalTable 一张逻辑表格
// 跨页表格由多个片段组成，片段按segment_index递增、页码递增排列
type LogicalTable struct {
	TableID  string         `json:"table_id"` // 首段表格ID，即master_table_id
	Caption  string         `json:"caption,omitempty"`
	Segments []TableSegment `json:"segments"`
}

// IsCrossPage 是否为跨页表格
func (t *LogicalTable) IsCrossPage() bool {
	return len(t.Segments) > 1
}

// FullMarkdown 返回拼接后的完整表格
// 续段去掉表头行，整表只保留一份表头
func (t *LogicalTable) FullMarkdown() string {
	var rows []string
	for i, seg := range t.Segments {
		segRows := SplitTableRows(seg.Markdown)
		if i > 0 {
			segRows = DropHeaderRows(segRows)
		}
		rows = append(rows, segRows...)
	}
	return strings.Join(rows, "\n")
}

// Registry 表格注册表
// 入库时一次性构建所有查找映射，查询阶段不做线性扫描
type Registry struct {
	RegID        string                   `json:"reg_id"`
	Tables       map[string]*LogicalTable `json:"tables"`         // 主表ID -> 逻辑表格
	PageToTables map[int][]string         `json:"page_to_tables"` // 页码 -> 该页出现的主表ID
	BlockToTable map[string]string        `json:"block_to_table"` // 表格块ID -> 主表ID
}

// NewRegistry 创建空注册表
func NewRegistry(regID string) *Registry {
	return &Registry{
		RegID:        regID,
		Tables:       make(map[string]*LogicalTable),
		PageToTables: make(map[int][]string),
		BlockToTable: make(map[string]string),
	}
}

// Build 从有序页面流构建表格注册表
// 当表格块被标记截断且页面延续到下一页时开启逻辑表格；
// 后续标记承接上一页的页面中按位置匹配的表格块作为续段并入，表头行被去重
func Build(regID string, pages []*models.PageDocument, log *logrus.Logger) *Registry {
	r := NewRegistry(regID)
	var pending *LogicalTable

	for _, page := range pages {
		tables := page.TableBlocks()
		consumed := make(map[string]bool)

		// 承接上一页：首个表格块作为续段并入
		if page.ContinuesFromPrev && pending != nil && len(tables) > 0 {
			cont := tables[0]
			r.appendSegment(pending, page.PageNum, cont)
			consumed[cont.BlockID] = true
			// 续段本身不再延续时关闭逻辑表格；中间段可能未单独标记截断，
			// 只要本页仍延续且无其他待开表格就保持开启
			stillOpen := page.ContinuesToNext && (isTruncated(cont) || len(tables) == 1)
			if !stillOpen {
				pending = nil
			}
		} else if pending != nil {
			// 断链：上一页声明延续但本页没有承接，放弃等待
			if log != nil {
				log.WithFields(logrus.Fields{
					"reg_id":   regID,
					"table_id": pending.TableID,
					"page_num": page.PageNum,
				}).Warn("Truncated table has no continuation on the following page")
			}
			pending = nil
		}

		for _, tb := range tables {
			if consumed[tb.BlockID] {
				continue
			}
			lt := r.openTable(page.PageNum, tb)
			// 页尾截断的表格等待下一页续段
			if page.ContinuesToNext && isTruncated(tb) {
				pending = lt
			}
		}
	}

	return r
}

// openTable 以给定表格块为首段登记新的逻辑表格
func (r *Registry) openTable(pageNum int, block models.ContentBlock) *LogicalTable {
	tableID := block.BlockID
	caption := ""
	if block.TableMeta != nil {
		if block.TableMeta.TableID != "" {
			tableID = block.TableMeta.TableID
		}
		caption = block.TableMeta.Caption
	}
	lt := &LogicalTable{
		TableID: tableID,
		Caption: caption,
		Segments: []TableSegment{{
			PageNum:      pageNum,
			BlockID:      block.BlockID,
			SegmentIndex: 0,
			Markdown:     block.Content,
		}},
	}
	r.Tables[tableID] = lt
	r.PageToTables[pageNum] = append(r.PageToTables[pageNum], tableID)
	r.BlockToTable[block.BlockID] = tableID
	return lt
}

// appendSegment 将续段并入逻辑表格
func (r *Registry) appendSegment(lt *LogicalTable, pageNum int, block models.ContentBlock) {
	lt.Segments = append(lt.Segments, TableSegment{
		PageNum:      pageNum,
		BlockID:      block.BlockID,
		SegmentIndex: len(lt.Segments),
		Markdown:     block.Content,
	})
	r.PageToTables[pageNum] = append(r.PageToTables[pageNum], lt.TableID)
	r.BlockToTable[block.BlockID] = lt.TableID
}

// GetFullTable 返回指定表格拼接去重后的完整内容
func (r *Registry) GetFullTable(tableID string) (string, error) {
	lt, ok := r.Tables[tableID]
	if !ok {
		// 可能传入的是续段块ID，回查主表
		if master, found := r.BlockToTable[tableID]; found {
			lt = r.Tables[master]
			ok = lt != nil
		}
	}
	if !ok {
		return "", models.NewTableNotFoundError(r.RegID, tableID)
	}
	return lt.FullMarkdown(), nil
}

// GetTablesOnPage 返回指定页面上出现的逻辑表格
func (r *Registry) GetTablesOnPage(pageNum int) []*LogicalTable {
	ids := r.PageToTables[pageNum]
	tables := make([]*LogicalTable, 0, len(ids))
	for _, id := range ids {
		if lt, ok := r.Tables[id]; ok {
			tables = append(tables, lt)
		}
	}
	return tables
}

// MasterOf 返回表格块所属的主表ID
func (r *Registry) MasterOf(blockID string) (string, bool) {
	id, ok := r.BlockToTable[blockID]
	return id, ok
}

// FindByCaption 按表格标题查找（"表6-2"形式的引用解析使用）
func (r *Registry) FindByCaption(caption string) (*LogicalTable, bool) {
	for _, lt := range r.Tables {
		if lt.Caption == caption {
			return lt, true
		}
	}
	for _, lt := range r.Tables {
		if caption != "" && strings.Contains(lt.Caption, caption) {
			return lt, true
		}
	}
	return nil, false
}

// Annotate 回填续段块的master_table_id与segment_index
// 在页面入库前调用，使存储的页面携带归属信息
func (r *Registry) Annotate(pages []*models.PageDocument) {
	for _, page := range pages {
		for i := range page.ContentBlocks {
			block := &page.ContentBlocks[i]
			if block.BlockType != models.BlockTypeTable {
				continue
			}
			master, ok := r.BlockToTable[block.BlockID]
			if !ok {
				continue
			}
			lt := r.Tables[master]
			for _, seg := range lt.Segments {
				if seg.BlockID == block.BlockID && seg.SegmentIndex > 0 {
					if block.TableMeta == nil {
						block.TableMeta = &models.TableMeta{}
					}
					block.TableMeta.MasterTableID = master
					block.TableMeta.SegmentIndex = seg.SegmentIndex
				}
			}
		}
	}
}

// isTruncated 判断表格块是否被标记为截断
func isTruncated(block models.ContentBlock) bool {
	return block.TableMeta != nil && block.TableMeta.IsTruncated
}

// SplitTableRows 将Markdown表格拆成行，忽略空行
func SplitTableRows(markdown string) []string {
	var rows []string
	for _, line := range strings.Split(markdown, "\n") {
		if strings.TrimSpace(line) != "" {
			rows = append(rows, line)
		}
	}
	return rows
}

// DropHeaderRows 去掉续段的表头行（表头+分隔行）
func DropHeaderRows(rows []string) []string {
	if len(rows) >= 2 && IsSeparatorRow(rows[1]) {
		return rows[2:]
	}
	return rows
}

// IsSeparatorRow 判断是否为Markdown表格的表头分隔行（如"|---|---|"）
func IsSeparatorRow(row string) bool {
	trimmed := strings.TrimSpace(row)
	if trimmed == "" {
		return false
	}
	hasDash := false
	for _, ch := range trimmed {
		switch ch {
		case '|', '-', ':', ' ':
			if ch == '-' {
				hasDash = true
			}
		default:
			return false
		}
	}
	return hasDash
}
