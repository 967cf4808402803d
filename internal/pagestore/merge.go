package pagestore

import (
	"strings"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/tableregistry"
)

// pendingTable 跨页拼接中的表格缓冲
// partIdx记录表格在输出中的占位位置，续段数据行持续追加到rows
type pendingTable struct {
	partIdx int
	rows    []string
}

// mergePages 将有序页面渲染为单段Markdown，跨页表格在首段位置拼接
// 返回渲染结果及是否发生过拼接
func mergePages(pages []*models.PageDocument) (string, bool) {
	var parts []string
	var pending *pendingTable
	hasMerged := false

	flush := func() {
		if pending != nil {
			parts[pending.partIdx] = strings.Join(pending.rows, "\n")
			pending = nil
		}
	}

	for _, page := range pages {
		if page == nil {
			continue
		}
		tables := page.TableBlocks()
		consumed := make(map[string]bool)

		if page.ContinuesFromPrev && pending != nil && len(tables) > 0 {
			// 本页首个表格块是上一页表格的续段：去表头后追加数据行
			cont := tables[0]
			rows := tableregistry.DropHeaderRows(tableregistry.SplitTableRows(cont.Content))
			pending.rows = append(pending.rows, rows...)
			consumed[cont.BlockID] = true
			hasMerged = true

			stillOpen := page.ContinuesToNext && (blockTruncated(cont) || len(tables) == 1)
			if !stillOpen {
				flush()
			}
		} else {
			// 没有承接页，当前缓冲原样落位
			flush()
		}

		for _, block := range page.ContentBlocks {
			if consumed[block.BlockID] {
				continue
			}
			if block.BlockType == models.BlockTypeTable &&
				page.ContinuesToNext && blockTruncated(block) && pending == nil {
				// 页尾截断的表格成为新的拼接缓冲，先占位
				pending = &pendingTable{
					partIdx: len(parts),
					rows:    tableregistry.SplitTableRows(block.Content),
				}
				parts = append(parts, "")
				continue
			}
			if strings.TrimSpace(block.Content) != "" {
				parts = append(parts, block.Content)
			}
		}
	}
	flush()

	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n"), hasMerged
}

// blockTruncated 判断表格块是否被标记截断
func blockTruncated(block models.ContentBlock) bool {
	return block.TableMeta != nil && block.TableMeta.IsTruncated
}
