package models

import "strings"

// ChapterNode 章节树节点
// 节点间通过ID互相引用，整棵树以节点表（arena）形式存储，避免父子相互持有
type ChapterNode struct {
	NodeID          string   `json:"node_id"`                   // 节点唯一ID
	SectionNumber   string   `json:"section_number,omitempty"`  // 章节编号（如"2.1.4"、"6"）
	Title           string   `json:"title"`                     // 章节标题
	Level           int      `json:"level"`                     // 层级，1为最高
	PageNum         int      `json:"page_num"`                  // 首次出现页码
	ParentID        string   `json:"parent_id,omitempty"`       // 父节点ID，根节点为空
	ChildrenIDs     []string `json:"children_ids,omitempty"`    // 子节点ID列表
	ContentBlockIDs []string `json:"content_block_ids,omitempty"` // 归属本章节的内容块（可跨页）
}

// DocumentStructure 整篇文档的章节结构
// 入库时一次性构建，之后只读；重新入库时整体重建
type DocumentStructure struct {
	RegID       string                  `json:"reg_id"`
	AllNodes    map[string]*ChapterNode `json:"all_nodes"`
	RootNodeIDs []string                `json:"root_node_ids"`
}

// NewDocumentStructure 创建空的章节结构
func NewDocumentStructure(regID string) *DocumentStructure {
	return &DocumentStructure{
		RegID:    regID,
		AllNodes: make(map[string]*ChapterNode),
	}
}

// Node 按ID取节点
func (s *DocumentStructure) Node(nodeID string) (*ChapterNode, bool) {
	n, ok := s.AllNodes[nodeID]
	return n, ok
}

// PathOf 返回从根到指定节点的标题路径
func (s *DocumentStructure) PathOf(nodeID string) []string {
	var titles []string
	for id := nodeID; id != ""; {
		node, ok := s.AllNodes[id]
		if !ok {
			break
		}
		titles = append([]string{node.Title}, titles...)
		id = node.ParentID
	}
	return titles
}

// FindBySectionNumber 按章节编号查找节点
// 先精确匹配，再按前缀匹配（"6"可命中"6"开头的最浅节点）
func (s *DocumentStructure) FindBySectionNumber(section string) (*ChapterNode, bool) {
	for _, n := range s.AllNodes {
		if n.SectionNumber == section {
			return n, true
		}
	}
	var best *ChapterNode
	for _, n := range s.AllNodes {
		if n.SectionNumber == "" {
			continue
		}
		if hasSectionPrefix(n.SectionNumber, section) {
			if best == nil || n.Level < best.Level {
				best = n
			}
		}
	}
	if best != nil {
		return best, true
	}
	return nil, false
}

// hasSectionPrefix 判断编号是否以给定前缀开头（按点号分段比较，"6"匹配"6.1"但不匹配"61"）
func hasSectionPrefix(section, prefix string) bool {
	if len(section) < len(prefix) {
		return false
	}
	if section[:len(prefix)] != prefix {
		return false
	}
	return len(section) == len(prefix) || section[len(prefix)] == '.'
}

// FindByTitle 按标题精确或包含匹配查找节点
func (s *DocumentStructure) FindByTitle(title string) (*ChapterNode, bool) {
	for _, n := range s.AllNodes {
		if n.Title == title {
			return n, true
		}
	}
	for _, n := range s.AllNodes {
		if title != "" && strings.Contains(n.Title, title) {
			return n, true
		}
	}
	return nil, false
}
