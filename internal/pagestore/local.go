package pagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/tableregistry"
)

// LocalStore 本地文件系统页面存储
// 目录布局：{base}/{reg_id}/pages/page_00001.json，每页一个制品；
// structure.json与tables.json为集合级派生制品
type LocalStore struct {
	basePath    string
	maxPageSpan int
	logger      *logrus.Logger
}

// NewLocalStore 创建本地页面存储实例
func NewLocalStore(cfg Config) (Store, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %v", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}

	span := cfg.MaxPageSpan
	if span <= 0 {
		span = DefaultMaxPageSpan
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}

	return &LocalStore{
		basePath:    absPath,
		maxPageSpan: span,
		logger:      log,
	}, nil
}

// SavePage 持久化单个页面
// 先写临时文件再重命名，保证读取方不会观察到写了一半的页面
func (s *LocalStore) SavePage(ctx context.Context, page *models.PageDocument) error {
	if page.RegID == "" || page.PageNum < 1 {
		return models.NewStorageError(page.RegID,
			fmt.Errorf("invalid page identity: reg_id=%q page_num=%d", page.RegID, page.PageNum))
	}

	dir := filepath.Join(s.collectionDir(page.RegID), "pages")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.NewStorageError(page.RegID, err)
	}

	return s.writeJSON(page.RegID, s.pagePath(page.RegID, page.PageNum), page)
}

// LoadPage 加载指定页面
func (s *LocalStore) LoadPage(ctx context.Context, regID string, pageNum int) (*models.PageDocument, error) {
	if _, err := os.Stat(s.collectionDir(regID)); os.IsNotExist(err) {
		return nil, models.NewRegulationNotFoundError(regID)
	}

	var page models.PageDocument
	if err := s.readJSON(s.pagePath(regID, pageNum), &page); err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewPageNotFoundError(regID, pageNum)
		}
		return nil, models.NewStorageError(regID, err)
	}
	return &page, nil
}

// LoadPageRange 加载页码区间并合并
// 区间内个别缺页记录日志后跳过；区间长度超过上限时截断到上限
func (s *LocalStore) LoadPageRange(ctx context.Context, regID string, start, end int) (*models.MergedContent, error) {
	if start < 1 {
		return nil, models.NewInvalidPageRangeError(regID, start, end, "start page must be >= 1")
	}
	if start > end {
		return nil, models.NewInvalidPageRangeError(regID, start, end, "start page is greater than end page")
	}
	if _, err := os.Stat(s.collectionDir(regID)); os.IsNotExist(err) {
		return nil, models.NewRegulationNotFoundError(regID)
	}

	if end-start+1 > s.maxPageSpan {
		end = start + s.maxPageSpan - 1
		s.logger.WithFields(logrus.Fields{
			"reg_id": regID,
			"start":  start,
			"end":    end,
		}).Warn("Page range exceeds span limit, truncated")
	}

	var pages []*models.PageDocument
	var missing []int
	for num := start; num <= end; num++ {
		page, err := s.LoadPage(ctx, regID, num)
		if err != nil {
			if models.IsCode(err, models.ErrCodePageNotFound) {
				s.logger.WithFields(logrus.Fields{
					"reg_id":   regID,
					"page_num": num,
				}).Warn("Page missing inside requested range, skipped")
				missing = append(missing, num)
				continue
			}
			return nil, err
		}
		pages = append(pages, page)
	}

	markdown, hasMerged := mergePages(pages)
	return &models.MergedContent{
		RegID:           regID,
		StartPage:       start,
		EndPage:         end,
		Markdown:        markdown,
		HasMergedTables: hasMerged,
		MissingPages:    missing,
	}, nil
}

// ListCollections 列出所有集合ID
func (s *LocalStore) ListCollections(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, models.NewStorageError("", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListPages 列出集合内已存储的页码
func (s *LocalStore) ListPages(ctx context.Context, regID string) ([]int, error) {
	dir := filepath.Join(s.collectionDir(regID), "pages")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewRegulationNotFoundError(regID)
		}
		return nil, models.NewStorageError(regID, err)
	}

	var nums []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "page_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "page_"), ".json")
		if num, err := strconv.Atoi(numStr); err == nil {
			nums = append(nums, num)
		}
	}
	sort.Ints(nums)
	return nums, nil
}

// DeleteCollection 删除整个集合目录
func (s *LocalStore) DeleteCollection(ctx context.Context, regID string) error {
	dir := s.collectionDir(regID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return models.NewRegulationNotFoundError(regID)
	}
	if err := os.RemoveAll(dir); err != nil {
		return models.NewStorageError(regID, err)
	}
	return nil
}

// SaveStructure 持久化章节结构制品
func (s *LocalStore) SaveStructure(ctx context.Context, structure *models.DocumentStructure) error {
	if err := os.MkdirAll(s.collectionDir(structure.RegID), 0755); err != nil {
		return models.NewStorageError(structure.RegID, err)
	}
	return s.writeJSON(structure.RegID, s.structurePath(structure.RegID), structure)
}

// LoadStructure 加载章节结构制品
func (s *LocalStore) LoadStructure(ctx context.Context, regID string) (*models.DocumentStructure, error) {
	var structure models.DocumentStructure
	if err := s.readJSON(s.structurePath(regID), &structure); err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewRegulationNotFoundError(regID)
		}
		return nil, models.NewStorageError(regID, err)
	}
	return &structure, nil
}

// SaveTableRegistry 持久化表格注册表制品
func (s *LocalStore) SaveTableRegistry(ctx context.Context, registry *tableregistry.Registry) error {
	if err := os.MkdirAll(s.collectionDir(registry.RegID), 0755); err != nil {
		return models.NewStorageError(registry.RegID, err)
	}
	return s.writeJSON(registry.RegID, s.tablesPath(registry.RegID), registry)
}

// LoadTableRegistry 加载表格注册表制品
func (s *LocalStore) LoadTableRegistry(ctx context.Context, regID string) (*tableregistry.Registry, error) {
	var registry tableregistry.Registry
	if err := s.readJSON(s.tablesPath(regID), &registry); err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewRegulationNotFoundError(regID)
		}
		return nil, models.NewStorageError(regID, err)
	}
	return &registry, nil
}

func (s *LocalStore) collectionDir(regID string) string {
	return filepath.Join(s.basePath, regID)
}

func (s *LocalStore) pagePath(regID string, pageNum int) string {
	return filepath.Join(s.collectionDir(regID), "pages", fmt.Sprintf("page_%05d.json", pageNum))
}

func (s *LocalStore) structurePath(regID string) string {
	return filepath.Join(s.collectionDir(regID), "structure.json")
}

func (s *LocalStore) tablesPath(regID string) string {
	return filepath.Join(s.collectionDir(regID), "tables.json")
}

// writeJSON 原子写入JSON制品：先写临时文件再rename
func (s *LocalStore) writeJSON(regID, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.NewStorageError(regID, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return models.NewStorageError(regID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return models.NewStorageError(regID, err)
	}
	return nil
}

func (s *LocalStore) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// 在包初始化时注册本地存储
func init() {
	RegisterStore("local", NewLocalStore)
}
