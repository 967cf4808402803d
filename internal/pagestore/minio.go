package pagestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/tableregistry"
)

// MinioStore 基于MinIO对象存储的页面存储
// 对象命名：{reg_id}/pages/page_00001.json，每页一个对象；
// 对象PUT本身是原子的，读取方不会观察到半写对象
type MinioStore struct {
	client      *minio.Client
	bucketName  string
	maxPageSpan int
	logger      *logrus.Logger
}

// NewMinioStore 创建MinIO页面存储实例
func NewMinioStore(cfg Config) (Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %v", err)
	}

	// 检查存储桶是否存在，不存在则创建
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %v", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	span := cfg.MaxPageSpan
	if span <= 0 {
		span = DefaultMaxPageSpan
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}

	return &MinioStore{
		client:      client,
		bucketName:  cfg.Bucket,
		maxPageSpan: span,
		logger:      log,
	}, nil
}

// SavePage 持久化单个页面
func (s *MinioStore) SavePage(ctx context.Context, page *models.PageDocument) error {
	if page.RegID == "" || page.PageNum < 1 {
		return models.NewStorageError(page.RegID,
			fmt.Errorf("invalid page identity: reg_id=%q page_num=%d", page.RegID, page.PageNum))
	}
	return s.putJSON(ctx, page.RegID, s.pageObject(page.RegID, page.PageNum), page)
}

// LoadPage 加载指定页面
func (s *MinioStore) LoadPage(ctx context.Context, regID string, pageNum int) (*models.PageDocument, error) {
	exists, err := s.collectionExists(ctx, regID)
	if err != nil {
		return nil, models.NewStorageError(regID, err)
	}
	if !exists {
		return nil, models.NewRegulationNotFoundError(regID)
	}

	var page models.PageDocument
	if err := s.getJSON(ctx, s.pageObject(regID, pageNum), &page); err != nil {
		if isObjectNotFound(err) {
			return nil, models.NewPageNotFoundError(regID, pageNum)
		}
		return nil, models.NewStorageError(regID, err)
	}
	return &page, nil
}

// LoadPageRange 加载页码区间并合并
func (s *MinioStore) LoadPageRange(ctx context.Context, regID string, start, end int) (*models.MergedContent, error) {
	if start < 1 {
		return nil, models.NewInvalidPageRangeError(regID, start, end, "start page must be >= 1")
	}
	if start > end {
		return nil, models.NewInvalidPageRangeError(regID, start, end, "start page is greater than end page")
	}
	exists, err := s.collectionExists(ctx, regID)
	if err != nil {
		return nil, models.NewStorageError(regID, err)
	}
	if !exists {
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
		var page models.PageDocument
		if err := s.getJSON(ctx, s.pageObject(regID, num), &page); err != nil {
			if isObjectNotFound(err) {
				s.logger.WithFields(logrus.Fields{
					"reg_id":   regID,
					"page_num": num,
				}).Warn("Page missing inside requested range, skipped")
				missing = append(missing, num)
				continue
			}
			return nil, models.NewStorageError(regID, err)
		}
		pages = append(pages, &page)
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

// ListCollections 列出所有集合ID（按对象前缀聚合）
func (s *MinioStore) ListCollections(ctx context.Context) ([]string, error) {
	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{})
	var ids []string
	for object := range objectCh {
		if object.Err != nil {
			return nil, models.NewStorageError("", object.Err)
		}
		ids = append(ids, strings.TrimSuffix(object.Key, "/"))
	}
	sort.Strings(ids)
	return ids, nil
}

// ListPages 列出集合内已存储的页码
func (s *MinioStore) ListPages(ctx context.Context, regID string) ([]int, error) {
	prefix := regID + "/pages/"
	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var nums []int
	for object := range objectCh {
		if object.Err != nil {
			return nil, models.NewStorageError(regID, object.Err)
		}
		name := strings.TrimPrefix(object.Key, prefix)
		if !strings.HasPrefix(name, "page_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "page_"), ".json")
		if num, err := strconv.Atoi(numStr); err == nil {
			nums = append(nums, num)
		}
	}
	if len(nums) == 0 {
		return nil, models.NewRegulationNotFoundError(regID)
	}
	sort.Ints(nums)
	return nums, nil
}

// DeleteCollection 删除集合的全部对象
func (s *MinioStore) DeleteCollection(ctx context.Context, regID string) error {
	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    regID + "/",
		Recursive: true,
	})

	deleted := 0
	for object := range objectCh {
		if object.Err != nil {
			return models.NewStorageError(regID, object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucketName, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return models.NewStorageError(regID, err)
		}
		deleted++
	}
	if deleted == 0 {
		return models.NewRegulationNotFoundError(regID)
	}
	return nil
}

// SaveStructure 持久化章节结构制品
func (s *MinioStore) SaveStructure(ctx context.Context, structure *models.DocumentStructure) error {
	return s.putJSON(ctx, structure.RegID, structure.RegID+"/structure.json", structure)
}

// LoadStructure 加载章节结构制品
func (s *MinioStore) LoadStructure(ctx context.Context, regID string) (*models.DocumentStructure, error) {
	var structure models.DocumentStructure
	if err := s.getJSON(ctx, regID+"/structure.json", &structure); err != nil {
		if isObjectNotFound(err) {
			return nil, models.NewRegulationNotFoundError(regID)
		}
		return nil, models.NewStorageError(regID, err)
	}
	return &structure, nil
}

// SaveTableRegistry 持久化表格注册表制品
func (s *MinioStore) SaveTableRegistry(ctx context.Context, registry *tableregistry.Registry) error {
	return s.putJSON(ctx, registry.RegID, registry.RegID+"/tables.json", registry)
}

// LoadTableRegistry 加载表格注册表制品
func (s *MinioStore) LoadTableRegistry(ctx context.Context, regID string) (*tableregistry.Registry, error) {
	var registry tableregistry.Registry
	if err := s.getJSON(ctx, regID+"/tables.json", &registry); err != nil {
		if isObjectNotFound(err) {
			return nil, models.NewRegulationNotFoundError(regID)
		}
		return nil, models.NewStorageError(regID, err)
	}
	return &registry, nil
}

func (s *MinioStore) pageObject(regID string, pageNum int) string {
	return fmt.Sprintf("%s/pages/page_%05d.json", regID, pageNum)
}

// collectionExists 检查集合是否存在（至少存在一个对象）
func (s *MinioStore) collectionExists(ctx context.Context, regID string) (bool, error) {
	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:  regID + "/",
		MaxKeys: 1,
	})
	for object := range objectCh {
		if object.Err != nil {
			return false, object.Err
		}
		return true, nil
	}
	return false, nil
}

func (s *MinioStore) putJSON(ctx context.Context, regID, objectName string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return models.NewStorageError(regID, err)
	}
	_, err = s.client.PutObject(ctx, s.bucketName, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return models.NewStorageError(regID, err)
	}
	return nil
}

func (s *MinioStore) getJSON(ctx context.Context, objectName string, v interface{}) error {
	obj, err := s.client.GetObject(ctx, s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// isObjectNotFound 判断MinIO错误是否为对象不存在
func isObjectNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return false
}

// 在包初始化时注册MinIO存储
func init() {
	RegisterStore("minio", NewMinioStore)
}
