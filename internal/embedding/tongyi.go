package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	// DashScope嵌入API默认端点
	defaultDashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"

	// 默认模型
	defaultModel = "text-embedding-v1"
)

// dashScopeRequest DashScope请求结构体
type dashScopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Texts []string `json:"texts"`
	} `json:"input"`
}

// dashScopeResponse DashScope响应结构体
type dashScopeResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Output    struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
			TextIndex int       `json:"text_index"`
		} `json:"embeddings"`
	} `json:"output"`
}

// TongyiClient 通义千问嵌入API客户端
// 错误不在此层重试，由上层调用方决定重试策略
type TongyiClient struct {
	apiKey     string
	endpoint   string
	model      string
	dimensions int
	batchSize  int
	httpClient *http.Client
}

// NewTongyiClient 创建通义千问嵌入客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "invalid API key")
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultDashScopeEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > 25 {
		// DashScope单次最多25条文本
		batchSize = 25
	}

	return &TongyiClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// Dimensions 返回向量维度
func (c *TongyiClient) Dimensions() int {
	return c.dimensions
}

// EmbedQuery 生成查询文本的向量表示
func (c *TongyiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, "input text cannot be empty")
	}

	vectors, err := c.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embedding vectors returned")
	}
	return vectors[0], nil
}

// EmbedDocuments 批量生成文档文本的向量表示，自动按批处理大小分批
func (c *TongyiClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

// embedBatch 调用DashScope接口处理一批文本
func (c *TongyiClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqData := dashScopeRequest{Model: c.model}
	reqData.Input.Texts = texts

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var parsed dashScopeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
	}
	if parsed.Code != "" {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("API error: %s (%s)", parsed.Message, parsed.Code))
	}
	if len(parsed.Output.Embeddings) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embeddings returned")
	}

	// 按原始文本顺序排列结果
	result := make([][]float32, len(texts))
	for _, emb := range parsed.Output.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= len(texts) {
			continue
		}
		result[emb.TextIndex] = emb.Embedding
	}
	return result, nil
}

// 注册通义千问客户端
func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
