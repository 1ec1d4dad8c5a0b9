package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"relation-mapper/internal/inference"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// ProviderError 外部评级服务不可用或出错（非致命，调用方降级处理）
type ProviderError struct {
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("评级服务调用失败 (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("评级服务调用失败: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AlibabaClient 阿里云通义千问评级客户端。
// 实现 inference.Judge：按固定评分标准给候选对打五档评级
type AlibabaClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
}

// NewAlibabaClient 创建阿里云评级客户端
func NewAlibabaClient(apiKey string) *AlibabaClient {
	return &AlibabaClient{
		apiKey:   apiKey,
		endpoint: "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation",
		model:    "qwen-plus", // 或 qwen-turbo, qwen-max
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// 限速：每秒最多 5 次调用
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		maxRetries: 3,
	}
}

// rubric 固定评分标准，所有候选对共用
const rubric = `你是数据库建模专家。按以下固定标准评估两列之间存在外键关系的可能性：
- very strong: 几乎确定，如 id 与 *_id 的直接对应
- strong: 明确的父子表命名关系
- normal: 跨领域但说得通的匹配
- weak: 不确定的匹配
- very weak: 基本无关

只输出上述五个标签之一，不要输出其他任何文字。`

// Classify 给单个候选对评级（带限速与指数退避重试）
func (c *AlibabaClient) Classify(sourceTable, sourceColumn, targetTable, targetColumn string) (inference.Confidence, error) {
	if err := c.limiter.Wait(context.Background()); err != nil {
		return inference.VeryWeak, &ProviderError{Err: err}
	}

	prompt := fmt.Sprintf("评估该候选关系的强度：%s.%s -> %s.%s",
		sourceTable, sourceColumn, targetTable, targetColumn)

	var content string
	operation := func() error {
		var err error
		content, err = c.callAPI(prompt)
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	if err := backoff.Retry(operation, policy); err != nil {
		if perr, ok := err.(*ProviderError); ok {
			return inference.VeryWeak, perr
		}
		return inference.VeryWeak, &ProviderError{Err: err}
	}

	level, err := inference.ParseConfidence(extractLabel(content))
	if err != nil {
		return inference.VeryWeak, &ProviderError{Err: err}
	}
	return level, nil
}

// extractLabel 从模型输出中提取评级标签（容忍多余文字）
func extractLabel(content string) string {
	lower := strings.ToLower(content)
	for _, label := range []string{"very strong", "very weak", "strong", "weak", "normal"} {
		if strings.Contains(lower, label) {
			return label
		}
	}
	return strings.TrimSpace(content)
}

// callAPI 调用阿里云 API。4xx（限流除外）不重试
func (c *AlibabaClient) callAPI(prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"model": c.model,
		"input": map[string]interface{}{
			"messages": []map[string]string{
				{"role": "system", "content": rubric},
				{"role": "user", "content": prompt},
			},
		},
		"parameters": map[string]interface{}{
			"result_format": "message",
		},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", backoff.Permanent(&ProviderError{Err: err})
	}

	req, err := http.NewRequest("POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", backoff.Permanent(&ProviderError{Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		perr := &ProviderError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("响应: %s", strings.TrimSpace(string(body))),
		}
		// 客户端错误重试无意义，限流和服务端错误可重试
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", backoff.Permanent(perr)
		}
		return "", perr
	}

	var apiResp struct {
		Output struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", backoff.Permanent(&ProviderError{Err: fmt.Errorf("解析响应失败: %v", err)})
	}
	if len(apiResp.Output.Choices) == 0 {
		return "", backoff.Permanent(&ProviderError{Err: fmt.Errorf("API 返回空响应")})
	}

	return apiResp.Output.Choices[0].Message.Content, nil
}
