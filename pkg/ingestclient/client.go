// Package ingestclient 是摄取服务 HTTP 接口的类型化客户端，供 Web UI 与命令行使用
package ingestclient

import (
	"ClickFlow/internal/core/domain"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiPrefix = "/api/ingestion"

// APIError 表示服务端返回的非 2xx 响应，Message 为响应体文本
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client 调用摄取服务的 HTTP 接口
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option 调整 Client 的行为
type Option func(*Client)

// WithToken 为每个请求附加 Bearer 令牌
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

type tokenKey struct{}

// ContextWithToken 让使用该 ctx 的调用改用 token 鉴权，优先于 WithToken 的令牌
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New 创建客户端，baseURL 形如 http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login 换取 API 令牌，成功后后续请求自动携带
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &out); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

// ConfigureConnection 提交连接参数，返回服务端的状态文本
func (c *Client) ConfigureConnection(ctx context.Context, details domain.ConnectionDetails) (string, error) {
	var msg string
	err := c.do(ctx, http.MethodPost, apiPrefix+"/configure-connection", nil, details, &msg)
	return msg, err
}

// TestConnection 返回连通性描述文本；连接失败同样以文本形式返回
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	var msg string
	err := c.do(ctx, http.MethodGet, apiPrefix+"/test-connection", nil, nil, &msg)
	return msg, err
}

func (c *Client) Tables(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, apiPrefix+"/tables", nil, nil, &out)
	return out, err
}

func (c *Client) Columns(ctx context.Context, table string) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, apiPrefix+"/columns/"+url.PathEscape(table), nil, nil, &out)
	return out, err
}

func (c *Client) FlatFileColumns(ctx context.Context, fileName, delimiter string) ([]string, error) {
	q := url.Values{}
	q.Set("fileName", fileName)
	q.Set("delimiter", delimiter)
	var out []string
	err := c.do(ctx, http.MethodGet, apiPrefix+"/flatfile-columns", q, nil, &out)
	return out, err
}

// Data 获取预览网格，列以重复的 columns 参数传递
func (c *Client) Data(ctx context.Context, req domain.DataRequest) (domain.Grid, error) {
	q := url.Values{}
	q.Set("source", req.Source)
	q.Set("tableName", req.TableName)
	q.Set("fileName", req.FileName)
	q.Set("delimiter", req.Delimiter)
	for _, col := range req.Columns {
		q.Add("columns", col)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	var out domain.Grid
	err := c.do(ctx, http.MethodGet, apiPrefix+"/data", q, nil, &out)
	return out, err
}

func (c *Client) Ingest(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error) {
	var out domain.IngestionResult
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/ingest", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinIngest(ctx context.Context, req domain.JoinIngestionRequest) (*domain.IngestionResult, error) {
	var out domain.IngestionResult
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/clickhouse-join-to-flatfile", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Jobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []*domain.Job
	err := c.do(ctx, http.MethodGet, apiPrefix+"/jobs", q, nil, &out)
	return out, err
}

func (c *Client) Job(ctx context.Context, id string) (*domain.Job, error) {
	var out domain.Job
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/jobs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do 发送请求并解码响应。out 为 *string 时按纯文本读取，否则按 JSON 解码。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("编码请求体失败: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.token
	if t, ok := ctx.Value(tokenKey{}).(string); ok && t != "" {
		token = t
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s %s 失败: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *string:
		*v = string(raw)
		return nil
	default:
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("解码响应失败: %w", err)
		}
		return nil
	}
}

// errorMessage 优先取 JSON 响应中的 error 字段，否则原样返回响应文本
func errorMessage(raw []byte) string {
	var wrapped struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && wrapped.Error != "" {
		return wrapped.Error
	}
	return strings.TrimSpace(string(raw))
}
