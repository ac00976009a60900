// Package exchange 各行情源共用的 REST 访问、推送骨架和轮询骨架
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradefeed/internal/domain/feederr"
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 512
)

// RESTClient 共享 REST 访问；失败归类为 NetworkError 或 UpstreamError
type RESTClient struct {
	name    string
	baseURL string
	client  *http.Client
	header  http.Header
}

// NewRESTClient client 为空时使用默认超时
func NewRESTClient(name, baseURL string, client *http.Client) *RESTClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &RESTClient{
		name:    name,
		baseURL: strings.TrimSpace(baseURL),
		client:  client,
		header:  make(http.Header),
	}
}

// SetHeader 每个请求都带上的头，例如 API key
func (c *RESTClient) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// BaseURL 当前 REST 地址
func (c *RESTClient) BaseURL() string { return c.baseURL }

// GetJSON GET 并解码 JSON 响应
func (c *RESTClient) GetJSON(ctx context.Context, path string, query url.Values, v any) error {
	endpoint, err := BuildQueryURL(c.baseURL, path, query.Encode())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	for k, vals := range c.header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &feederr.NetworkError{Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &feederr.NetworkError{Op: "read " + path, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return &feederr.UpstreamError{Provider: c.name, Status: resp.StatusCode, Message: msg}
	}

	if err := ParseJSON(body, v); err != nil {
		return &feederr.UpstreamError{Provider: c.name, Status: resp.StatusCode, Message: err.Error()}
	}
	return nil
}

// ParseJSON safely parses JSON
func ParseJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

// BuildQueryURL builds a URL with query parameters; path is appended to the base path
func BuildQueryURL(base, path, query string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("base url is empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query
	return u.String(), nil
}
