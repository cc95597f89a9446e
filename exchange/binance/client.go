package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"tradesync/logger"
	"tradesync/metrics"
)

const (
	// 主网 API 地址
	DefaultBaseURL = "https://fapi.binance.com"

	// 429 重试上限与退避基数
	maxRetryAttempts = 4

	// 418 封禁与 -1003 限频的冷却兜底时长
	banCooldownFallback       = 600 * time.Second
	rateLimitCooldownFallback = 60 * time.Second
)

// banUntilPattern 从限频错误信息中提取解封时间（毫秒）
var banUntilPattern = regexp.MustCompile(`banned until (\d+)`)

// sharedState 所有客户端句柄共享的限速状态
// 每个 worker 持有自己的句柄，但全局请求间隔、时间偏移、冷却和预算只有一份
type sharedState struct {
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration

	stateMu       sync.Mutex
	timeOffsetMs  int64
	cooldownUntil time.Time

	budgetMu sync.Mutex
	budget   *requestBudget
}

// Client 币安 U 本位合约 REST 客户端
type Client struct {
	apiKey       string
	secretKey    string
	baseURL      string
	recvWindowMs int64
	httpClient   *http.Client
	shared       *sharedState
}

// NewClient 创建客户端
func NewClient(apiKey, secretKey, baseURL string, minInterval time.Duration, recvWindowMs int64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if recvWindowMs <= 0 {
		recvWindowMs = 10000
	}
	return &Client{
		apiKey:       apiKey,
		secretKey:    secretKey,
		baseURL:      baseURL,
		recvWindowMs: recvWindowMs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		shared: &sharedState{
			minInterval: minInterval,
		},
	}
}

// Handle 返回一个共享限速状态的轻量副本，供并发 worker 各自持有
func (c *Client) Handle() *Client {
	clone := *c
	clone.httpClient = &http.Client{
		Timeout: 30 * time.Second,
	}
	return &clone
}

// sign 对查询串做 HMAC-SHA256 签名
func (c *Client) sign(query string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// throttle 全局最小请求间隔，所有句柄共用一个时钟
func (c *Client) throttle() {
	s := c.shared
	s.throttleMu.Lock()
	defer s.throttleMu.Unlock()

	if s.minInterval <= 0 {
		s.lastRequest = time.Now()
		return
	}
	elapsed := time.Since(s.lastRequest)
	if elapsed < s.minInterval {
		wait := s.minInterval - elapsed
		metrics.ObserveThrottleWait(wait.Seconds())
		time.Sleep(wait)
	}
	s.lastRequest = time.Now()
}

// CooldownRemaining 全局冷却剩余时长
func (c *Client) CooldownRemaining() time.Duration {
	s := c.shared
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if remaining := time.Until(s.cooldownUntil); remaining > 0 {
		return remaining
	}
	return 0
}

// setCooldown 设置全局冷却，期间所有请求直接短路
func (c *Client) setCooldown(until time.Time, reason string) {
	s := c.shared
	s.stateMu.Lock()
	if until.After(s.cooldownUntil) {
		s.cooldownUntil = until
	}
	effective := s.cooldownUntil
	s.stateMu.Unlock()
	logger.Warn("接口进入全局冷却（%s），恢复时间 %s", reason, effective.Format("15:04:05"))
}

// cooldownFromMessage 解析错误信息中的解封时间，解析不到时用兜底时长
func (c *Client) cooldownFromMessage(msg string, fallback time.Duration, reason string) {
	until := time.Now().Add(fallback)
	if m := banUntilPattern.FindStringSubmatch(msg); len(m) == 2 {
		if ms, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			until = time.UnixMilli(ms)
		}
	}
	c.setCooldown(until, reason)
}

// timestampMs 应用服务器时间偏移后的当前毫秒时间
func (c *Client) timestampMs() int64 {
	s := c.shared
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return time.Now().UnixMilli() + s.timeOffsetMs
}

// syncServerTime 校准与服务器的时间偏移（-1021 时触发一次）
func (c *Client) syncServerTime(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fapi/v1/time", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("获取服务器时间失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var payload struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("解析服务器时间失败: %w", err)
	}

	offset := payload.ServerTime - time.Now().UnixMilli()
	s := c.shared
	s.stateMu.Lock()
	s.timeOffsetMs = offset
	s.stateMu.Unlock()
	logger.Info("已校准服务器时间偏移: %dms", offset)
	return nil
}

// apiError 币安错误响应
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Request 发送一次请求
// 非致命失败（限频、网络抖动、未知错误）返回 (nil, nil)，调用方按"本次没拿到数据"处理；
// failOnError 为 true 时上述失败改为返回错误，由调用方隔离这一个工作单元
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, signed, failOnError bool) (json.RawMessage, error) {
	if remaining := c.CooldownRemaining(); remaining > 0 {
		logger.Warn("接口冷却中，跳过请求 %s（剩余 %.0f 秒）", path, remaining.Seconds())
		metrics.RecordAPIRequest(path, "cooldown")
		if failOnError {
			return nil, fmt.Errorf("接口冷却中，剩余 %.0f 秒", remaining.Seconds())
		}
		return nil, nil
	}

	attempts := 0
	timeSynced := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.throttle()
		if err := c.budgetWait(ctx, path); err != nil {
			return nil, err
		}

		body, status, err := c.doRequest(ctx, method, path, params, signed)
		if err != nil {
			logger.Warn("请求 %s 失败: %v", path, err)
			metrics.RecordAPIRequest(path, "network_error")
			if failOnError {
				return nil, fmt.Errorf("请求 %s 失败: %w", path, err)
			}
			return nil, nil
		}

		if status == http.StatusOK {
			metrics.RecordAPIRequest(path, "ok")
			return body, nil
		}

		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)

		switch {
		case apiErr.Code == -1021 && !timeSynced:
			// 本地时间漂移，校准一次后重试
			timeSynced = true
			if err := c.syncServerTime(ctx); err != nil {
				logger.Warn("校准服务器时间失败: %v", err)
			}
			continue

		case status == http.StatusTeapot:
			// 418: IP 已被封禁
			metrics.RecordAPIRequest(path, "banned")
			c.cooldownFromMessage(apiErr.Msg, banCooldownFallback, "IP 封禁")
			if failOnError {
				return nil, fmt.Errorf("接口封禁: %s", apiErr.Msg)
			}
			return nil, nil

		case apiErr.Code == -1003:
			// 明确的限频错误，立即冷却不再重试
			metrics.RecordAPIRequest(path, "rate_limited")
			c.cooldownFromMessage(apiErr.Msg, rateLimitCooldownFallback, "限频 -1003")
			if failOnError {
				return nil, fmt.Errorf("接口限频: %s", apiErr.Msg)
			}
			return nil, nil

		case status == http.StatusTooManyRequests:
			attempts++
			if attempts < maxRetryAttempts {
				backoff := time.Duration(1<<(attempts-1)) * time.Second
				logger.Warn("请求 %s 收到 429，%v 后第 %d 次重试", path, backoff, attempts)
				time.Sleep(backoff)
				continue
			}
			metrics.RecordAPIRequest(path, "rate_limited")
			c.setCooldown(time.Now().Add(rateLimitCooldownFallback), "429 重试耗尽")
			if failOnError {
				return nil, fmt.Errorf("请求 %s 重试耗尽（429）", path)
			}
			return nil, nil

		default:
			logger.Warn("请求 %s 返回错误 %d（HTTP %d）: %s", path, apiErr.Code, status, apiErr.Msg)
			metrics.RecordAPIRequest(path, "api_error")
			if failOnError {
				return nil, fmt.Errorf("接口错误 %d: %s", apiErr.Code, apiErr.Msg)
			}
			return nil, nil
		}
	}
}

// doRequest 执行一次 HTTP 调用，签名请求附加 recvWindow/timestamp/signature
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, int, error) {
	query := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	if signed {
		query.Set("recvWindow", strconv.FormatInt(c.recvWindowMs, 10))
		query.Set("timestamp", strconv.FormatInt(c.timestampMs(), 10))
	}

	encoded := query.Encode()
	if signed {
		encoded += "&signature=" + c.sign(encoded)
	}

	fullURL := c.baseURL + path
	if encoded != "" {
		fullURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("创建请求失败: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("读取响应失败: %w", err)
	}
	return body, resp.StatusCode, nil
}
