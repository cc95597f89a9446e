package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"tradesync/logger"
)

const (
	// allOrders 单次查询允许的最大时间窗口（7 天减 1 毫秒）
	maxOrderWindowMs = 7*24*60*60*1000 - 1

	pageLimit = 1000
)

// GetAllOrders 拉取一个币种在给定窗口内的全部订单
// 窗口超过 7 天时按子窗口切分；子窗口内按 updateTime 翻页并按 orderId 去重
func (c *Client) GetAllOrders(ctx context.Context, symbol string, startMs, endMs int64, failOnError bool) ([]*RawOrder, error) {
	seen := make(map[int64]bool)
	var orders []*RawOrder

	// 没有时间过滤时单次拉取最近 1000 条
	if startMs <= 0 {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("limit", strconv.Itoa(pageLimit))
		body, err := c.Request(ctx, http.MethodGet, "/fapi/v1/allOrders", params, true, failOnError)
		if err != nil {
			return nil, err
		}
		if body == nil {
			return nil, nil
		}
		var batch []*RawOrder
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("解析订单列表失败: %w", err)
		}
		return batch, nil
	}

	for winStart := startMs; winStart <= endMs; {
		winEnd := winStart + maxOrderWindowMs
		if winEnd > endMs {
			winEnd = endMs
		}

		cursor := winStart
		for {
			params := url.Values{}
			params.Set("symbol", symbol)
			params.Set("startTime", strconv.FormatInt(cursor, 10))
			params.Set("endTime", strconv.FormatInt(winEnd, 10))
			params.Set("limit", strconv.Itoa(pageLimit))

			body, err := c.Request(ctx, http.MethodGet, "/fapi/v1/allOrders", params, true, failOnError)
			if err != nil {
				return nil, err
			}
			if body == nil {
				// 非致命失败，这个币种本轮到此为止
				logger.Warn("拉取 %s 订单在 %d 处中断", symbol, cursor)
				return orders, nil
			}

			var batch []*RawOrder
			if err := json.Unmarshal(body, &batch); err != nil {
				return nil, fmt.Errorf("解析订单列表失败: %w", err)
			}

			var maxUpdate int64
			for _, o := range batch {
				if o.UpdateTime > maxUpdate {
					maxUpdate = o.UpdateTime
				}
				if seen[o.OrderID] {
					continue
				}
				seen[o.OrderID] = true
				orders = append(orders, o)
			}

			if len(batch) < pageLimit {
				break
			}

			// 从最后一条的 updateTime+1 续拉，原地踏步时强制推进 1 毫秒
			next := maxUpdate + 1
			if next <= cursor {
				next = cursor + 1
			}
			cursor = next
			if cursor > winEnd {
				break
			}
		}

		winStart = winEnd + 1
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].UpdateTime < orders[j].UpdateTime
	})
	return orders, nil
}

// GetIncomeHistory 拉取窗口内的全部收入流水（按时间翻页）
func (c *Client) GetIncomeHistory(ctx context.Context, startMs, endMs int64, failOnError bool) ([]*IncomeRecord, error) {
	var records []*IncomeRecord
	cursor := startMs

	for {
		params := url.Values{}
		if cursor > 0 {
			params.Set("startTime", strconv.FormatInt(cursor, 10))
		}
		if endMs > 0 {
			params.Set("endTime", strconv.FormatInt(endMs, 10))
		}
		params.Set("limit", strconv.Itoa(pageLimit))

		body, err := c.Request(ctx, http.MethodGet, "/fapi/v1/income", params, true, failOnError)
		if err != nil {
			return nil, err
		}
		if body == nil {
			return records, nil
		}

		var batch []*IncomeRecord
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("解析收入流水失败: %w", err)
		}
		records = append(records, batch...)

		if len(batch) < pageLimit {
			break
		}

		last := batch[len(batch)-1].Time
		next := last + 1
		if next <= cursor {
			next = cursor + 1
		}
		cursor = next
		if endMs > 0 && cursor > endMs {
			break
		}
	}

	return records, nil
}

// GetFirstKlineOpen 取某币种在某 UTC 自然日的首根 1 小时 K 线开盘价
func (c *Client) GetFirstKlineOpen(ctx context.Context, symbol string, dayStartMs int64) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1h")
	params.Set("startTime", strconv.FormatInt(dayStartMs, 10))
	params.Set("limit", "1")

	body, err := c.Request(ctx, http.MethodGet, "/fapi/v1/klines", params, false, false)
	if err != nil {
		return 0, err
	}
	if body == nil {
		return 0, fmt.Errorf("获取 %s K线失败", symbol)
	}

	var klines [][]interface{}
	if err := json.Unmarshal(body, &klines); err != nil {
		return 0, fmt.Errorf("解析K线失败: %w", err)
	}
	if len(klines) == 0 || len(klines[0]) < 2 {
		return 0, fmt.Errorf("%s 在该时间无K线数据", symbol)
	}

	openStr, ok := klines[0][1].(string)
	if !ok {
		return 0, fmt.Errorf("K线开盘价格式异常")
	}
	open, err := strconv.ParseFloat(openStr, 64)
	if err != nil {
		return 0, fmt.Errorf("解析开盘价失败: %w", err)
	}
	return open, nil
}

// GetPositionRisk 拉取全部持仓风险，失败返回 nil（调用方跳过本轮持仓同步）
func (c *Client) GetPositionRisk(ctx context.Context) ([]*PositionRisk, error) {
	body, err := c.Request(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, true, false)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	var positions []*PositionRisk
	if err := json.Unmarshal(body, &positions); err != nil {
		return nil, fmt.Errorf("解析持仓风险失败: %w", err)
	}
	return positions, nil
}

// GetAccount 拉取账户概要
func (c *Client) GetAccount(ctx context.Context) (*AccountInfo, error) {
	body, err := c.Request(ctx, http.MethodGet, "/fapi/v2/account", nil, true, false)
	if err != nil || body == nil {
		return nil, err
	}
	var account AccountInfo
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("解析账户信息失败: %w", err)
	}
	return &account, nil
}

// GetTickerPrice 最新成交价
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (*TickerPrice, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.Request(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false, false)
	if err != nil || body == nil {
		return nil, err
	}
	var ticker TickerPrice
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, fmt.Errorf("解析价格失败: %w", err)
	}
	return &ticker, nil
}

// GetTicker24h 24 小时行情（symbol 为空时返回全市场）
func (c *Client) GetTicker24h(ctx context.Context, symbol string) ([]*Ticker24h, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.Request(ctx, http.MethodGet, "/fapi/v1/ticker/24hr", params, false, false)
	if err != nil || body == nil {
		return nil, err
	}

	if symbol != "" {
		var one Ticker24h
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, fmt.Errorf("解析24小时行情失败: %w", err)
		}
		return []*Ticker24h{&one}, nil
	}
	var all []*Ticker24h
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, fmt.Errorf("解析24小时行情失败: %w", err)
	}
	return all, nil
}

// GetPremiumIndex 标记价格与资金费率
func (c *Client) GetPremiumIndex(ctx context.Context, symbol string) (*PremiumIndex, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.Request(ctx, http.MethodGet, "/fapi/v1/premiumIndex", params, false, false)
	if err != nil || body == nil {
		return nil, err
	}
	var index PremiumIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("解析标记价格失败: %w", err)
	}
	return &index, nil
}

// GetExchangeInfo 交易规则与合约列表（原样返回，调用方按需解析）
func (c *Client) GetExchangeInfo(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false, false)
}

// CreateListenKey 创建用户数据流 listenKey
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	body, err := c.Request(ctx, http.MethodPost, "/fapi/v1/listenKey", nil, false, true)
	if err != nil {
		return "", err
	}
	var payload struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("解析 listenKey 失败: %w", err)
	}
	return payload.ListenKey, nil
}

// KeepAliveListenKey 续期 listenKey
func (c *Client) KeepAliveListenKey(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodPut, "/fapi/v1/listenKey", nil, false, true)
	return err
}

// CloseListenKey 关闭 listenKey
func (c *Client) CloseListenKey(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodDelete, "/fapi/v1/listenKey", nil, false, false)
	return err
}
