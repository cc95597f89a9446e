package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradesync/logger"
)

const (
	// 用户数据流地址
	streamBaseURL = "wss://fstream.binance.com/ws/"

	// listenKey 有效期 60 分钟，每 30 分钟续期一次
	keepAliveInterval = 30 * time.Minute

	reconnectDelay = 5 * time.Second
)

// UserStream 用户数据流客户端
// 收到 ACCOUNT_UPDATE 时触发回调（用于提前刷新持仓），断线自动重连
type UserStream struct {
	client          *Client
	onAccountUpdate func()

	mu      sync.Mutex
	running bool
}

// NewUserStream 创建用户数据流
func NewUserStream(client *Client, onAccountUpdate func()) *UserStream {
	return &UserStream{
		client:          client,
		onAccountUpdate: onAccountUpdate,
	}
}

// Start 启动数据流（阻塞直到 ctx 结束），建议放在独立 goroutine 中
func (s *UserStream) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := s.runOnce(ctx); err != nil {
			logger.Warn("用户数据流中断: %v，%v 后重连", err, reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// runOnce 建立一次连接并消费事件，直到断线或 ctx 结束
func (s *UserStream) runOnce(ctx context.Context) error {
	listenKey, err := s.client.CreateListenKey(ctx)
	if err != nil {
		return fmt.Errorf("创建 listenKey 失败: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamBaseURL+listenKey, nil)
	if err != nil {
		return fmt.Errorf("连接用户数据流失败: %w", err)
	}
	defer conn.Close()
	logger.Info("用户数据流已连接")

	// listenKey 续期
	keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
	defer cancelKeepAlive()
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-keepAliveCtx.Done():
				return
			case <-ticker.C:
				if err := s.client.KeepAliveListenKey(keepAliveCtx); err != nil {
					logger.Warn("listenKey 续期失败: %v", err)
				}
			}
		}
	}()

	// ctx 结束时主动断开，解除 ReadMessage 阻塞
	go func() {
		<-keepAliveCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("读取消息失败: %w", err)
		}

		var event struct {
			EventType string `json:"e"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}

		switch event.EventType {
		case "ACCOUNT_UPDATE":
			logger.Debug("收到账户更新事件")
			if s.onAccountUpdate != nil {
				s.onAccountUpdate()
			}
		case "listenKeyExpired":
			return fmt.Errorf("listenKey 已过期")
		}
	}
}
