package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradesync/exchange/binance"
)

func newTestController() *Controller {
	gateway := binance.NewClient("test-key", "test-secret", "", 0, 0)
	return NewController(gateway)
}

func TestControllerNonBlockingAcquire(t *testing.T) {
	c := newTestController()

	if !c.Acquire("first", 0) {
		t.Fatalf("空闲时应能立即获取锁")
	}
	if c.Acquire("second", 0) {
		t.Fatalf("锁被占用且不等待时应立即失败")
	}

	c.Release()
	if !c.Acquire("third", 0) {
		t.Fatalf("释放后应能再次获取")
	}
}

func TestControllerWaitTimeout(t *testing.T) {
	c := newTestController()

	if !c.Acquire("holder", 0) {
		t.Fatalf("空闲时应能获取锁")
	}

	start := time.Now()
	if c.Acquire("waiter", 1) {
		t.Fatalf("超时后应获取失败")
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("应等满超时时间再放弃，实际只等了 %v", elapsed)
	}
}

func TestControllerWaitSucceeds(t *testing.T) {
	c := newTestController()

	if !c.Acquire("holder", 0) {
		t.Fatalf("空闲时应能获取锁")
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		c.Release()
	}()

	if !c.Acquire("waiter", 2) {
		t.Fatalf("等待期间锁释放后应获取成功")
	}
}

func TestControllerRejectsDuringCooldown(t *testing.T) {
	until := time.Now().Add(10 * time.Minute).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprintf(w, `{"code":-1003,"msg":"Way too many requests; IP banned until %d"}`, until)
	}))
	defer server.Close()

	gateway := binance.NewClient("test-key", "test-secret", server.URL, 0, 10000)
	if _, err := gateway.Request(context.Background(), http.MethodGet, "/fapi/v1/income", nil, true, false); err != nil {
		t.Fatalf("封禁响应应按无数据处理: %v", err)
	}
	if gateway.CooldownRemaining() <= 0 {
		t.Fatalf("封禁后网关应进入冷却")
	}

	c := NewController(gateway)
	// 锁本身空闲，冷却是唯一拒绝原因；等待时间再长也不该等
	start := time.Now()
	if c.Acquire("trades_sync", 8) {
		t.Fatalf("网关冷却期间不应启动任务")
	}
	if time.Since(start) > time.Second {
		t.Errorf("冷却拒绝应立即返回，不应等待锁")
	}
}

func TestControllerReleaseIdempotent(t *testing.T) {
	c := newTestController()

	// 未持有时释放不应阻塞或崩溃
	c.Release()
	c.Release()

	if !c.Acquire("after", 0) {
		t.Fatalf("多次释放后仍应能正常获取")
	}
}
