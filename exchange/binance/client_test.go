package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	return NewClient("test-key", "test-secret", baseURL, 0, 10000)
}

func TestSign(t *testing.T) {
	c := newTestClient("")

	sig := c.sign("symbol=BTCUSDT&timestamp=1700000000000")
	if len(sig) != 64 {
		t.Errorf("签名应为 64 位十六进制，实际长度 %d", len(sig))
	}
	if sig != c.sign("symbol=BTCUSDT&timestamp=1700000000000") {
		t.Errorf("同一查询串签名应稳定")
	}
	if sig == c.sign("symbol=ETHUSDT&timestamp=1700000000000") {
		t.Errorf("不同查询串签名不应相同")
	}

	other := NewClient("test-key", "other-secret", "", 0, 10000)
	if sig == other.sign("symbol=BTCUSDT&timestamp=1700000000000") {
		t.Errorf("不同密钥签名不应相同")
	}
}

func TestRequestSignedParams(t *testing.T) {
	var gotQuery url.Values
	var gotAPIKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAPIKey = r.Header.Get("X-MBX-APIKEY")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	params := url.Values{}
	params.Set("symbol", "BTCUSDT")

	body, err := c.Request(context.Background(), http.MethodGet, "/fapi/v1/allOrders", params, true, true)
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	if body == nil {
		t.Fatalf("应返回响应体")
	}

	if gotAPIKey != "test-key" {
		t.Errorf("应携带 X-MBX-APIKEY 头，实际 %q", gotAPIKey)
	}
	if gotQuery.Get("symbol") != "BTCUSDT" {
		t.Errorf("业务参数丢失: %v", gotQuery)
	}
	if gotQuery.Get("recvWindow") != "10000" {
		t.Errorf("签名请求应携带 recvWindow，实际 %q", gotQuery.Get("recvWindow"))
	}
	if gotQuery.Get("timestamp") == "" || gotQuery.Get("signature") == "" {
		t.Errorf("签名请求应携带 timestamp 和 signature: %v", gotQuery)
	}
}

func TestRequestRateLimitEntersCooldown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests"}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	// 非致命模式：返回 (nil, nil) 并进入冷却
	body, err := c.Request(context.Background(), http.MethodGet, "/fapi/v1/income", nil, true, false)
	if err != nil || body != nil {
		t.Fatalf("限频应按无数据处理: body=%v err=%v", body, err)
	}
	if c.CooldownRemaining() <= 0 {
		t.Fatalf("限频后应进入全局冷却")
	}

	// 冷却期间 failOnError 请求直接短路报错
	if _, err := c.Request(context.Background(), http.MethodGet, "/fapi/v1/income", nil, true, true); err == nil {
		t.Errorf("冷却期间 failOnError 请求应报错")
	}
}

func TestRequestBanParsesUntil(t *testing.T) {
	until := time.Now().Add(30 * time.Minute).UnixMilli()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprintf(w, `{"code":-1003,"msg":"Way too many requests; IP banned until %d"}`, until)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.Request(context.Background(), http.MethodGet, "/fapi/v1/allOrders", nil, true, false); err != nil {
		t.Fatalf("封禁应按无数据处理: %v", err)
	}

	remaining := c.CooldownRemaining()
	if remaining < 25*time.Minute || remaining > 31*time.Minute {
		t.Errorf("冷却应解析到封禁解除时间，实际剩余 %v", remaining)
	}
}

func TestRequestRetriesOn429(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"code":-1234,"msg":"slow down"}`)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	body, err := c.Request(context.Background(), http.MethodGet, "/fapi/v1/income", nil, true, true)
	if err != nil {
		t.Fatalf("退避重试后应成功: %v", err)
	}
	if body == nil || calls != 3 {
		t.Errorf("期望第 3 次调用成功，实际调用 %d 次", calls)
	}
}

func TestRequestTimeSyncRetry(t *testing.T) {
	apiCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fapi/v1/time" {
			fmt.Fprintf(w, `{"serverTime":%d}`, time.Now().UnixMilli()+5000)
			return
		}
		apiCalls++
		if apiCalls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1021,"msg":"Timestamp outside of recvWindow"}`)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	body, err := c.Request(context.Background(), http.MethodGet, "/fapi/v2/account", nil, true, true)
	if err != nil {
		t.Fatalf("时间校准后应重试成功: %v", err)
	}
	if body == nil || apiCalls != 2 {
		t.Errorf("期望校准后第 2 次调用成功，实际 %d 次", apiCalls)
	}

	// 偏移已应用到后续时间戳
	offset := c.timestampMs() - time.Now().UnixMilli()
	if offset < 4000 || offset > 6000 {
		t.Errorf("时间偏移应约为 5000ms，实际 %d", offset)
	}
}

func TestHandleSharesCooldown(t *testing.T) {
	c := newTestClient("")
	handle := c.Handle()

	c.setCooldown(time.Now().Add(time.Minute), "测试")
	if handle.CooldownRemaining() <= 0 {
		t.Errorf("句柄应共享全局冷却状态")
	}
}

func TestGetAllOrdersPaging(t *testing.T) {
	makeOrders := func(startID int64, n int, baseTime int64) []map[string]interface{} {
		out := make([]map[string]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = map[string]interface{}{
				"symbol":      "BTCUSDT",
				"orderId":     startID + int64(i),
				"side":        "BUY",
				"positionSide": "LONG",
				"type":        "LIMIT",
				"status":      "FILLED",
				"executedQty": "1",
				"avgPrice":    "100",
				"updateTime":  baseTime + int64(i),
			}
		}
		return out
	}

	var startTimes []string
	page := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTimes = append(startTimes, r.URL.Query().Get("startTime"))
		page++
		var batch []map[string]interface{}
		if page == 1 {
			// 满页，带一条与下一页重复的订单
			batch = makeOrders(1, pageLimit, 1000)
		} else {
			batch = makeOrders(pageLimit, 10, 1000+int64(pageLimit)-1)
		}
		json.NewEncoder(w).Encode(batch)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	orders, err := c.GetAllOrders(context.Background(), "BTCUSDT", 1000, 5000, true)
	if err != nil {
		t.Fatalf("拉取订单失败: %v", err)
	}

	if page != 2 {
		t.Fatalf("满页后应续拉下一页，实际请求 %d 次", page)
	}

	// 第二页从最大 updateTime+1 开始
	wantSecond := strconv.FormatInt(1000+int64(pageLimit)-1+1, 10)
	if startTimes[1] != wantSecond {
		t.Errorf("第二页 startTime 期望 %s，实际 %s", wantSecond, startTimes[1])
	}

	// orderId 去重：第一页 1..1000，第二页 1000..1009，去重后共 1009 条
	if len(orders) != pageLimit+9 {
		t.Errorf("去重后订单数期望 %d，实际 %d", pageLimit+9, len(orders))
	}

	// 结果按 updateTime 升序
	for i := 1; i < len(orders); i++ {
		if orders[i].UpdateTime < orders[i-1].UpdateTime {
			t.Fatalf("订单应按 updateTime 升序")
		}
	}
}

func TestGetAllOrdersNoTimeFilter(t *testing.T) {
	var hasStartTime bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasStartTime = r.URL.Query().Get("startTime") != ""
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.GetAllOrders(context.Background(), "BTCUSDT", 0, 0, false); err != nil {
		t.Fatalf("拉取订单失败: %v", err)
	}
	if hasStartTime {
		t.Errorf("无时间过滤时不应携带 startTime")
	}
}

func TestGetIncomeHistoryPaging(t *testing.T) {
	page := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		var batch []map[string]interface{}
		n := 5
		if page == 1 {
			n = pageLimit
		}
		for i := 0; i < n; i++ {
			batch = append(batch, map[string]interface{}{
				"symbol":     "BTCUSDT",
				"incomeType": "COMMISSION",
				"income":     "-0.1",
				"asset":      "USDT",
				"time":       int64(page*10000 + i),
				"tranId":     int64(page*100000 + i),
			})
		}
		json.NewEncoder(w).Encode(batch)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	records, err := c.GetIncomeHistory(context.Background(), 1, 0, true)
	if err != nil {
		t.Fatalf("拉取收入流水失败: %v", err)
	}
	if page != 2 {
		t.Errorf("满页后应续拉，实际请求 %d 次", page)
	}
	if len(records) != pageLimit+5 {
		t.Errorf("流水条数期望 %d，实际 %d", pageLimit+5, len(records))
	}
}

func TestGetFirstKlineOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1700000000000,"42000.5","43000","41000","42500","123.4",1700003599999,"0",10,"0","0","0"]]`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	open, err := c.GetFirstKlineOpen(context.Background(), "BTCUSDT", 1700000000000)
	if err != nil {
		t.Fatalf("获取开盘价失败: %v", err)
	}
	if open != 42000.5 {
		t.Errorf("开盘价期望 42000.5，实际 %f", open)
	}
}
