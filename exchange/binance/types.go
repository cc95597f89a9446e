package binance

// RawOrder 币安 U 本位合约订单（allOrders 返回的原始成交）
type RawOrder struct {
	Symbol        string  `json:"symbol"`
	OrderID       int64   `json:"orderId"`
	ClientOrderID string  `json:"clientOrderId"`
	Side          string  `json:"side"`         // BUY / SELL
	PositionSide  string  `json:"positionSide"` // LONG / SHORT / BOTH
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	ExecutedQty   float64 `json:"executedQty,string"`
	AvgPrice      float64 `json:"avgPrice,string"`
	Time          int64   `json:"time"`
	UpdateTime    int64   `json:"updateTime"`
}

// IncomeRecord 收入流水（手续费、资金费、划转等）
type IncomeRecord struct {
	Symbol     string  `json:"symbol"`
	IncomeType string  `json:"incomeType"`
	Income     float64 `json:"income,string"`
	Asset      string  `json:"asset"`
	Info       string  `json:"info"`
	Time       int64   `json:"time"`
	TranID     int64   `json:"tranId"`
}

// PositionRisk 持仓风险（positionRisk 返回，真实净持仓的权威来源）
type PositionRisk struct {
	Symbol           string  `json:"symbol"`
	PositionAmt      float64 `json:"positionAmt,string"`
	EntryPrice       float64 `json:"entryPrice,string"`
	MarkPrice        float64 `json:"markPrice,string"`
	UnRealizedProfit float64 `json:"unRealizedProfit,string"`
	PositionSide     string  `json:"positionSide"`
}

// AccountInfo 账户概要
type AccountInfo struct {
	TotalWalletBalance    float64 `json:"totalWalletBalance,string"`
	TotalUnrealizedProfit float64 `json:"totalUnrealizedProfit,string"`
	TotalMarginBalance    float64 `json:"totalMarginBalance,string"`
	AvailableBalance      float64 `json:"availableBalance,string"`
}

// TickerPrice 最新价格
type TickerPrice struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price,string"`
}

// PremiumIndex 标记价格与资金费率
type PremiumIndex struct {
	Symbol          string  `json:"symbol"`
	MarkPrice       float64 `json:"markPrice,string"`
	LastFundingRate float64 `json:"lastFundingRate,string"`
	NextFundingTime int64   `json:"nextFundingTime"`
}

// Ticker24h 24 小时行情
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	LastPrice          float64 `json:"lastPrice,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
}
