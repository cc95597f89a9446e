package etl

import (
	"fmt"
	"math"
	"strings"

	"tradesync/matching"
	"tradesync/utils"
)

// 平仓类型标签
const (
	CloseTypeLiquidation = "爆仓"
	CloseTypeTakeProfit  = "止盈"
	CloseTypeStopLoss    = "止损"
)

// TradeRow 展示层的平仓记录（落库前的最终形态）
type TradeRow struct {
	No             int
	Date           string
	EntryTime      string
	ExitTime       string
	HoldingTime    string
	Symbol         string
	Side           string
	PriceChangePct float64
	EntryAmount    float64
	EntryPrice     float64
	ExitPrice      float64
	Qty            float64
	Fees           float64
	PnLNet         float64
	CloseType      string
	ReturnRate     string
	OpenPrice      float64
	PnLBeforeFees  float64
	EntryOrderID   int64
	ExitOrderID    string

	entryMs int64 // 合并与排序用
	exitMs  int64
}

// FormatHoldingTime 持仓时长的中文格式
func FormatHoldingTime(seconds int64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d秒", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d分%d秒", seconds/60, seconds%60)
	case seconds < 86400:
		return fmt.Sprintf("%d小时%d分", seconds/3600, (seconds%3600)/60)
	default:
		return fmt.Sprintf("%d天%d小时", seconds/86400, (seconds%86400)/3600)
	}
}

// BaseSymbol 去掉 USDT 后缀的基础币种名
func BaseSymbol(symbol string) string {
	return strings.TrimSuffix(symbol, "USDT")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// closeTypeOf 平仓类型：强平优先，其余按净盈亏分止盈止损
func closeTypeOf(isLiquidation bool, pnlNet float64) string {
	if isLiquidation {
		return CloseTypeLiquidation
	}
	if pnlNet > 0 {
		return CloseTypeTakeProfit
	}
	return CloseTypeStopLoss
}

// buildTradeRow 把一笔配对仓位转成展示行
// openPrice 为 0 表示开盘价缺失，涨跌幅记 0
func buildTradeRow(no int, p *matching.ClosedPosition, openPrice float64) TradeRow {
	holdingSeconds := (p.ExitTime - p.EntryTime) / 1000
	entryAmount := round2(p.EntryPrice * p.Qty)
	pnlNet := round2(p.PnL)

	var priceChangePct float64
	if openPrice > 0 {
		priceChangePct = (p.EntryPrice - openPrice) / openPrice
	}

	var returnRate string
	if entryAmount != 0 {
		returnRate = fmt.Sprintf("%.2f%%", pnlNet/entryAmount*100)
	} else {
		returnRate = "0.00%"
	}

	return TradeRow{
		No:             no,
		Date:           utils.FormatMsDate(p.EntryTime),
		EntryTime:      utils.FormatMs(p.EntryTime),
		ExitTime:       utils.FormatMs(p.ExitTime),
		HoldingTime:    FormatHoldingTime(holdingSeconds),
		Symbol:         BaseSymbol(p.Symbol),
		Side:           p.Side,
		PriceChangePct: priceChangePct,
		EntryAmount:    entryAmount,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      p.ExitPrice,
		Qty:            p.Qty,
		Fees:           round2(p.Fees),
		PnLNet:         pnlNet,
		CloseType:      closeTypeOf(p.IsLiquidation, pnlNet),
		ReturnRate:     returnRate,
		OpenPrice:      openPrice,
		PnLBeforeFees:  round2(p.PnLBeforeFees),
		EntryOrderID:   p.EntryOrderID,
		ExitOrderID:    fmt.Sprintf("%d", p.ExitOrderID),

		entryMs: p.EntryTime,
		exitMs:  p.ExitTime,
	}
}
