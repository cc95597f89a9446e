package matching

import (
	"sort"
)

// 为了保持撮合逻辑纯净，这里定义自己的输入类型，由 ETL 层从接口订单转换
const (
	SideLong  = "LONG"
	SideShort = "SHORT"

	// 数量比较容差，避免浮点残渣留下幽灵仓位
	QtyEpsilon = 1e-4
)

// Fill 一笔已成交订单
type Fill struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	Side          string // BUY / SELL
	PositionSide  string // LONG / SHORT / BOTH
	OrderType     string
	Price         float64 // 成交均价
	Qty           float64 // 成交数量
	Time          int64   // updateTime（毫秒）
}

// OpenLot 一手未平的开仓（FIFO 队列成员）
type OpenLot struct {
	Price   float64
	Qty     float64
	Time    int64
	OrderID int64
}

// ClosedPosition 一笔配对完成的开平仓
type ClosedPosition struct {
	Symbol        string
	Side          string // LONG / SHORT
	EntryPrice    float64
	ExitPrice     float64
	EntryTime     int64
	ExitTime      int64
	Qty           float64
	PnLBeforeFees float64
	Weight        float64 // 数量 × 持仓时长，仅用于手续费分摊
	IsLiquidation bool
	EntryOrderID  int64
	ExitOrderID   int64
	Fees          float64 // 分摊后填入
	PnL           float64 // PnLBeforeFees + Fees
}

// Remainder 撮合结束后两侧未平的 FIFO 队列
type Remainder struct {
	Long  []OpenLot
	Short []OpenLot
}

// fillRole 订单在某一侧的角色
type fillRole int

const (
	roleNone fillRole = iota
	roleLongEntry
	roleLongExit
	roleShortEntry
	roleShortExit
)

// classifyFill 按（持仓方向, 买卖方向）组合划分开平仓角色
// 单向模式（BOTH）按多头处理
func classifyFill(f *Fill) fillRole {
	switch {
	case (f.PositionSide == "LONG" || f.PositionSide == "BOTH") && f.Side == "BUY":
		return roleLongEntry
	case (f.PositionSide == "LONG" || f.PositionSide == "BOTH") && f.Side == "SELL":
		return roleLongExit
	case f.PositionSide == "SHORT" && f.Side == "SELL":
		return roleShortEntry
	case f.PositionSide == "SHORT" && f.Side == "BUY":
		return roleShortExit
	default:
		return roleNone
	}
}

// SortFills 按成交时间升序排序（FIFO 正确性依赖这个顺序）
func SortFills(fills []Fill) {
	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].Time < fills[j].Time
	})
}

// Match 把一个币种的成交序列配对成开平仓
// 平仓按先开先平消耗队列；没有可平仓位的平单直接丢弃（不产生负仓位）
// 返回配对结果和两侧未平的队列，手续费分摊由 AllocateFees 完成
func Match(fills []Fill) ([]*ClosedPosition, *Remainder) {
	SortFills(fills)

	var positions []*ClosedPosition
	var longQueue, shortQueue []OpenLot

	for i := range fills {
		f := &fills[i]
		if f.Qty <= QtyEpsilon {
			continue
		}

		switch classifyFill(f) {
		case roleLongEntry:
			longQueue = append(longQueue, OpenLot{
				Price: f.Price, Qty: f.Qty, Time: f.Time, OrderID: f.OrderID,
			})
		case roleShortEntry:
			shortQueue = append(shortQueue, OpenLot{
				Price: f.Price, Qty: f.Qty, Time: f.Time, OrderID: f.OrderID,
			})
		case roleLongExit:
			positions = append(positions, consumeExit(&longQueue, f, SideLong)...)
		case roleShortExit:
			positions = append(positions, consumeExit(&shortQueue, f, SideShort)...)
		}
	}

	return positions, &Remainder{Long: longQueue, Short: shortQueue}
}

// consumeExit 用一笔平单从队首开始消耗开仓队列
func consumeExit(queue *[]OpenLot, exit *Fill, side string) []*ClosedPosition {
	var closed []*ClosedPosition
	remaining := exit.Qty
	isLiq := IsLiquidationOrder(exit.ClientOrderID, exit.OrderType)

	for remaining > QtyEpsilon && len(*queue) > 0 {
		lot := &(*queue)[0]

		closeQty := remaining
		if lot.Qty < closeQty {
			closeQty = lot.Qty
		}

		var pnl float64
		if side == SideLong {
			pnl = (exit.Price - lot.Price) * closeQty
		} else {
			pnl = (lot.Price - exit.Price) * closeQty
		}

		closed = append(closed, &ClosedPosition{
			Symbol:        exit.Symbol,
			Side:          side,
			EntryPrice:    lot.Price,
			ExitPrice:     exit.Price,
			EntryTime:     lot.Time,
			ExitTime:      exit.Time,
			Qty:           closeQty,
			PnLBeforeFees: pnl,
			Weight:        closeQty * float64(exit.Time-lot.Time),
			IsLiquidation: isLiq,
			EntryOrderID:  lot.OrderID,
			ExitOrderID:   exit.OrderID,
		})

		lot.Qty -= closeQty
		remaining -= closeQty
		if lot.Qty <= QtyEpsilon {
			*queue = (*queue)[1:]
		}
	}

	return closed
}

// AllocateFees 把批次总手续费按时间数量权重分摊到每笔仓位
// 权重全为零时平均分摊；fees 为带符号值（通常为负）
func AllocateFees(positions []*ClosedPosition, totalFees float64) {
	if len(positions) == 0 {
		return
	}

	var totalWeight float64
	for _, p := range positions {
		totalWeight += p.Weight
	}

	for _, p := range positions {
		if totalWeight > 0 {
			p.Fees = totalFees * (p.Weight / totalWeight)
		} else {
			p.Fees = totalFees / float64(len(positions))
		}
		p.PnL = p.PnLBeforeFees + p.Fees
	}
}
