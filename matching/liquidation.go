package matching

import (
	"strings"
)

// IsLiquidationOrder 判断一笔平单是否为强制平仓
// 依赖交易所当前的命名约定，集中在这一个函数里，约定变化时只改这里
func IsLiquidationOrder(clientOrderID, orderType string) bool {
	id := strings.ToLower(clientOrderID)
	if strings.HasPrefix(id, "autoclose-") {
		return true
	}
	if strings.Contains(id, "adl_autoclose") {
		return true
	}
	return orderType == "LIQUIDATION"
}
