package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tradesync/database"
	"tradesync/monitor"
)

// getSummary 全量统计指标
func (s *Server) getSummary(c *gin.Context) {
	trades, err := s.db.GetTrades(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": buildSummary(trades),
	})
}

// getTrades 平仓记录查询，支持按币种/方向/日期过滤和分页
func (s *Server) getTrades(c *gin.Context) {
	filter := &database.TradeFilter{
		Symbol:    c.Query("symbol"),
		Side:      c.Query("side"),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	trades, err := s.db.GetTrades(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(trades),
		"trades":  trades,
	})
}

// getOpenPositions 当前持仓
func (s *Server) getOpenPositions(c *gin.Context) {
	rows, err := s.db.GetOpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"count":     len(rows),
		"positions": rows,
	})
}

// getSyncStatus 最近运行日志和各币种水位线
func (s *Server) getSyncStatus(c *gin.Context) {
	runs, err := s.db.GetRecentSyncRuns(c.Request.Context(), 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	states, err := s.db.GetSymbolSyncStates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"recent_runs": runs,
		"watermarks":  states,
	})
}

// triggerSync 手动触发一轮同步
// mode: full / incremental / open_positions，默认 incremental
func (s *Server) triggerSync(c *gin.Context) {
	mode := c.DefaultQuery("mode", "incremental")
	switch mode {
	case "full", "incremental", "open_positions":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "不支持的 mode: " + mode})
		return
	}

	if !s.scheduler.TriggerSync(mode) {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "触发队列已满，请稍后重试"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mode": mode})
}

// getHealth 健康检查：数据库连通性 + 进程资源占用
func (s *Server) getHealth(c *gin.Context) {
	status := http.StatusOK
	dbOK := true
	if err := s.db.Ping(c.Request.Context()); err != nil {
		dbOK = false
		status = http.StatusServiceUnavailable
	}

	payload := gin.H{
		"success":  dbOK,
		"database": dbOK,
	}
	if sys, err := monitor.CollectSystemMetrics(); err == nil {
		payload["system"] = sys
	}
	c.JSON(status, payload)
}
