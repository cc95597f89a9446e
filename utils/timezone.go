package utils

import (
	"time"
)

var (
	// GlobalLocation 全局配置的时区（显示时区，默认东8区）
	GlobalLocation *time.Location
)

func init() {
	// 默认加载东8区时区
	SetLocation("Asia/Shanghai")
}

// SetLocation 设置全局时区
func SetLocation(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// 如果加载失败，尝试常见的时区格式
		if name == "UTC+8" || name == "Asia/Shanghai" {
			GlobalLocation = time.FixedZone("UTC+8", 8*60*60)
			return nil
		}
		// 如果还是失败，保留原有时区或默认值
		if GlobalLocation == nil {
			GlobalLocation = time.Local
		}
		return err
	}
	GlobalLocation = loc
	return nil
}

// ToConfiguredTimezone 将时间转换为配置的时区
func ToConfiguredTimezone(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(GlobalLocation)
}

// MsToTime 毫秒时间戳转换为配置时区的时间
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms).In(GlobalLocation)
}

// FormatMs 毫秒时间戳格式化为 "2006-01-02 15:04:05"（配置时区）
func FormatMs(ms int64) string {
	return MsToTime(ms).Format("2006-01-02 15:04:05")
}

// FormatMsDate 毫秒时间戳格式化为 "20060102"（配置时区）
func FormatMsDate(ms int64) string {
	return MsToTime(ms).Format("20060102")
}

// ParseLocalTime 解析 "2006-01-02 15:04:05" 格式的时间（配置时区）
func ParseLocalTime(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04:05", s, GlobalLocation)
}

// UTCDayStartMs 返回该毫秒时间戳所在 UTC 自然日的起点（毫秒）
func UTCDayStartMs(ms int64) int64 {
	t := time.UnixMilli(ms).UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.UnixMilli()
}
