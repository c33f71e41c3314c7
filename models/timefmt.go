package models

import "fmt"

// FormatTime はミリ秒を MM:SS 形式にします（例: 65000 → "01:05"）
func FormatTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSeconds := ms / 1000
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}
