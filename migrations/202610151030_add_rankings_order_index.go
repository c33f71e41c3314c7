package migrations

import "gorm.io/gorm"

// ランキング上位の取得で使う並び順に合わせた複合インデックス
func init() {
	register(Migration{
		Version: "202610151030",
		Name:    "add_rankings_order_index",
		Up: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_rankings_order
				ON rankings (total_wins DESC, best_time_ms, first_seen)`).Error
		},
	})
}
