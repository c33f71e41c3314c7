package ranking

import (
	"context"
	"fmt"

	"wikirace/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresRepository は rankings テーブルに記録を保存します。
// マージは INSERT ... ON CONFLICT DO UPDATE 一文で行うため、データベース側でアトミックです。
type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// improved は今回の結果で最良タイムが更新される場合だけ excluded 側の値を採ります
func improved(column string) clause.Expr {
	return gorm.Expr(fmt.Sprintf(
		"CASE WHEN rankings.best_time_ms = 0 OR excluded.best_time_ms < rankings.best_time_ms THEN excluded.%[1]s ELSE rankings.%[1]s END",
		column))
}

func (r *PostgresRepository) Record(ctx context.Context, result Result) (models.RankingEntry, error) {
	entry := Merge(nil, result)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "nick_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				// SET の右辺は全て更新前の行を参照する
				"best_time_str":   improved("best_time_str"),
				"best_game_theme": improved("best_game_theme"),
				"best_time_ms":    gorm.Expr("CASE WHEN rankings.best_time_ms = 0 THEN excluded.best_time_ms ELSE LEAST(rankings.best_time_ms, excluded.best_time_ms) END"),
				"fewest_clicks":   gorm.Expr("LEAST(rankings.fewest_clicks, excluded.fewest_clicks)"),
				"total_wins":      gorm.Expr("rankings.total_wins + excluded.total_wins"),
				"total_games":     gorm.Expr("rankings.total_games + 1"),
				"first_seen":      gorm.Expr("LEAST(rankings.first_seen, excluded.first_seen)"),
				"last_update":     gorm.Expr("GREATEST(rankings.last_update, excluded.last_update)"),
			}),
		}).Create(&entry)
		if upsert.Error != nil {
			return upsert.Error
		}
		var stored models.RankingEntry
		if err := tx.Where("nick_key = ?", entry.NickKey).First(&stored).Error; err != nil {
			return err
		}
		entry = stored
		return nil
	})
	if err != nil {
		return models.RankingEntry{}, fmt.Errorf("ranking: upsert %s: %w", entry.NickKey, err)
	}
	return entry, nil
}

func (r *PostgresRepository) Top(ctx context.Context, limit int) ([]models.RankingEntry, error) {
	var entries []models.RankingEntry
	err := r.db.WithContext(ctx).
		Order("total_wins DESC").
		Order("CASE WHEN best_time_ms = 0 THEN 1 ELSE 0 END").
		Order("best_time_ms ASC").
		Order("first_seen ASC").
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("ranking: top %d: %w", limit, err)
	}
	return entries, nil
}
