package migrations

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SchemaMigration は適用済みのマイグレーションを記録するテーブルです
type SchemaMigration struct {
	Version   string `gorm:"primaryKey"`
	AppliedAt int64  `gorm:"autoCreateTime:milli"`
}

// Migration は1つのスキーマ変更です。Version はファイル名の日時と同じ形式
type Migration struct {
	Version string
	Name    string
	Up      func(tx *gorm.DB) error
}

var registry []Migration

func register(m Migration) {
	registry = append(registry, m)
}

// All は登録済みのマイグレーションをバージョン順で返します
func All() []Migration {
	out := append([]Migration(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Migrate は未適用のマイグレーションを順番に適用します。
// 各マイグレーションは記録と同じトランザクションで実行されるので、途中で失敗しても二重適用されません。
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("schema_migrations の作成に失敗しました: %w", err)
	}

	var applied []string
	if err := db.Model(&SchemaMigration{}).Pluck("version", &applied).Error; err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range All() {
		if done[m.Version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{Version: m.Version}).Error
		})
		if err != nil {
			return fmt.Errorf("マイグレーション %s_%s に失敗しました: %w", m.Version, m.Name, err)
		}
		logger.Info("マイグレーションを適用しました", zap.String("version", m.Version), zap.String("name", m.Name))
	}
	return nil
}
