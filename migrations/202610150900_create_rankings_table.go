package migrations

import (
	"wikirace/models"

	"gorm.io/gorm"
)

func init() {
	register(Migration{
		Version: "202610150900",
		Name:    "create_rankings_table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.RankingEntry{})
		},
	})
}
