package model

import (
	"gorm.io/gorm"
)

// ByApp limits lastkv rows to one worker
func ByApp(app string) func(tx *gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("`app` = ?", app)
	}
}
