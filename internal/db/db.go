// Package db owns the gorm connection and schema migration. An empty DSN
// falls back to a local sqlite file so the server runs without a MySQL
// instance during development.
package db

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	gormsqlite "github.com/glebarez/sqlite"

	"github.com/kryote/support-chat/internal/chat"
	"github.com/kryote/support-chat/internal/models"
)

func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return gorm.Open(gormsqlite.Open("support-chat.db"), &gorm.Config{})
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Message{},
		&chat.TurnJob{},
	)
}
