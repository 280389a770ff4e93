package db

import (
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Connect opens the durable store. A mysql-style DSN (user:pass@tcp(...))
// selects the mysql driver; anything else is treated as a sqlite path.
func Connect(dsn string) (*gorm.DB, error) {
	if strings.Contains(dsn, "@tcp(") {
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
}
