package sqlite

import "github.com/koustreak/dblens/internal/database"

func init() {
	database.Register(database.Registration{
		Type:        database.TypeSQLite,
		DisplayName: "SQLite",
		New:         New,
	})
}
