package postgres

import "github.com/koustreak/dblens/internal/database"

func init() {
	database.Register(database.Registration{
		Type:        database.TypePostgres,
		DisplayName: "PostgreSQL",
		New:         New,
	})
}
