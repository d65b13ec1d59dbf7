package mysql

import "github.com/koustreak/dblens/internal/database"

func init() {
	database.Register(database.Registration{
		Type:        database.TypeMySQL,
		DisplayName: "MySQL",
		New:         New,
	})
}
