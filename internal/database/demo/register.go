package demo

import "github.com/koustreak/dblens/internal/database"

func init() {
	database.Register(database.Registration{
		Type:        database.TypeDemo,
		DisplayName: "Demo (in-memory)",
		New:         New,
	})
}
