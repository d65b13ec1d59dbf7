package mongodb

import "github.com/koustreak/dblens/internal/database"

func init() {
	database.Register(database.Registration{
		Type:        database.TypeMongoDB,
		DisplayName: "MongoDB",
		New:         New,
	})
}
