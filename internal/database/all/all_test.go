package all

import (
	"testing"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllBackendsRegistered(t *testing.T) {
	f := database.NewFactory()

	assert.Equal(t, []database.Type{
		database.TypeDemo,
		database.TypeMongoDB,
		database.TypeMySQL,
		database.TypePostgres,
		database.TypeSQLite,
	}, f.Types())
}

func TestRedisIsNotImplemented(t *testing.T) {
	_, err := database.NewFactory().Create(database.Descriptor{ID: "r", Type: database.TypeRedis, Host: "cache"}, database.Options{})

	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
	assert.Contains(t, err.Error(), "not implemented")
}
