package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindDatabase, "database"},
		{KindConfig, "config"},
		{KindConnection, "connection"},
		{KindAuthentication, "authentication"},
		{KindPoolExhausted, "pool_exhausted"},
		{KindQuery, "query"},
		{KindTimeout, "timeout"},
		{Kind(99), "database"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestError_Message(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
	err := Connection("postgres", "10.0.0.1", 5432, cause)

	assert.Equal(t,
		"[connection/postgres] connection to 10.0.0.1:5432 failed: dial tcp 10.0.0.1:5432: connect: connection refused",
		err.Error())
	assert.Equal(t, "10.0.0.1", err.Host)
	assert.Equal(t, 5432, err.Port)
	assert.ErrorIs(t, err, cause)
}

func TestError_CodeInMessage(t *testing.T) {
	err := Query("postgres", "syntax error", "SELEC 1", nil).WithCode("42601").WithPosition(1)

	assert.Contains(t, err.Error(), "(code 42601)")
	assert.Equal(t, 1, err.Position)
	assert.Equal(t, "SELEC 1", err.Query)
}

func TestError_QueryTruncated(t *testing.T) {
	long := "SELECT " + strings.Repeat("a, ", 200) + "b FROM t"
	err := Query("mysql", "bad", long, nil)

	assert.Len(t, err.Query, MaxQueryLength+3)
	assert.True(t, strings.HasSuffix(err.Query, "..."))
}

func TestTimeout_CarriesDuration(t *testing.T) {
	err := Timeout("sqlite", "query", 100*time.Millisecond)

	assert.True(t, IsTimeout(err))
	assert.Equal(t, 100*time.Millisecond, err.Timeout)
	assert.Contains(t, err.Error(), "query timed out after 100ms")
}

func TestPredicates_ThroughWrapping(t *testing.T) {
	base := Authentication("mysql", "access denied", nil)
	wrapped := fmt.Errorf("connecting: %w", base)

	assert.True(t, IsAuthentication(wrapped))
	assert.False(t, IsConnection(wrapped))
	assert.Equal(t, KindAuthentication, KindOf(wrapped))

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindDatabase, KindOf(errors.New("boom")))
	assert.False(t, IsConfig(nil))
}

func TestValidationError(t *testing.T) {
	err := Invalid("target", "kill requires a session identifier")

	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(fmt.Errorf("maintenance: %w", err)))
	assert.Equal(t, "invalid target: kill requires a session identifier", err.Error())

	_, isDBErr := As(err)
	assert.False(t, isDBErr, "validation errors are not database errors")
}
