package mysql

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/dblens/internal/errs"
)

const provider = "mysql"

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied     = 1044
	errAccessDenied       = 1045
	errAccessDeniedNoPass = 1698
	errTooManyConnections = 1040
	errTooManyUserConns   = 1203
	errUnknownDatabase    = 1049
	errLockWaitTimeout    = 1205
	errQueryTimeout       = 3024
	errTableAccessDenied  = 1142
	errNoSuchTable        = 1146
	errParseError         = 1064
	errBadFieldError      = 1054
	errDuplicateEntry     = 1062
	errNoReferencedRow    = 1452
	errRowIsReferenced    = 1451
	errBadNull            = 1048
	errUnknownSystemVar   = 1193
	errPerfSchemaDisabled = 1683
)

// mapError converts a MySQL driver error into the taxonomy. Server errors
// are classified by error number, the rest through the pattern table.
func mapError(err error, query string) error {
	if err == nil {
		return nil
	}
	if _, ok := errs.As(err); ok {
		return err
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		code := strconv.Itoa(int(myErr.Number))
		switch myErr.Number {
		case errAccessDenied, errDBAccessDenied, errAccessDeniedNoPass:
			return errs.Authentication(provider, myErr.Message, err).WithCode(code)
		case errTooManyConnections, errTooManyUserConns:
			return errs.PoolExhausted(provider, myErr.Message, err).WithCode(code)
		case errUnknownDatabase:
			return errs.Wrap(errs.KindConfig, provider, myErr.Message, err).WithCode(code)
		case errLockWaitTimeout, errQueryTimeout:
			return errs.Wrap(errs.KindTimeout, provider, myErr.Message, err).WithCode(code).WithQuery(query)
		case errParseError, errBadFieldError, errNoSuchTable, errDuplicateEntry,
			errNoReferencedRow, errRowIsReferenced, errBadNull:
			return errs.Query(provider, myErr.Message, query, err).WithCode(code)
		}
		return errs.Classify(err, provider, errs.Native{Query: query, Code: code})
	}

	if errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.KindConnection, provider, err.Error(), err)
	}

	return errs.Classify(err, provider, errs.Native{Query: query})
}

// unsupported reports errors that mean a metric source is unavailable:
// performance_schema disabled, a missing table or missing privileges.
func unsupported(err error) bool {
	var myErr *gomysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case errTableAccessDenied, errNoSuchTable, errUnknownSystemVar, errPerfSchemaDisabled, errDBAccessDenied:
		return true
	}
	return false
}
