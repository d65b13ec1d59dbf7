package sqlite

import (
	"errors"
	"strconv"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/koustreak/dblens/internal/errs"
)

const provider = "sqlite"

// mapError converts a modernc.org/sqlite error into the taxonomy using the
// primary result code. Extended codes keep the primary code in the low byte.
func mapError(err error, query string) error {
	if err == nil {
		return nil
	}
	if _, ok := errs.As(err); ok {
		return err
	}

	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return errs.Classify(err, provider, errs.Native{Query: query})
	}

	code := strconv.Itoa(se.Code())
	msg := se.Error()
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return errs.Wrap(errs.KindTimeout, provider, msg, err).WithCode(code).WithQuery(query)
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
		return errs.Wrap(errs.KindConnection, provider, msg, err).WithCode(code)
	case sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM:
		return errs.Authentication(provider, msg, err).WithCode(code)
	case sqlite3.SQLITE_ERROR, sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH,
		sqlite3.SQLITE_RANGE, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_TOOBIG:
		return errs.Query(provider, msg, query, err).WithCode(code)
	}
	return errs.Classify(err, provider, errs.Native{Query: query, Code: code})
}
