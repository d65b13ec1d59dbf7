package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/dblens/internal/errs"
)

const provider = "postgres"

// PostgreSQL SQLSTATE codes that decide the kind on their own.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInvalidAuthorization = "28000"
	pgErrInvalidPassword      = "28P01"
	pgErrTooManyConnections   = "53300"
	pgErrQueryCanceled        = "57014"
	pgErrUndefinedTable       = "42P01"
	pgErrUndefinedFunction    = "42883"
	pgErrUndefinedObject      = "42704"
	pgErrInsufficientPriv     = "42501"
	pgErrNotInPrerequisite    = "55000"
)

// mapError converts a pgx error into the taxonomy. Server errors are
// classified by SQLSTATE; anything else goes through the shared pattern
// table.
func mapError(err error, query string) error {
	if err == nil {
		return nil
	}
	if _, ok := errs.As(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		native := errs.Native{Query: query, Code: pgErr.Code, Position: int(pgErr.Position)}
		switch {
		case pgErr.Code == pgErrInvalidAuthorization || pgErr.Code == pgErrInvalidPassword:
			return errs.Authentication(provider, pgErr.Message, err).WithCode(pgErr.Code)
		case pgErr.Code == pgErrTooManyConnections:
			return errs.PoolExhausted(provider, pgErr.Message, err).WithCode(pgErr.Code)
		case pgErr.Code == pgErrQueryCanceled:
			return errs.Wrap(errs.KindTimeout, provider, pgErr.Message, err).WithCode(pgErr.Code).WithQuery(query)
		case strings.HasPrefix(pgErr.Code, "08"):
			return errs.Wrap(errs.KindConnection, provider, pgErr.Message, err).WithCode(pgErr.Code)
		case strings.HasPrefix(pgErr.Code, "42"), strings.HasPrefix(pgErr.Code, "22"):
			out := errs.Query(provider, pgErr.Message, query, err).WithCode(pgErr.Code)
			if pgErr.Position > 0 {
				out.WithPosition(int(pgErr.Position))
			}
			return out
		}
		return errs.Classify(err, provider, native)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		if e := errs.Classify(err, provider, errs.Native{}); e.Kind == errs.KindAuthentication || e.Kind == errs.KindTimeout {
			return e
		}
		return errs.Wrap(errs.KindConnection, provider, err.Error(), err)
	}

	return errs.Classify(err, provider, errs.Native{Query: query})
}

// unsupported reports server errors that mean "this metric is not
// available here": a missing extension or view, or missing privileges.
// Monitoring treats them as empty results.
func unsupported(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgErrUndefinedTable, pgErrUndefinedFunction, pgErrUndefinedObject, pgErrInsufficientPriv, pgErrNotInPrerequisite:
		return true
	}
	return false
}
