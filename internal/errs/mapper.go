package errs

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Native carries the details a backend could extract from its driver error
// before handing it to Classify.
type Native struct {
	Query    string
	Code     string
	Position int
}

// pattern is one row of the classification table. Rows are evaluated in
// order and the first row with a matching substring wins.
type pattern struct {
	kind     Kind
	contains []string
}

// patterns is the heuristic classification table. Driver message wording
// drifts between releases, so every entry is covered by mapper_test.go.
var patterns = []pattern{
	{KindConnection, []string{
		"econnrefused",
		"connection refused",
		"enotfound",
		"no such host",
		"getaddrinfo",
		"etimedout",
		"connect timeout",
		"dial tcp",
		"server selection",
		"network is unreachable",
		"unable to open database file",
		"connection reset",
		"broken pipe",
		"unexpected eof",
		"bad connection",
		"invalid connection",
	}},
	{KindAuthentication, []string{
		"password",
		"authentication",
		"access denied",
		"permission denied",
		"unauthorized",
	}},
	{KindTimeout, []string{
		"timeout",
		"timed out",
		"canceling statement",
		"deadline exceeded",
	}},
	{KindQuery, []string{
		"syntax error",
		"column",
		"relation",
		"no such table",
	}},
	{KindPoolExhausted, []string{
		"pool",
		"too many connections",
	}},
}

// match returns the kind of the first pattern row matching msg.
func match(msg string) (Kind, bool) {
	lower := strings.ToLower(msg)
	for _, p := range patterns {
		for _, s := range p.contains {
			if strings.Contains(lower, s) {
				return p.kind, true
			}
		}
	}
	return KindDatabase, false
}

// Classify turns a native driver error into an *Error. Errors already in the
// taxonomy are returned as they are. Returns nil when err is nil.
func Classify(err error, provider string, n Native) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, provider, "operation timed out", err).WithQuery(n.Query).WithCode(n.Code)
	}

	msg := err.Error()
	kind, _ := match(msg)

	out := Wrap(kind, provider, msg, err).WithQuery(n.Query).WithCode(n.Code)
	if kind == KindQuery && n.Position > 0 {
		out.Position = n.Position
	}
	return out
}

// Map is Classify for callers that only know the query text.
func Map(err error, provider, query string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Classify(err, provider, Native{Query: query})
}

// transportHints flag non-taxonomy errors that look like a low-level
// transport failure.
var transportHints = []string{
	"fetch",
	"connection reset",
	"broken pipe",
	"unexpected eof",
	"network",
}

// IsRetryable reports whether retrying err could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if e, ok := As(err); ok {
		switch e.Kind {
		case KindConnection, KindTimeout, KindPoolExhausted:
			return true
		default:
			// config, authentication and query errors (positioned or not)
			// fail the same way on every attempt.
			return false
		}
	}

	if IsValidation(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, h := range transportHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}
