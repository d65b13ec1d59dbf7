package mongodb

import (
	"errors"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/koustreak/dblens/internal/errs"
)

const provider = "mongodb"

// Server error codes
// Full list: https://www.mongodb.com/docs/manual/reference/error-codes/
const (
	codeBadValue            = 2
	codeFailedToParse       = 9
	codeUnauthorized        = 13
	codeTypeMismatch        = 14
	codeAuthFailed          = 18
	codeNamespaceNotFound   = 26
	codeIndexNotFound       = 27
	codeMaxTimeMSExpired    = 50
	codeCommandNotFound     = 59
	codeInvalidOptions      = 72
	codeCommandNotSupported = 115
	codeInvalidNamespace    = 73
	codeLocation            = 40324
	codeDuplicateKey        = 11000
)

// mapError converts a driver error into the taxonomy. Server codes are
// checked first, then the driver's network and timeout predicates.
func mapError(err error, query string) error {
	if err == nil {
		return nil
	}
	if _, ok := errs.As(err); ok {
		return err
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		code := strconv.Itoa(int(ce.Code))
		switch ce.Code {
		case codeAuthFailed, codeUnauthorized:
			return errs.Authentication(provider, ce.Message, err).WithCode(code)
		case codeMaxTimeMSExpired:
			return errs.Wrap(errs.KindTimeout, provider, ce.Message, err).WithCode(code).WithQuery(query)
		case codeBadValue, codeFailedToParse, codeTypeMismatch, codeNamespaceNotFound,
			codeIndexNotFound, codeCommandNotFound, codeInvalidOptions, codeInvalidNamespace, codeLocation,
			codeDuplicateKey:
			return errs.Query(provider, ce.Message, query, err).WithCode(code)
		}
		if ce.HasErrorLabel("NetworkError") {
			return errs.Wrap(errs.KindConnection, provider, ce.Message, err).WithCode(code)
		}
		return errs.Classify(err, provider, errs.Native{Query: query, Code: code})
	}

	switch {
	case mongo.IsDuplicateKeyError(err):
		return errs.Query(provider, err.Error(), query, err).WithCode(strconv.Itoa(codeDuplicateKey))
	case mongo.IsTimeout(err):
		return errs.Wrap(errs.KindTimeout, provider, err.Error(), err).WithQuery(query)
	case mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		return errs.Wrap(errs.KindConnection, provider, err.Error(), err)
	}
	return errs.Classify(err, provider, errs.Native{Query: query})
}

// unsupported reports errors that mean a metric source is unavailable on
// this deployment: profiling off, a command missing or not permitted.
func unsupported(err error) bool {
	var ce mongo.CommandError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case codeUnauthorized, codeNamespaceNotFound, codeCommandNotFound, codeCommandNotSupported, codeInvalidOptions:
		return true
	}
	return false
}
