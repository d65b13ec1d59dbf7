package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/filestore"
)

const provider = "minio"

func asResponse(err error, resp *miniogo.ErrorResponse) bool {
	return errors.As(err, resp)
}

// mapError translates a MinIO SDK error into the taxonomy. Missing
// buckets and keys wrap filestore.ErrNotFound.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindTimeout, provider, msg, err)
	}

	var resp miniogo.ErrorResponse
	if asResponse(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey", "NoSuchUpload":
			return fmt.Errorf("%s: %w: %s", msg, filestore.ErrNotFound, resp.Message)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errs.Authentication(provider, msg, err)
		case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
			return errs.Wrap(errs.KindConfig, provider, msg, err)
		case "RequestTimeout", "SlowDown":
			return errs.Wrap(errs.KindTimeout, provider, msg, err)
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", msg, filestore.ErrNotFound)
		case http.StatusForbidden, http.StatusUnauthorized:
			return errs.Authentication(provider, msg, err)
		case http.StatusBadRequest:
			return errs.Wrap(errs.KindConfig, provider, msg, err)
		}
	}

	return errs.Wrap(errs.KindConnection, provider, msg, err)
}
