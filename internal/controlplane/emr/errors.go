package emr

import (
	"context"
	"errors"
	"fmt"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/emrcontainers/types"
	"github.com/aws/smithy-go"

	"emrjobs/internal/apperrors"
)

// translate maps an SDK error onto the apperrors taxonomy. Classification
// drives retry behavior, so anything ambiguous lands in a transient class
// and the retry budget bounds the damage. Fatal classes are reserved for
// errors that provably cannot succeed on retry.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Unavailable(op, err)
	}

	var notFoundErr *types.ResourceNotFoundException
	if errors.As(err, &notFoundErr) {
		return notFound(op, err)
	}
	var validationErr *types.ValidationException
	if errors.As(err, &validationErr) {
		return apperrors.InvalidRequest(op, err)
	}
	var internalErr *types.InternalServerException
	if errors.As(err, &internalErr) {
		return apperrors.Unavailable(op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "RequestThrottledException", "EKSRequestThrottledException",
			"ThrottlingException", "TooManyRequestsException", "Throttling":
			return apperrors.Throttled(op, err)
		case "AccessDeniedException", "UnrecognizedClientException",
			"InvalidSignatureException", "ExpiredTokenException",
			"MissingAuthenticationToken":
			return apperrors.Unauthorized(op, err)
		case "ServiceUnavailableException", "InternalFailure":
			return apperrors.Unavailable(op, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		switch {
		case status == 429:
			return apperrors.Throttled(op, err)
		case status == 401 || status == 403:
			return apperrors.Unauthorized(op, err)
		case status == 404:
			return notFound(op, err)
		case status >= 500:
			return apperrors.Unavailable(op, err)
		case status >= 400:
			return apperrors.InvalidRequest(op, err)
		}
	}

	// Transport-level failures (refused connections, DNS, resets) carry no
	// API error shape and are worth retrying.
	return apperrors.Unavailable(op, err)
}

func notFound(op string, cause error) error {
	return &apperrors.Error{
		Sentinel: apperrors.ErrNotFound,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
