package miniostore

import (
	"context"
	"errors"
	"net"

	"github.com/minio/minio-go/v7"

	"github.com/phennig/dms-pipeline/internal/infrastructure/resilience"
)

func classifyMinioError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	switch minio.ToErrorResponse(err).Code {
	case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	case "NoSuchKey", "NoSuchBucket", "AccessDenied":
		// Permanent for this message; retrying cannot make the object appear.
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
