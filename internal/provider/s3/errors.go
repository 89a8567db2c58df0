package s3

import (
	"errors"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/Chapsvision-dev/remote-backup/internal/provider"
)

// classify maps S3 SDK failures onto provider error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if k, ok := provider.CommonKind(err); ok {
		return provider.E(k, op, Name, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling":
			return provider.E(provider.Recoverable, op, Name, err)
		case "NoSuchKey", "NoSuchBucket", "NotFound", "AccessDenied", "InvalidAccessKeyId",
			"SignatureDoesNotMatch", "ExpiredToken", "QuotaExceeded":
			return provider.E(provider.Fatal, op, Name, err)
		}
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return provider.E(provider.KindForStatus(re.HTTPStatusCode()), op, Name, err)
	}
	// Anything else broke the stream mid-transfer.
	if op == "upload" || op == "download" {
		return provider.E(provider.Recoverable, op, Name, err)
	}
	return provider.E(provider.Fatal, op, Name, err)
}
