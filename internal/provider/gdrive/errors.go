package gdrive

import (
	"errors"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/Chapsvision-dev/remote-backup/internal/provider"
)

// classify maps Drive API and token refresh failures onto provider error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if k, ok := provider.CommonKind(err); ok {
		return provider.E(k, op, Name, err)
	}

	var ge *googleapi.Error
	if errors.As(err, &ge) {
		for _, item := range ge.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "backendError", "internalError":
				return provider.E(provider.Recoverable, op, Name, err)
			case "storageQuotaExceeded", "quotaExceeded", "dailyLimitExceeded",
				"notFound", "authError", "insufficientPermissions", "insufficientFilePermissions":
				return provider.E(provider.Fatal, op, Name, err)
			}
		}
		return provider.E(provider.KindForStatus(ge.Code), op, Name, err)
	}

	// Refresh token rejected (revoked, expired): sign in again.
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return provider.E(provider.Recoverable, op, Name, err)
		}
		return provider.E(provider.Fatal, op, Name, err)
	}

	// Anything else broke the stream mid-transfer.
	if op == "upload" || op == "download" {
		return provider.E(provider.Recoverable, op, Name, err)
	}
	return provider.E(provider.Fatal, op, Name, err)
}
