package azure

import (
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/Chapsvision-dev/remote-backup/internal/provider"
)

// classify maps Azure SDK failures onto provider error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if k, ok := provider.CommonKind(err); ok {
		return provider.E(k, op, Name, err)
	}
	switch {
	case bloberror.HasCode(err,
		bloberror.ServerBusy,
		bloberror.OperationTimedOut,
		bloberror.InternalError):
		return provider.E(provider.Recoverable, op, Name, err)
	case bloberror.HasCode(err,
		bloberror.ContainerNotFound,
		bloberror.BlobNotFound,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions,
		bloberror.AccountIsDisabled):
		return provider.E(provider.Fatal, op, Name, err)
	}
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		return provider.E(provider.KindForStatus(re.StatusCode), op, Name, err)
	}
	// Anything else broke the stream mid-transfer.
	if op == "upload" || op == "download" {
		return provider.E(provider.Recoverable, op, Name, err)
	}
	return provider.E(provider.Fatal, op, Name, err)
}
