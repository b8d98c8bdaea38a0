package uploader

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"sitesync/internal/config"
)

// Azure uploads block blobs to one container.
type Azure struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzure authenticates with the connection string when present, otherwise
// with the default Azure credential chain against AccountURL.
func NewAzure(cfg config.Azure) (*Azure, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure container is required")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob client from connection string: %w", err)
		}
	case cfg.AccountURL != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", credErr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob client: %w", err)
		}
	default:
		return nil, errors.New("azure requires connection_string or account_url")
	}

	return &Azure{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

func (u *Azure) Upload(ctx context.Context, payload []byte, destination string) (string, error) {
	dest, err := CleanDestination(destination)
	if err != nil {
		return "", err
	}
	blobName := joinKey(u.prefix, dest)

	_, err = u.client.UploadBuffer(ctx, u.container, blobName, payload, &azblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"writer": to.Ptr("sitesync"),
		},
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(http.DetectContentType(payload)),
		},
	})
	if err != nil {
		return "", classifyAzureError(fmt.Errorf("failed to upload blob %s/%s: %w", u.container, blobName, err))
	}

	return u.client.ServiceClient().NewContainerClient(u.container).NewBlobClient(blobName).URL(), nil
}

func classifyAzureError(err error) error {
	if bloberror.HasCode(err,
		bloberror.ContainerNotFound,
		bloberror.ContainerBeingDeleted,
		bloberror.ContainerDisabled,
		bloberror.AuthorizationFailure,
		bloberror.AuthenticationFailed,
		bloberror.InvalidResourceName,
		bloberror.RequestBodyTooLarge,
	) {
		return Permanent(err)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return Permanent(err)
		}
	}
	return err
}
