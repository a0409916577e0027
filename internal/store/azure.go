package store

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"idflow/internal/domain"
)

var _ domain.SharedStore = (*Azure)(nil)

// Azure is a SharedStore over an Azure Blob Storage container. Only
// account-key authentication is supported.
type Azure struct {
	client    *azblob.Client
	container string
}

// NewAzure creates an Azure blob store from shared-key credentials.
func NewAzure(accountName, accountKey, container string) (*Azure, error) {
	if accountName == "" || accountKey == "" || container == "" {
		return nil, fmt.Errorf("azure store config is incomplete")
	}

	sharedKeyCred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, sharedKeyCred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}

	return &Azure{client: client, container: container}, nil
}

func (a *Azure) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, domain.ErrNotFound("key %q not found", key)
		}
		return nil, fmt.Errorf("get az://%s/%s: %w", a.container, key, err)
	}
	defer resp.Body.Close()

	value, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read az://%s/%s: %w", a.container, key, err)
	}
	return value, nil
}

func (a *Azure) Put(ctx context.Context, key string, value []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, key, value, nil)
	if err != nil {
		return fmt.Errorf("put az://%s/%s: %w", a.container, key, err)
	}
	return nil
}

func (a *Azure) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("delete az://%s/%s: %w", a.container, key, err)
	}
	return nil
}
