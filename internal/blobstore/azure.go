package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/i474232898/household-energy-dashboard/internal/household"
)

// AzureAPI is the subset of the blob client the store needs.
type AzureAPI interface {
	NewListBlobsFlatPager(containerName string, o *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse]
	DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureStore reads sensor objects from an Azure Blob Storage container.
type AzureStore struct {
	client    AzureAPI
	container string
	prefix    string
}

// NewAzureStore connects with a storage account connection string.
func NewAzureStore(connectionString, container, prefix string) (*AzureStore, error) {
	if connectionString == "" {
		return nil, errors.New("azure connection string is not configured")
	}
	if container == "" {
		return nil, errors.New("azure container name is not configured")
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return NewAzureStoreFromClient(client, container, prefix), nil
}

// NewAzureStoreFromClient wraps an existing client.
func NewAzureStoreFromClient(client AzureAPI, container, prefix string) *AzureStore {
	return &AzureStore{
		client:    client,
		container: container,
		prefix:    prefix,
	}
}

func (s *AzureStore) Name() string {
	return "azure:" + s.container
}

// List returns every blob name in the container, following all pages.
func (s *AzureStore) List(ctx context.Context) ([]string, error) {
	var opts *azblob.ListBlobsFlatOptions
	if s.prefix != "" {
		opts = &azblob.ListBlobsFlatOptions{Prefix: &s.prefix}
	}

	var names []string
	pager := s.client.NewListBlobsFlatPager(s.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item != nil && item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

func (s *AzureStore) Download(ctx context.Context, objectID string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, objectID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

var _ household.ObjectStore = (*AzureStore)(nil)
