package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBlobs serves blob names in fixed pages and in-memory bodies.
type fakeBlobs struct {
	pages    [][]string
	objects  map[string]string
	listErr  error
	prefixes []string
}

func (f *fakeBlobs) NewListBlobsFlatPager(containerName string, o *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse] {
	if o != nil && o.Prefix != nil {
		f.prefixes = append(f.prefixes, *o.Prefix)
	}
	next := 0
	return runtime.NewPager(runtime.PagingHandler[azblob.ListBlobsFlatResponse]{
		More: func(page azblob.ListBlobsFlatResponse) bool {
			return page.NextMarker != nil && *page.NextMarker != ""
		},
		Fetcher: func(ctx context.Context, _ *azblob.ListBlobsFlatResponse) (azblob.ListBlobsFlatResponse, error) {
			var page azblob.ListBlobsFlatResponse
			if containerName != "readings" || f.listErr != nil {
				return page, errors.Join(errors.New("ContainerNotFound"), f.listErr)
			}

			items := make([]*container.BlobItem, 0, len(f.pages[next]))
			for _, name := range f.pages[next] {
				items = append(items, &container.BlobItem{Name: to.Ptr(name)})
			}
			page.Segment = &container.BlobFlatListSegment{BlobItems: items}

			next++
			if next < len(f.pages) {
				page.NextMarker = to.Ptr("marker")
			}
			return page, nil
		},
	})
}

func (f *fakeBlobs) DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	var resp azblob.DownloadStreamResponse
	body, ok := f.objects[blobName]
	if !ok {
		return resp, errors.New("BlobNotFound")
	}
	resp.Body = io.NopCloser(bytes.NewReader([]byte(body)))
	return resp, nil
}

func TestAzureStore_ListFollowsPages(t *testing.T) {
	fake := &fakeBlobs{pages: [][]string{
		{"house1/2024-01-01T0000.json", "house1/2024-01-01T0005.json"},
		{},
		{"house2/2024-01-01T0000.json"},
	}}
	s := NewAzureStoreFromClient(fake, "readings", "house")

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"house1/2024-01-01T0000.json",
		"house1/2024-01-01T0005.json",
		"house2/2024-01-01T0000.json",
	}, names)
	assert.Equal(t, []string{"house"}, fake.prefixes)
}

func TestAzureStore_ListError(t *testing.T) {
	fake := &fakeBlobs{pages: [][]string{{"a.json"}}, listErr: errors.New("403 AuthorizationFailure")}
	s := NewAzureStoreFromClient(fake, "readings", "")

	_, err := s.List(context.Background())
	assert.ErrorContains(t, err, "AuthorizationFailure")
	assert.Empty(t, fake.prefixes)
}

func TestAzureStore_Download(t *testing.T) {
	fake := &fakeBlobs{objects: map[string]string{
		"house1/a.json": `{"sensor":"house1","data":{"Time":"2024-01-01T00:00:00"}}`,
	}}
	s := NewAzureStoreFromClient(fake, "readings", "")

	body, err := s.Download(context.Background(), "house1/a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sensor":"house1","data":{"Time":"2024-01-01T00:00:00"}}`, string(body))

	_, err = s.Download(context.Background(), "missing.json")
	assert.Error(t, err)
}

func TestAzureStore_WithResilience(t *testing.T) {
	fake := &fakeBlobs{
		pages: [][]string{{"house1/a.json"}, {"house2/b.json"}},
		objects: map[string]string{
			"house1/a.json": `{"data":{"Time":"2024-01-01T00:00:00","Appliance1":120}}`,
			"house2/b.json": `{"sensor":"house2","data":{"Time":"2024-01-01T00:05:00","Appliance6":2000}}`,
		},
	}
	objects := WithResilience(NewAzureStoreFromClient(fake, "readings", ""), fastBackoff, DefaultBreaker)

	ids, err := objects.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 2)
	for _, id := range ids {
		body, err := objects.Download(context.Background(), id)
		require.NoError(t, err)
		assert.NotEmpty(t, body)
	}
	assert.Equal(t, "azure:readings", objects.Name())
}
