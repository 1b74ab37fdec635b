package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"assist_server/core/port/out"
	"assist_server/pkg/apperr"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	azblobblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type AzureConfig struct {
	ConnectionString string
	Container        string
	Prefix           string
	HTTPClient       *http.Client
}

// AzureStore keeps blobs in one Azure Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
	prefix    string
}

var _ out.BlobStore = (*AzureStore)(nil)

func NewAzureStore(cfg AzureConfig) (*AzureStore, error) {
	var opts *azblob.ClientOptions
	if cfg.HTTPClient != nil {
		opts = &azblob.ClientOptions{ClientOptions: azcore.ClientOptions{Transport: cfg.HTTPClient}}
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
	if err != nil {
		return nil, apperr.ConfigError("azure storage: " + err.Error())
	}
	return &AzureStore{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

// EnsureContainer creates the container if it is missing.
func (s *AzureStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return apperr.StorageError("create container", err)
	}
	return nil
}

func (s *AzureStore) name(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return withPrefix(s.prefix, key), nil
}

func (s *AzureStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	name, err := s.name(key)
	if err != nil {
		return err
	}
	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &azblobblob.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, name, data, opts); err != nil {
		return apperr.StorageError("upload blob", err)
	}
	return nil
}

func (s *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	name, err := s.name(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, apperr.StorageError("download blob", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, apperr.StorageError("read blob", err)
	}
	return buf.Bytes(), nil
}

func (s *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	name, err := s.name(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(name).GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.StorageError("stat blob", err)
	}
	return true, nil
}

func (s *AzureStore) Delete(ctx context.Context, key string) error {
	name, err := s.name(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteBlob(ctx, s.container, name, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return apperr.StorageError("delete blob", err)
	}
	return nil
}
