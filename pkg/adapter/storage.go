package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage is the interface for archived conversation transcripts
type Storage interface {
	// Put returns a writer to save an object to storage
	Put(ctx context.Context, key, contentType string) (io.WriteCloser, error)
	// Get loads an object from storage
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

// StorageOption is a functional option for Storage client
type StorageOption func(*storageClient)

// WithStoragePrefix prepends prefix to every object key
func WithStoragePrefix(prefix string) StorageOption {
	return func(s *storageClient) {
		s.prefix = prefix
	}
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string, opts ...StorageOption) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	s := &storageClient{
		bucketName: bucketName,
		client:     client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *storageClient) Put(ctx context.Context, key, contentType string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(s.prefix + key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	return writer, nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(s.prefix + key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage",
			goerr.V("bucket", s.bucketName),
			goerr.V("key", s.prefix+key))
	}

	return reader, nil
}
