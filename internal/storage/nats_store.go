package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsObjectStore keeps artifacts in a JetStream object store bucket so API
// and workers can run on different hosts.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// NewNatsObjectStore creates the bucket or binds to it when it already exists.
func NewNatsObjectStore(js nats.JetStreamContext, bucket string) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Rendered generation audio.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("storage: create object store bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("storage: bind object store bucket %q: %w", bucket, err)
		}
	}
	return &NatsObjectStore{bucket: bucket, store: store}, nil
}

// Put uploads r under key.
func (n *NatsObjectStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if _, err := n.store.Put(&nats.ObjectMeta{Name: cleanKey}, r, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("storage: put %q to bucket %q: %w", cleanKey, n.bucket, err)
	}
	return cleanKey, nil
}

// Open streams the object stored under key.
func (n *NatsObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := n.store.Get(cleanKey, nats.Context(ctx))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %q from bucket %q: %w", cleanKey, n.bucket, err)
	}
	return obj, nil
}

var _ ArtifactStore = (*NatsObjectStore)(nil)
