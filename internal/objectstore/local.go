package objectstore

import (
	"context"

	"github.com/rendis/caseflow/internal/store"
	"github.com/rendis/caseflow/pkg/schema"
)

// LocalStore keeps submissions in the embedded database. Used when no S3
// backend is configured, mostly for local and test deployments.
type LocalStore struct {
	db store.Store
}

// NewLocalStore wraps the embedded store.
func NewLocalStore(db store.Store) *LocalStore {
	return &LocalStore{db: db}
}

func (l *LocalStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	ok, err := l.db.ObjectExists(ctx, namespace, key)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeStore, "local store lookup %s/%s", namespace, key).WithCause(err)
	}
	return ok, nil
}

func (l *LocalStore) Put(ctx context.Context, namespace, key string, body []byte, meta Metadata) (string, error) {
	err := l.db.PutObject(ctx, &store.Object{
		Namespace:   namespace,
		Key:         key,
		Body:        body,
		ContentType: "application/json",
		Metadata:    meta,
	})
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeStore, "local store write %s/%s", namespace, key).WithCause(err)
	}
	return "local", nil
}

var _ Store = (*LocalStore)(nil)
