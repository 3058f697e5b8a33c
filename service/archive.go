package service

import (
	"context"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/store"
	"github.com/warriorguo/flowexec/types"
)

var (
	_ types.ArchiveSink = &StoreArchiveSink{}
)

// StoreArchiveSink writes archives into the same store as the run entities.
// It is the fallback when no dedicated cold storage is configured.
type StoreArchiveSink struct {
	store store.Store
}

func NewStoreArchiveSink(s store.Store) *StoreArchiveSink {
	return &StoreArchiveSink{store: s}
}

func (a *StoreArchiveSink) Put(ctx context.Context, tenant, key string, data []byte) error {
	return errors.Trace(a.store.Set(ctx, archivePath(tenant), key, data))
}

// Get reads an archive back, nil when it was never written.
func (a *StoreArchiveSink) Get(ctx context.Context, tenant, key string) ([]byte, error) {
	b, err := a.store.Get(ctx, archivePath(tenant), key)
	return b, errors.Trace(err)
}
