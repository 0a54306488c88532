package bolt

import (
	"context"

	"github.com/goodtune/kassist/internal/storage"
	"go.etcd.io/bbolt"
)

const ledgerStateKey = "state"

type ledgerStore struct {
	db *bbolt.DB
}

func (s *ledgerStore) Load(ctx context.Context) (*storage.LedgerState, error) {
	return getBucketValue[storage.LedgerState](ctx, s.db, bucketLedger, ledgerStateKey)
}

func (s *ledgerStore) Save(ctx context.Context, state storage.LedgerState) error {
	return putBucketValue(ctx, s.db, bucketLedger, ledgerStateKey, state)
}
