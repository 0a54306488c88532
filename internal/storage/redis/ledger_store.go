package redis

import (
	"context"

	"github.com/goodtune/kassist/internal/storage"
	"github.com/redis/go-redis/v9"
)

var replaceLedger = redis.NewScript(replaceLedgerScript)

type ledgerStore struct {
	client *redis.Client
	key    string
}

// Load reads the ledger hash
func (s *ledgerStore) Load(ctx context.Context) (*storage.LedgerState, error) {
	data, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}

	return parseLedgerState(data)
}

// Save replaces the ledger hash in a single atomic script run
func (s *ledgerStore) Save(ctx context.Context, state storage.LedgerState) error {
	return replaceLedger.Run(ctx, s.client, []string{s.key}, ledgerFields(state)...).Err()
}
