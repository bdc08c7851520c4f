package store

import (
	"context"
	"errors"
	"strings"

	"influradar/pkg/logx"
)

// Store is the persisted follow-set API.
//
// Followings are sets: AddFollowings is union (idempotent), and
// RemoveFollowings of absent values is a no-op. Get returns (nil, nil)
// when the key has no record.
type Store interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*Record, error)
	Create(ctx context.Context, key string, followings []string) error
	AddFollowings(ctx context.Context, key string, values []string) error
	RemoveFollowings(ctx context.Context, key string, values []string) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
