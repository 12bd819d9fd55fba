package app

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-link/internal/config"
	"github.com/jrsteele09/go-auth-link/kvstore"
	"github.com/jrsteele09/go-auth-link/kvstore/filestore"
	"github.com/jrsteele09/go-auth-link/kvstore/memstore"
	"github.com/jrsteele09/go-auth-link/kvstore/redisstore"
	"github.com/rs/zerolog/log"
)

// Storage is an opened store plus what it needs to run and shut down.
type Storage struct {
	Store kvstore.NotifyingStore

	// Run delivers changes made by other instances until ctx is done.
	Run   func(ctx context.Context) error
	Close func() error
}

func OpenStorage(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	noop := func() error { return nil }

	switch cfg.GetStoreDriver() {
	case config.StoreDriverMemory:
		log.Info().Msg("using in-memory store; sessions end with the process")
		return &Storage{
			Store: memstore.New(),
			Run:   func(ctx context.Context) error { <-ctx.Done(); return nil },
			Close: noop,
		}, nil

	case config.StoreDriverFile:
		var opts []filestore.Option
		if secret := cfg.GetStoreEncryptionKey(); secret != "" {
			sealer, err := kvstore.NewSealer(secret)
			if err != nil {
				return nil, fmt.Errorf("[OpenStorage] %w", err)
			}
			opts = append(opts, filestore.WithSealer(sealer))
		} else {
			log.Warn().Msg("STORE_ENCRYPTION_KEY not set; session tokens are stored unencrypted")
		}
		fs, err := filestore.New(cfg.GetStoreDir(), opts...)
		if err != nil {
			return nil, err
		}
		if err := fs.Watch(); err != nil {
			return nil, fmt.Errorf("[OpenStorage] watch %s: %w", cfg.GetStoreDir(), err)
		}
		log.Info().Str("dir", cfg.GetStoreDir()).Msg("using file store")
		return &Storage{
			Store: fs,
			Run:   func(ctx context.Context) error { <-ctx.Done(); return nil },
			Close: fs.Close,
		}, nil

	case config.StoreDriverRedis:
		rs, err := redisstore.Dial(ctx, redisstore.Config{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
			Prefix:   cfg.GetStorePrefix(),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.GetRedisAddr()).Msg("using redis store")
		return &Storage{Store: rs, Run: rs.Listen, Close: rs.Close}, nil
	}

	return nil, fmt.Errorf("[OpenStorage] unknown STORE_DRIVER %q", cfg.GetStoreDriver())
}
