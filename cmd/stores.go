package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/app/timer"
	"github.com/vibast-solutions/ms-go-checkout/config"
	_ "modernc.org/sqlite"
)

func createAnchorStore(ctx context.Context, cfg *config.Config) (timer.AnchorStore, func(), error) {
	switch cfg.Timer.Store {
	case config.TimerStoreMemory:
		return timer.NewMemoryStore(), func() {}, nil
	case config.TimerStoreRedis:
		return createRedisAnchorStore(ctx, cfg.Redis)
	case config.TimerStoreMySQL:
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
		return createSQLAnchorStore(ctx, db)
	default:
		db, err := sql.Open("sqlite", cfg.Timer.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return createSQLAnchorStore(ctx, db)
	}
}

func createSQLAnchorStore(ctx context.Context, db *sql.DB) (timer.AnchorStore, func(), error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	store := repository.NewSQLAnchorStore(db)
	if err := store.EnsureSchema(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}
	return store, cleanup, nil
}

func createRedisAnchorStore(ctx context.Context, cfg config.RedisConfig) (timer.AnchorStore, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
	}
	return repository.NewRedisAnchorStore(client), cleanup, nil
}
