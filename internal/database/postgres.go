package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing for the chat workload: lots of short statements (message
// inserts, conditional claim/first-response updates) plus a periodic SLA
// sweep that reads every live conversation. A modest cap keeps Postgres
// happy when several backend replicas share one instance.
const (
	poolMaxConns       = 25
	poolMinConns       = 4
	poolConnLifetime   = time.Hour
	poolConnIdleTime   = 10 * time.Minute
	connectAttempts    = 12
	connectRetryPeriod = 2 * time.Second
)

// NewPool connects with a bounded retry so the backend can start alongside
// a Postgres container that is still warming up.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = poolMaxConns
	cfg.MinConns = poolMinConns
	cfg.MaxConnLifetime = poolConnLifetime
	cfg.MaxConnIdleTime = poolConnIdleTime

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			log.Printf("[DB] connect attempt %d/%d failed: %v", attempt, connectAttempts, err)
			time.Sleep(connectRetryPeriod)
			continue
		}
		if pingErr := pool.Ping(ctx); pingErr != nil {
			pool.Close()
			err = pingErr
			log.Printf("[DB] ping attempt %d/%d failed: %v", attempt, connectAttempts, pingErr)
			time.Sleep(connectRetryPeriod)
			continue
		}
		log.Printf("[DB] connected (attempt %d, max conns %d)", attempt, poolMaxConns)
		return pool, nil
	}

	return nil, fmt.Errorf("database unreachable after %d attempts: %w", connectAttempts, err)
}
