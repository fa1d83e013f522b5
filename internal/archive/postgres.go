package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/aaronwang/collectible-market/internal/events"
)

// Store persists marketplace events and the latest known asset state
// to PostgreSQL. The chain stays authoritative; this is the queryable
// history the contract cannot serve.
type Store struct {
	db *sql.DB
}

// NewStore opens and verifies a PostgreSQL connection.
func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// InitSchema creates the archival tables.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id VARCHAR(255) PRIMARY KEY,
		last_event_type VARCHAR(50),
		last_actor VARCHAR(255),
		last_amount DECIMAL(20, 8),
		last_tx_hash VARCHAR(255),
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS market_events (
		event_id VARCHAR(255) PRIMARY KEY,
		asset_id VARCHAR(255) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		actor VARCHAR(255),
		amount DECIMAL(20, 8),
		tx_hash VARCHAR(255),
		occurred_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_market_events_asset_id ON market_events(asset_id);
	CREATE INDEX IF NOT EXISTS idx_market_events_type ON market_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_market_events_occurred_at ON market_events(occurred_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertEvent records one marketplace event. Inserts are idempotent on
// the event id, so JetStream redeliveries are harmless.
func (s *Store) InsertEvent(ctx context.Context, event *events.Event) error {
	query := `
		INSERT INTO market_events (event_id, asset_id, event_type, actor, amount, tx_hash, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		event.EventID,
		event.AssetID,
		string(event.Type),
		event.Actor,
		event.Amount,
		event.TxHash,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// TouchAsset upserts the asset row with the latest event applied to
// it.
func (s *Store) TouchAsset(ctx context.Context, event *events.Event) error {
	query := `
		INSERT INTO assets (id, last_event_type, last_actor, last_amount, last_tx_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			last_event_type = EXCLUDED.last_event_type,
			last_actor = EXCLUDED.last_actor,
			last_amount = EXCLUDED.last_amount,
			last_tx_hash = EXCLUDED.last_tx_hash,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		event.AssetID,
		string(event.Type),
		event.Actor,
		event.Amount,
		event.TxHash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset: %w", err)
	}
	return nil
}

// EventHistory returns the most recent events for an asset.
func (s *Store) EventHistory(ctx context.Context, assetID string, limit int) ([]*events.Event, error) {
	query := `
		SELECT event_id, asset_id, event_type, actor, amount, tx_hash, occurred_at
		FROM market_events
		WHERE asset_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var history []*events.Event
	for rows.Next() {
		event := &events.Event{}
		var eventType string
		err := rows.Scan(
			&event.EventID,
			&event.AssetID,
			&eventType,
			&event.Actor,
			&event.Amount,
			&event.TxHash,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = events.Type(eventType)
		history = append(history, event)
	}
	return history, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
