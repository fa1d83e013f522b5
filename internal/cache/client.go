package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aaronwang/collectible-market/internal/market"
)

// snapshotTTL bounds how stale a cached asset snapshot can get even
// without an invalidating write.
const snapshotTTL = 30 * time.Second

// Client wraps Redis with marketplace-specific operations: the
// latest-snapshot cache and the market event pub/sub channel. The
// chain stays the source of truth; the cache only ever holds the most
// recently fetched snapshot and is invalidated after every successful
// write.
type Client struct {
	client *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: rdb}, nil
}

func snapshotKey(id string) string {
	return fmt.Sprintf("nft:%s:snapshot", id)
}

// AssetSnapshot returns the cached detail snapshot for an asset, if
// one is present and fresh.
func (c *Client) AssetSnapshot(ctx context.Context, id string) (*market.NFT, bool) {
	raw, err := c.client.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var nft market.NFT
	if err := json.Unmarshal(raw, &nft); err != nil {
		return nil, false
	}
	return &nft, true
}

// StoreAssetSnapshot caches the latest fetched detail for an asset.
func (c *Client) StoreAssetSnapshot(ctx context.Context, nft *market.NFT) error {
	raw, err := json.Marshal(nft)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, snapshotKey(nft.ID), raw, snapshotTTL).Err()
}

// InvalidateAsset drops the cached snapshot so the next read refetches
// authoritative state. Called after every successful write touching
// the asset.
func (c *Client) InvalidateAsset(ctx context.Context, id string) error {
	return c.client.Del(ctx, snapshotKey(id)).Err()
}

// PublishMarketEvent publishes an event on the per-asset channel. The
// broadcast service forwards these to websocket subscribers.
func (c *Client) PublishMarketEvent(ctx context.Context, assetID string, event any) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	channel := fmt.Sprintf("market_events:%s", assetID)
	return c.client.Publish(ctx, channel, eventJSON).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
