package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisCmd is the slice of the go-redis client the mirror needs; tests plug
// in a fake.
type redisCmd interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// StockMirror keeps a read-optimized copy of stock levels in Redis. It is
// never authoritative: reservations always go through the database, and a
// stale or missing key only costs a fallback read.
type StockMirror struct {
	client redisCmd
	ttl    time.Duration
}

func NewStockMirror(client *redis.Client, ttl time.Duration) *StockMirror {
	return &StockMirror{client: client, ttl: ttl}
}

func (m *StockMirror) SetStock(ctx context.Context, stationID, tireID uuid.UUID, quantity int) error {
	if err := m.client.Set(ctx, stockKey(stationID, tireID), quantity, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror stock level: %w", err)
	}
	return nil
}

// GetStock returns (quantity, true) on a hit and (0, false) on a miss.
func (m *StockMirror) GetStock(ctx context.Context, stationID, tireID uuid.UUID) (int, bool, error) {
	val, err := m.client.Get(ctx, stockKey(stationID, tireID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read mirrored stock: %w", err)
	}

	quantity, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt mirrored stock value %q: %w", val, err)
	}
	return quantity, true, nil
}

func stockKey(stationID, tireID uuid.UUID) string {
	return fmt.Sprintf("station_stock:%s:%s", stationID, tireID)
}
