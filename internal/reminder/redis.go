package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarkers хранит отметки о напоминаниях в ключах Redis, истекающих после
// дня записи. Индексное множество хранит идентификаторы для очистки.
type RedisMarkers struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisMarkers создаёт отметки с префиксом ключей "reminder".
func NewRedisMarkers(rdb *redis.Client) *RedisMarkers {
	return &RedisMarkers{rdb: rdb, prefix: "reminder"}
}

func (m *RedisMarkers) key(id string) string {
	return m.prefix + ":" + id
}

func (m *RedisMarkers) index() string {
	return m.prefix + ":index"
}

// Reminded реализует Markers.
func (m *RedisMarkers) Reminded(ctx context.Context, appointmentID, slot string) (bool, error) {
	v, err := m.rdb.Get(ctx, m.key(appointmentID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get marker: %w", err)
	}
	return v == slot, nil
}

// MarkReminded реализует Markers.
func (m *RedisMarkers) MarkReminded(ctx context.Context, appointmentID, slot string, expireAt time.Time) error {
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, m.key(appointmentID), slot, 0)
	pipe.ExpireAt(ctx, m.key(appointmentID), expireAt)
	pipe.SAdd(ctx, m.index(), appointmentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

// PruneReminders реализует Markers.
func (m *RedisMarkers) PruneReminders(ctx context.Context, keep map[string]struct{}) error {
	ids, err := m.rdb.SMembers(ctx, m.index()).Result()
	if err != nil {
		return fmt.Errorf("list markers: %w", err)
	}

	pipe := m.rdb.TxPipeline()
	stale := 0
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		pipe.Del(ctx, m.key(id))
		pipe.SRem(ctx, m.index(), id)
		stale++
	}
	if stale == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("prune markers: %w", err)
	}
	return nil
}
