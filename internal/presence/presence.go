// Package presence tracks which users are online in Redis and bridges
// broadcasts between nodes over Redis pub/sub.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const onlineTTL = 60 * time.Second

type Store struct {
	rdb    *redis.Client
	prefix string
	log    *zap.SugaredLogger
}

func NewStore(rdb *redis.Client, prefix string, log *zap.SugaredLogger) *Store {
	return &Store{rdb: rdb, prefix: prefix, log: log}
}

func (s *Store) key(username string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, username)
}

// Online marks the user online. Called on connect and refreshed on inbound
// traffic; the TTL lets crashed connections age out.
func (s *Store) Online(ctx context.Context, username string) {
	if err := s.rdb.Set(ctx, s.key(username), "online", onlineTTL).Err(); err != nil {
		s.log.Warnw("presence set failed", "user", username, "err", err)
	}
}

func (s *Store) Offline(ctx context.Context, username string) {
	if err := s.rdb.Del(ctx, s.key(username)).Err(); err != nil {
		s.log.Warnw("presence del failed", "user", username, "err", err)
	}
}

func (s *Store) IsOnline(ctx context.Context, username string) bool {
	val, err := s.rdb.Get(ctx, s.key(username)).Result()
	return err == nil && val == "online"
}
