// redis — хранилище задач экспорта в Redis.
//
// Задача хранится как Hash по ключу <prefix><id> с TTL, равным сроку хранения
// результатов экспорта; по истечении срока задача считается отсутствующей.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Connect создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и проверяет соединение.
func Connect(ctx context.Context, redisURL string) (*goredis.Client, error) {
	const op = "storage/redis/Connect"

	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := goredis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rdb, nil
}
