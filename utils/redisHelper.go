package utils

import (
	"context"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 24
	}
	return time.Duration(lifespan) * time.Hour
}

func lastRunKey(command string, scope string) string {
	return "reconcile:last:" + command + ":" + scope
}

// StoreLastRun caches the latest summary of command over scope; a no-op without redis.
func StoreLastRun[T any](ctx context.Context, command string, scope string, obj T) error {
	return config.SetRedisObject(ctx, lastRunKey(command, scope), obj, GetCacheLifespan())
}

// RetrieveLastRun returns nil when nothing is cached.
func RetrieveLastRun[T any](ctx context.Context, command string, scope string) (*T, error) {
	var result T
	exists, err := config.GetRedisObject(ctx, lastRunKey(command, scope), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}
