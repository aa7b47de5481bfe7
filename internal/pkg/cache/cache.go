package cache

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/AlbumFox/internal/pkg/config"
)

// limiterDatabase keeps rate limiter counters apart from the snapshot cache.
const limiterDatabase = 1

var (
	client    *redis.Client
	available bool
)

// SetupCache initializes the connection to the redis compatible cache server.
// An unreachable server is logged, not fatal: callers degrade to the database.
func SetupCache(cfg config.CacheConfig) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("Could not connect to cache at %s: %v", cfg.Addr(), err)
	} else {
		log.Infof("Successfully connected to cache: %s", pong)
	}
	available = err == nil
	return client
}

// Available reports whether the cache answered the startup ping.
func Available() bool {
	return available
}

// NewLimiterStorage returns fiber storage on the same server as the cache
// client, in a separate database. It returns nil when the cache is down so the
// limiter falls back to in-process memory.
func NewLimiterStorage() fiber.Storage {
	if !available {
		log.Warn("Cache unavailable, rate limiter uses in-memory storage")
		return nil
	}
	host := "localhost"
	port := 6379
	password := ""
	if client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		password = client.Options().Password
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
