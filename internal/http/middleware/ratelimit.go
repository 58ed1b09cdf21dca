package middleware

import (
	"context"
	"net/http"
	"time"

	"crypto_arena/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	requestsPerWindow = 120
	window            = time.Minute
)

var rdb *redis.Client

// InitRedisRateLimiter подключает Redis для счетчиков запросов.
// Пустой адрес выключает лимитер целиком.
func InitRedisRateLimiter(addr, password string, db int) {
	if addr == "" {
		logger.Get().Warn("rate limiter выключен: REDIS_ADDR не задан")
		return
	}

	rdb = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Get().Error("redis недоступен, rate limiter выключен", "error", err)
		rdb = nil
	}
}

// RateLimit ограничивает количество запросов с одного IP в фиксированном
// окне. Недоступный Redis пропускает запросы: лимитер — защита от
// шума, а не критический путь.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		defer cancel()

		key := "rl:" + c.ClientIP()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		if count > requestsPerWindow {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "слишком много запросов"})
			return
		}

		c.Next()
	}
}
