package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateLimitConfig configures the distributed limiter.
type RateLimitConfig struct {
	// Per-endpoint limits, keyed by "METHOD:path" (wildcards allowed in path).
	EndpointLimits map[string]EndpointLimit

	// Global per-IP limit, applied after any endpoint-specific one.
	GlobalIPLimit  int
	GlobalIPWindow time.Duration

	// DDoS protection: an IP that crosses DDoSThreshold requests within a
	// minute is banned for DDoSBanDuration.
	DDoSThreshold   int
	DDoSBanDuration time.Duration

	WhitelistIPs []string
	BlacklistIPs []string

	RedisClient *redis.Client
	KeyPrefix   string

	Logger *zap.Logger
}

// EndpointLimit is the limit applied to one method+path pair.
type EndpointLimit struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
}

// RateLimitResult is the outcome of a single limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
	Reason     string
}

// DistributedRateLimiter enforces RateLimitConfig's limits via Redis, so the
// limit is shared across every server instance rather than held in-process.
type DistributedRateLimiter struct {
	config *RateLimitConfig
	redis  *redis.Client
	logger *zap.Logger
}

// NewDistributedRateLimiter builds a limiter from config.
func NewDistributedRateLimiter(config *RateLimitConfig) *DistributedRateLimiter {
	return &DistributedRateLimiter{
		config: config,
		redis:  config.RedisClient,
		logger: config.Logger,
	}
}

// Middleware returns the gin handler enforcing blacklist, whitelist, DDoS
// protection, endpoint limits, and the global per-IP limit, in that order.
func (rl *DistributedRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := rl.getClientIP(c)
		endpoint := c.FullPath()
		method := c.Request.Method

		if rl.isBlacklisted(clientIP) {
			rl.rejectRequest(c, "IP blacklisted", http.StatusForbidden, 0)
			return
		}

		if rl.isWhitelisted(clientIP) {
			c.Next()
			return
		}

		if banned, banDuration := rl.checkDDoSProtection(clientIP); banned {
			rl.rejectRequest(c, "DDoS protection triggered", http.StatusTooManyRequests, banDuration)
			return
		}

		if limit, exists := rl.getEndpointLimit(endpoint, method); exists {
			if result := rl.checkEndpointLimit(clientIP, endpoint, method, limit); !result.Allowed {
				rl.rejectRequestWithResult(c, result)
				return
			}
		}

		if result := rl.checkGlobalLimit(clientIP); !result.Allowed {
			rl.rejectRequestWithResult(c, result)
			return
		}

		rl.recordRequest(clientIP, endpoint, method)

		c.Next()
	}
}

func (rl *DistributedRateLimiter) getClientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		ips := strings.Split(ip, ",")
		return strings.TrimSpace(ips[0])
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func (rl *DistributedRateLimiter) isWhitelisted(ip string) bool {
	for _, whiteIP := range rl.config.WhitelistIPs {
		if ip == whiteIP {
			return true
		}
	}
	return false
}

func (rl *DistributedRateLimiter) isBlacklisted(ip string) bool {
	ctx := context.Background()

	for _, blackIP := range rl.config.BlacklistIPs {
		if ip == blackIP {
			return true
		}
	}

	blacklistKey := fmt.Sprintf("%sblacklist:%s", rl.config.KeyPrefix, ip)
	exists, err := rl.redis.Exists(ctx, blacklistKey).Result()
	if err != nil {
		rl.logger.Warn("checking blacklist", zap.Error(err))
		return false
	}
	return exists > 0
}

// checkDDoSProtection bans an IP once it crosses DDoSThreshold requests
// within a minute, independent of any endpoint/global limit.
func (rl *DistributedRateLimiter) checkDDoSProtection(ip string) (banned bool, duration time.Duration) {
	ctx := context.Background()

	banKey := fmt.Sprintf("%sddos_ban:%s", rl.config.KeyPrefix, ip)
	ttl, err := rl.redis.TTL(ctx, banKey).Result()
	if err == nil && ttl > 0 {
		return true, ttl
	}

	counterKey := fmt.Sprintf("%sddos_counter:%s", rl.config.KeyPrefix, ip)
	count, err := rl.redis.Incr(ctx, counterKey).Result()
	if err != nil {
		rl.logger.Warn("incrementing ddos counter", zap.Error(err))
		return false, 0
	}
	if count == 1 {
		rl.redis.Expire(ctx, counterKey, time.Minute)
	}

	if int(count) > rl.config.DDoSThreshold {
		rl.redis.Set(ctx, banKey, "banned", rl.config.DDoSBanDuration)
		rl.logger.Warn("ddos protection triggered",
			zap.String("ip", ip),
			zap.Int64("requests", count),
			zap.Duration("ban_duration", rl.config.DDoSBanDuration))
		return true, rl.config.DDoSBanDuration
	}

	return false, 0
}

func (rl *DistributedRateLimiter) getEndpointLimit(path, method string) (EndpointLimit, bool) {
	key := fmt.Sprintf("%s:%s", method, path)
	if limit, exists := rl.config.EndpointLimits[key]; exists {
		return limit, true
	}

	for pattern, limit := range rl.config.EndpointLimits {
		if strings.Contains(pattern, "*") && rl.matchPattern(pattern, key) {
			return limit, true
		}
	}

	return EndpointLimit{}, false
}

func (rl *DistributedRateLimiter) checkEndpointLimit(ip, endpoint, method string, limit EndpointLimit) RateLimitResult {
	ctx := context.Background()
	key := fmt.Sprintf("%sendpoint:%s:%s:%s", rl.config.KeyPrefix, method, endpoint, ip)
	result := rl.checkLimit(ctx, key, limit.Limit, limit.Window)
	if !result.Allowed {
		result.Reason = "endpoint rate limit exceeded"
	}
	return result
}

func (rl *DistributedRateLimiter) checkGlobalLimit(ip string) RateLimitResult {
	ctx := context.Background()
	ipKey := fmt.Sprintf("%sglobal_ip:%s", rl.config.KeyPrefix, ip)
	result := rl.checkLimit(ctx, ipKey, rl.config.GlobalIPLimit, rl.config.GlobalIPWindow)
	if !result.Allowed {
		result.Reason = "IP rate limit exceeded"
	}
	return result
}

// checkLimit enforces a sliding-window limit via a Lua script so the
// read-check-write sequence is atomic under concurrent requests.
func (rl *DistributedRateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	now := time.Now()
	windowStart := now.Add(-window)

	luaScript := `
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])
		local window_seconds = tonumber(ARGV[4])

		redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

		local current = redis.call('ZCARD', key)

		if current >= limit then
			local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
			local reset_time = now + window_seconds
			if #oldest > 0 then
				reset_time = oldest[2] + window_seconds
			end
			return {0, current, reset_time}
		else
			redis.call('ZADD', key, now, ARGV[5])
			redis.call('EXPIRE', key, window_seconds)

			local remaining = limit - current - 1
			local reset_time = now + window_seconds
			return {1, remaining, reset_time}
		end
	`

	result, err := rl.redis.Eval(ctx, luaScript, []string{key},
		now.Unix(),
		windowStart.Unix(),
		limit,
		int(window.Seconds()),
		now.UnixNano()).Result() // unique member so same-second requests each count

	if err != nil {
		rl.logger.Error("rate limit lua script", zap.Error(err))
		return RateLimitResult{Allowed: true} // fail open
	}

	resultSlice := result.([]interface{})
	allowed := resultSlice[0].(int64) == 1
	remaining := int(resultSlice[1].(int64))
	resetTime := time.Unix(resultSlice[2].(int64), 0)

	retryAfter := time.Duration(0)
	if !allowed {
		retryAfter = time.Until(resetTime)
	}

	return RateLimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetTime:  resetTime,
		RetryAfter: retryAfter,
	}
}

func (rl *DistributedRateLimiter) recordRequest(ip, endpoint, method string) {
	ctx := context.Background()
	timestamp := time.Now().Unix()

	statsKey := fmt.Sprintf("%sstats:%s", rl.config.KeyPrefix, time.Now().Format("2006-01-02-15"))
	rl.redis.ZAdd(ctx, statsKey, &redis.Z{
		Score:  float64(timestamp),
		Member: fmt.Sprintf("%s|%s|%s", ip, method, endpoint),
	})
	rl.redis.Expire(ctx, statsKey, 24*time.Hour)
}

func (rl *DistributedRateLimiter) matchPattern(pattern, path string) bool {
	if strings.Contains(pattern, "*") {
		prefix := strings.Split(pattern, "*")[0]
		return strings.HasPrefix(path, prefix)
	}
	return pattern == path
}

func (rl *DistributedRateLimiter) rejectRequest(c *gin.Context, reason string, statusCode int, retryAfter time.Duration) {
	result := RateLimitResult{
		Allowed:    false,
		Reason:     reason,
		RetryAfter: retryAfter,
	}
	rl.rejectRequestWithResult(c, result)
}

func (rl *DistributedRateLimiter) rejectRequestWithResult(c *gin.Context, result RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.GlobalIPLimit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

	if result.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}

	rl.logger.Warn("rate limit exceeded",
		zap.String("ip", rl.getClientIP(c)),
		zap.String("endpoint", c.FullPath()),
		zap.String("method", c.Request.Method),
		zap.String("reason", result.Reason),
		zap.Duration("retry_after", result.RetryAfter))

	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":               "rate_limited",
		"message":             result.Reason,
		"retry_after_seconds": int(result.RetryAfter.Seconds()),
		"reset_time":          result.ResetTime.Unix(),
	})
	c.Abort()
}

// GetDefaultRateLimitConfig returns the limiter config used in production:
// tight limits on job-submission endpoints, generous ones on polling reads.
func GetDefaultRateLimitConfig(redisClient *redis.Client, logger *zap.Logger) *RateLimitConfig {
	return &RateLimitConfig{
		EndpointLimits: map[string]EndpointLimit{
			"POST:/api/jobs": {
				Path:   "/api/jobs",
				Method: "POST",
				Limit:  20,
				Window: time.Hour,
			},
			"POST:/api/jobs/upload": {
				Path:   "/api/jobs/upload",
				Method: "POST",
				Limit:  10,
				Window: time.Hour,
			},
			"POST:/api/search/humming": {
				Path:   "/api/search/humming",
				Method: "POST",
				Limit:  30,
				Window: time.Hour,
			},
			"POST:/api/search/text": {
				Path:   "/api/search/text",
				Method: "POST",
				Limit:  60,
				Window: time.Hour,
			},
			"GET:/api/*": {
				Path:   "/api/*",
				Method: "GET",
				Limit:  1000,
				Window: time.Hour,
			},
		},

		GlobalIPLimit:  60,
		GlobalIPWindow: time.Minute,

		DDoSThreshold:   200,
		DDoSBanDuration: 15 * time.Minute,

		WhitelistIPs: []string{"127.0.0.1", "::1", "localhost"},
		BlacklistIPs: []string{},

		RedisClient: redisClient,
		KeyPrefix:   "trackforge:ratelimit:",
		Logger:      logger,
	}
}
