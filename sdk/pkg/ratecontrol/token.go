package ratecontrol

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/logger"
)

// TokenBucket 基于令牌桶的节流器（golang.org/x/time/rate）
//
// 与 Controller 不同，令牌桶最多只累积 burst 个令牌，落后后不会追赶。
type TokenBucket struct {
	limiter   *rate.Limiter
	burstSize int
	rateLimit rate.Limit
	enabled   bool
	logger    *zap.Logger
}

// NewTokenBucket 创建令牌桶节流器，opsPerSecond 为 0 时不限速
func NewTokenBucket(opsPerSecond float64, burstSize int) *TokenBucket {
	if opsPerSecond <= 0 {
		return &TokenBucket{
			enabled: false,
			logger:  logger.Logger,
		}
	}
	if burstSize <= 0 {
		burstSize = 1
	}

	rateLimit := rate.Limit(opsPerSecond)
	limiter := rate.NewLimiter(rateLimit, burstSize)
	// 首个令牌留给第一次发送，之后的 Wait 才产生间隔
	limiter.AllowN(time.Now(), burstSize)

	return &TokenBucket{
		limiter:   limiter,
		burstSize: burstSize,
		rateLimit: rateLimit,
		enabled:   true,
		logger:    logger.Logger,
	}
}

// Throttle 等待令牌
func (tb *TokenBucket) Throttle(ctx context.Context) error {
	if !tb.enabled {
		return nil
	}
	if err := tb.limiter.Wait(ctx); err != nil {
		tb.logger.Debug("Token bucket wait interrupted", zap.Error(err))
		return err
	}
	return nil
}

// Enabled 是否限速
func (tb *TokenBucket) Enabled() bool {
	return tb.enabled
}

// Stats 节流器统计信息
func (tb *TokenBucket) Stats() *TokenBucketStats {
	if !tb.enabled {
		return &TokenBucketStats{Enabled: false}
	}
	return &TokenBucketStats{
		Enabled:         true,
		RateLimit:       float64(tb.rateLimit),
		BurstSize:       tb.burstSize,
		TokensAvailable: tb.limiter.Tokens(),
	}
}

// TokenBucketStats 令牌桶统计信息
type TokenBucketStats struct {
	Enabled         bool    `json:"enabled"`
	RateLimit       float64 `json:"rateLimit"`
	BurstSize       int     `json:"burstSize"`
	TokensAvailable float64 `json:"tokensAvailable"`
}
