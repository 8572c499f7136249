package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// RetrySender 在暂时性背压时重试发送，直到成功或出现不可恢复错误
//
// 先紧密重试 SpinAttempts 次，之后按指数退避等待（上限 MaxBackoff），不限次数，不丢消息。
// ctx 取消时放弃当前消息并返回 ctx.Err()。
type RetrySender struct {
	Sender
	cfg     config.RetryConfig
	logger  *zap.Logger
	retries uint64
	timer   func(time.Duration) <-chan time.Time
}

// NewRetrySender 包装发送端
func NewRetrySender(inner Sender, cfg config.RetryConfig, logger *zap.Logger) *RetrySender {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = config.DefaultRetryBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = config.DefaultRetryFactor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrySender{
		Sender: inner,
		cfg:    cfg,
		logger: logger,
		timer:  time.After,
	}
}

// Send 发送，暂时性错误时重试
func (r *RetrySender) Send(ctx context.Context, payload []byte) error {
	backoff := r.cfg.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := r.Sender.Send(ctx, payload)
		if err == nil || !IsTransient(err) {
			return err
		}
		r.retries++

		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if attempt <= r.cfg.SpinAttempts {
			continue
		}
		if attempt == r.cfg.SpinAttempts+1 {
			r.logger.Warn("Send queue full, backing off",
				zap.Int("attempts", attempt),
				zap.Error(err))
		}

		select {
		case <-r.timer(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(float64(backoff) * r.cfg.BackoffFactor)
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
}

// Retries 累计重试次数
func (r *RetrySender) Retries() uint64 {
	return r.retries
}
