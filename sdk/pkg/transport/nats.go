package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// buildNATSOptions 构建NATS连接选项
func buildNATSOptions(cfg *config.NATSConfig, logger *zap.Logger) []nats.Option {
	name := cfg.ClientID
	if name == "" {
		name = "jxt-bench-" + uuid.NewString()[:8]
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.FlusherTimeout(10 * time.Second),
		nats.ReconnectBufSize(1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Warn("NATS async error", zap.Error(err))
		}),
	}
	if cfg.MaxReconnects > 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.ConnectionTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectionTimeout))
	}
	return opts
}

func connectNATS(cfg *config.TransportConfig, logger *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(strings.Join(cfg.Brokers, ","), buildNATSOptions(&cfg.NATS, logger)...)
}

type natsSender struct {
	conn    *nats.Conn
	subject string
}

func newNATSSender(cfg *config.TransportConfig, logger *zap.Logger) (*natsSender, error) {
	nc, err := connectNATS(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &natsSender{conn: nc, subject: cfg.Topic}, nil
}

// Send 发布消息，重连缓冲区写满时视为队列满
func (s *natsSender) Send(ctx context.Context, payload []byte) error {
	err := s.conn.Publish(s.subject, payload)
	if errors.Is(err, nats.ErrReconnectBufExceeded) {
		return Transient(err)
	}
	return err
}

func (s *natsSender) Close() error {
	err := s.conn.FlushTimeout(config.DefaultCloseTimeout)
	s.conn.Close()
	return err
}

type natsReceiver struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	logger *zap.Logger
}

func newNATSReceiver(cfg *config.TransportConfig, logger *zap.Logger) (*natsReceiver, error) {
	nc, err := connectNATS(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	var sub *nats.Subscription
	if cfg.GroupID != "" {
		sub, err = nc.QueueSubscribeSync(cfg.Topic, cfg.GroupID)
	} else {
		sub, err = nc.SubscribeSync(cfg.Topic)
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Topic, err)
	}
	// 基准测试期间不丢弃积压消息
	if err := sub.SetPendingLimits(-1, -1); err != nil {
		nc.Close()
		return nil, err
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, err
	}
	return &natsReceiver{conn: nc, sub: sub, logger: logger}, nil
}

func (r *natsReceiver) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := r.sub.NextMsg(timeout)
	switch {
	case err == nil:
		return NewMessage(msg.Data, nil), nil
	case errors.Is(err, nats.ErrTimeout):
		return nil, ErrNoMessage
	case errors.Is(err, nats.ErrSlowConsumer):
		r.logger.Warn("NATS slow consumer, messages dropped", zap.Error(err))
		return nil, NoMessage(err)
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
		return nil, ErrClosed
	default:
		return nil, err
	}
}

func (r *natsReceiver) Close() error {
	err := r.sub.Unsubscribe()
	r.conn.Close()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
