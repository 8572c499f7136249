package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// redisField Stream 条目中存放负载的字段
const redisField = "d"

// redisTransientPrefixes 服务端暂时不可用时的错误前缀
var redisTransientPrefixes = []string{"LOADING", "BUSY ", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN"}

func isRedisTransient(err error) bool {
	msg := err.Error()
	for _, p := range redisTransientPrefixes {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}

func newRedisClient(ctx context.Context, cfg *config.TransportConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Brokers[0],
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

type redisSender struct {
	client *redis.Client
	stream string
	maxLen int64
}

func newRedisSender(cfg *config.TransportConfig, logger *zap.Logger) (*redisSender, error) {
	client, err := newRedisClient(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Redis stream producer ready", zap.String("addr", cfg.Brokers[0]))
	return &redisSender{client: client, stream: cfg.Topic, maxLen: cfg.Redis.MaxLen}, nil
}

func (s *redisSender) Send(ctx context.Context, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: []interface{}{redisField, payload},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	err := s.client.XAdd(ctx, args).Err()
	if err != nil && isRedisTransient(err) {
		return Transient(err)
	}
	return err
}

func (s *redisSender) Close() error {
	return s.client.Close()
}

type redisReceiver struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	lastID   string
	logger   *zap.Logger
}

func newRedisReceiver(cfg *config.TransportConfig, logger *zap.Logger) (*redisReceiver, error) {
	ctx := context.Background()
	client, err := newRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	r := &redisReceiver{
		client: client,
		stream: cfg.Topic,
		group:  cfg.GroupID,
		logger: logger,
	}
	if r.group != "" {
		r.consumer = "jxt-bench-" + uuid.NewString()[:8]
		err = client.XGroupCreateMkStream(ctx, r.stream, r.group, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			client.Close()
			return nil, fmt.Errorf("failed to create consumer group %s: %w", r.group, err)
		}
		return r, nil
	}

	// 无消费者组时从当前末尾开始读，与 Kafka 的 latest 一致
	r.lastID = "0-0"
	last, err := client.XRevRangeN(ctx, r.stream, "+", "-", 1).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read stream tail: %w", err)
	}
	if len(last) > 0 {
		r.lastID = last[0].ID
	}
	return r, nil
}

func (r *redisReceiver) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	var (
		streams []redis.XStream
		err     error
	)
	if r.group != "" {
		streams, err = r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.group,
			Consumer: r.consumer,
			Streams:  []string{r.stream, ">"},
			Count:    1,
			Block:    timeout,
			NoAck:    true,
		}).Result()
	} else {
		streams, err = r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{r.stream, r.lastID},
			Count:   1,
			Block:   timeout,
		}).Result()
	}

	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNoMessage
	case err != nil:
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if isRedisTransient(err) {
			r.logger.Warn("Redis stream read failed", zap.Error(err))
			return nil, NoMessage(err)
		}
		return nil, err
	}

	for _, s := range streams {
		for _, m := range s.Messages {
			r.lastID = m.ID
			switch v := m.Values[redisField].(type) {
			case string:
				return NewMessage([]byte(v), nil), nil
			case []byte:
				return NewMessage(v, nil), nil
			default:
				return nil, fmt.Errorf("redis entry %s has no %q field", m.ID, redisField)
			}
		}
	}
	return nil, ErrNoMessage
}

func (r *redisReceiver) Close() error {
	return r.client.Close()
}
