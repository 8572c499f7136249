package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// kafkaTransientErrors broker 端可恢复的错误，视为背压
var kafkaTransientErrors = []error{
	sarama.ErrRequestTimedOut,
	sarama.ErrLeaderNotAvailable,
	sarama.ErrNotLeaderForPartition,
	sarama.ErrNotEnoughReplicas,
	sarama.ErrNotEnoughReplicasAfterAppend,
	sarama.ErrNetworkException,
	sarama.ErrOutOfBrokers,
	sarama.ErrNotConnected,
}

func isKafkaTransient(err error) bool {
	for _, target := range kafkaTransientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// newSaramaConfig 将传输配置转换为 sarama 配置
func newSaramaConfig(cfg *config.TransportConfig) (*sarama.Config, error) {
	kc := &cfg.Kafka
	sc := sarama.NewConfig()

	sc.ClientID = kc.ClientID
	if sc.ClientID == "" {
		sc.ClientID = "jxt-bench-" + uuid.NewString()[:8]
	}

	// 生产者配置
	sc.Producer.RequiredAcks = sarama.RequiredAcks(kc.RequiredAcks)
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	if kc.Partition >= 0 {
		sc.Producer.Partitioner = sarama.NewManualPartitioner
	} else {
		sc.Producer.Partitioner = sarama.NewHashPartitioner
	}

	// 设置压缩算法
	switch kc.Compression {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	// queue.buffering.max.ms
	if kc.QueueBufferingMaxMs > 0 {
		sc.Producer.Flush.Frequency = time.Duration(kc.QueueBufferingMaxMs) * time.Millisecond
	}

	// 消费者配置，fetch.wait.max.ms
	sc.Consumer.Return.Errors = true
	if kc.FetchWaitMaxMs > 0 {
		sc.Consumer.MaxWaitTime = time.Duration(kc.FetchWaitMaxMs) * time.Millisecond
	}

	// 设置偏移量重置策略
	switch kc.AutoOffsetReset {
	case "earliest":
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	// 版本配置
	sc.Version = sarama.V2_6_0_0
	if kc.Version != "" {
		v, err := sarama.ParseKafkaVersion(kc.Version)
		if err != nil {
			return nil, err
		}
		sc.Version = v
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// ==========================================================================
// 发送端
// ==========================================================================

// kafkaSender 基于异步生产者，入队失败视为队列满。
// 投递错误在后台收集：可恢复的错误把消息放回待重发队列，下一次 Send 先重发它们；
// 其余错误在下一次 Send 时返回
type kafkaSender struct {
	client    sarama.Client
	producer  sarama.AsyncProducer
	topic     string
	partition int32
	logger    *zap.Logger

	mu      sync.Mutex
	lastErr error
	pending []*sarama.ProducerMessage
	drained chan struct{}
}

func newKafkaSender(cfg *config.TransportConfig, logger *zap.Logger) (*kafkaSender, error) {
	sc, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build kafka config: %w", err)
	}
	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	producer, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return startKafkaSender(client, producer, cfg, logger), nil
}

// startKafkaSender 包装已创建的异步生产者并启动错误收集；client 可以为 nil
func startKafkaSender(client sarama.Client, producer sarama.AsyncProducer, cfg *config.TransportConfig, logger *zap.Logger) *kafkaSender {
	s := &kafkaSender{
		client:    client,
		producer:  producer,
		topic:     cfg.Topic,
		partition: cfg.Kafka.Partition,
		logger:    logger,
		drained:   make(chan struct{}),
	}
	go s.collectErrors()
	return s
}

func (s *kafkaSender) collectErrors() {
	defer close(s.drained)
	for perr := range s.producer.Errors() {
		if isKafkaTransient(perr.Err) && perr.Msg != nil {
			s.logger.Warn("Kafka delivery failed, message queued for redelivery", zap.Error(perr.Err))
			s.mu.Lock()
			s.pending = append(s.pending, s.redeliveryOf(perr.Msg))
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		if s.lastErr == nil {
			s.lastErr = perr.Err
		}
		s.mu.Unlock()
	}
}

// redeliveryOf 生产者不允许复用已交还的消息，重发时构造新消息
func (s *kafkaSender) redeliveryOf(failed *sarama.ProducerMessage) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic: failed.Topic,
		Key:   failed.Key,
		Value: failed.Value,
	}
	if s.partition >= 0 {
		msg.Partition = s.partition
	}
	return msg
}

func (s *kafkaSender) takeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lastErr
	s.lastErr = nil
	return err
}

// redeliver 非阻塞地重发待重发队列；队列未清空时返回 false
func (s *kafkaSender) redeliver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 {
		select {
		case s.producer.Input() <- s.pending[0]:
			s.pending[0] = nil
			s.pending = s.pending[1:]
		default:
			return false
		}
	}
	return true
}

func (s *kafkaSender) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *kafkaSender) Send(ctx context.Context, payload []byte) error {
	if err := s.takeError(); err != nil {
		return err
	}
	// 先重发失败的消息，之后才接收新消息
	if !s.redeliver() {
		return ErrQueueFull
	}

	// 生产者异步持有消息，缓冲区会被调用方复用
	value := make([]byte, len(payload))
	copy(value, payload)
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(value),
	}
	if s.partition >= 0 {
		msg.Partition = s.partition
	}

	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Close 重发剩余的失败消息并等待未完成的投递，最多 DefaultCloseTimeout。
// 关闭后仍未投递的消息作为错误返回
func (s *kafkaSender) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultCloseTimeout)
	defer cancel()

	var err error
	for !s.redeliver() {
		select {
		case <-ctx.Done():
			err = fmt.Errorf("kafka redelivery timed out after %s", config.DefaultCloseTimeout)
		case <-time.After(time.Millisecond):
			continue
		}
		break
	}
	s.producer.AsyncClose()

	select {
	case <-s.drained:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("kafka producer flush timed out after %s", config.DefaultCloseTimeout))
		s.logger.Warn("Kafka producer flush timed out")
	}
	if n := s.pendingCount(); n > 0 {
		err = multierr.Append(err, fmt.Errorf("%d kafka messages undelivered", n))
	}
	err = multierr.Append(err, s.takeError())
	if s.client != nil {
		err = multierr.Append(err, s.client.Close())
	}
	return err
}

// ==========================================================================
// 接收端
// ==========================================================================

// kafkaDelivery 分区消费者或消费者组交付的一条消息
type kafkaDelivery struct {
	msg     *sarama.ConsumerMessage
	session sarama.ConsumerGroupSession
}

type kafkaReceiver struct {
	client   sarama.Client
	consumer sarama.Consumer
	pc       sarama.PartitionConsumer
	group    sarama.ConsumerGroup
	logger   *zap.Logger

	deliveries chan kafkaDelivery
	errs       <-chan error
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func newKafkaReceiver(cfg *config.TransportConfig, logger *zap.Logger) (*kafkaReceiver, error) {
	sc, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build kafka config: %w", err)
	}
	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	r := &kafkaReceiver{
		client:     client,
		logger:     logger,
		deliveries: make(chan kafkaDelivery),
	}
	if cfg.GroupID != "" {
		err = r.startGroup(cfg)
	} else {
		err = r.startPartition(cfg, sc.Consumer.Offsets.Initial)
	}
	if err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

func (r *kafkaReceiver) startPartition(cfg *config.TransportConfig, offset int64) error {
	consumer, err := sarama.NewConsumerFromClient(r.client)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	partition := cfg.Kafka.Partition
	if partition < 0 {
		partition = 0
	}
	return r.consumePartition(consumer, cfg.Topic, partition, offset)
}

// consumePartition 从指定分区读取，并把分区错误转交给 Receive
func (r *kafkaReceiver) consumePartition(consumer sarama.Consumer, topic string, partition int32, offset int64) error {
	pc, err := consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		consumer.Close()
		return fmt.Errorf("failed to consume partition %d: %w", partition, err)
	}
	r.consumer = consumer
	r.pc = pc

	errs := make(chan error, 1)
	r.errs = errs
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for cerr := range pc.Errors() {
			select {
			case errs <- cerr.Err:
			default:
				r.logger.Warn("Kafka consumer error dropped", zap.Error(cerr.Err))
			}
		}
	}()
	return nil
}

func (r *kafkaReceiver) startGroup(cfg *config.TransportConfig) error {
	group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, r.client)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	r.group = group

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	errs := make(chan error, 1)
	r.errs = errs

	handler := &kafkaGroupHandler{deliveries: r.deliveries}
	topics := []string{cfg.Topic}
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		for ctx.Err() == nil {
			if err := group.Consume(ctx, topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				r.logger.Warn("Kafka consumer group session ended", zap.Error(err))
			}
		}
	}()
	go func() {
		defer r.wg.Done()
		for gerr := range group.Errors() {
			select {
			case errs <- gerr:
			default:
				r.logger.Warn("Kafka consumer group error dropped", zap.Error(gerr))
			}
		}
	}()
	return nil
}

func (r *kafkaReceiver) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	var messages <-chan *sarama.ConsumerMessage
	if r.pc != nil {
		messages = r.pc.Messages()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-messages:
		if !ok {
			return nil, ErrClosed
		}
		return NewMessage(msg.Value, nil), nil
	case d := <-r.deliveries:
		return NewMessage(d.msg.Value, func() { d.session.MarkMessage(d.msg, "") }), nil
	case err := <-r.errs:
		if isKafkaTransient(err) {
			r.logger.Warn("Kafka consumer transient error", zap.Error(err))
			return nil, NoMessage(err)
		}
		return nil, err
	case <-timer.C:
		return nil, ErrNoMessage
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *kafkaReceiver) Close() error {
	var err error
	if r.cancel != nil {
		r.cancel()
	}
	if r.pc != nil {
		err = multierr.Append(err, r.pc.Close())
	}
	if r.consumer != nil {
		err = multierr.Append(err, r.consumer.Close())
	}
	if r.group != nil {
		err = multierr.Append(err, r.group.Close())
	}
	r.wg.Wait()
	if r.client != nil {
		err = multierr.Append(err, r.client.Close())
	}
	return err
}

// kafkaGroupHandler 将消费者组的消息逐条交给 Receive
type kafkaGroupHandler struct {
	deliveries chan<- kafkaDelivery
}

func (h *kafkaGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *kafkaGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *kafkaGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.deliveries <- kafkaDelivery{msg: msg, session: session}:
			case <-session.Context().Done():
				return nil
			}
		case <-session.Context().Done():
			return nil
		}
	}
}
