package bench

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
)

// Metrics Prometheus 指标
//
// 每个实例使用独立的 Registry，方法对 nil 接收者安全（未启用指标时为 nil）。
type Metrics struct {
	registry *prometheus.Registry

	producedTotal      prometheus.Counter
	consumedTotal      prometheus.Counter
	noMessageTotal     prometheus.Counter
	sendErrorsTotal    prometheus.Counter
	receiveErrorsTotal prometheus.Counter
	latency            prometheus.Histogram
}

// NewMetrics 创建指标，constLabels 通常包含 transport 和 topic
func NewMetrics(namespace string, constLabels prometheus.Labels) *Metrics {
	if namespace == "" {
		namespace = config.DefaultMetricsNS
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		producedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "produced_total",
			Help:        "Total number of messages sent by the producer loop",
			ConstLabels: constLabels,
		}),
		consumedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "consumed_total",
			Help:        "Total number of messages received by the consumer loop",
			ConstLabels: constLabels,
		}),
		noMessageTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "no_message_total",
			Help:        "Total number of receive calls that timed out without a message",
			ConstLabels: constLabels,
		}),
		sendErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "send_errors_total",
			Help:        "Total number of hard send errors",
			ConstLabels: constLabels,
		}),
		receiveErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "receive_errors_total",
			Help:        "Total number of hard receive errors",
			ConstLabels: constLabels,
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "latency_seconds",
			Help:        "End-to-end latency from send timestamp to receive",
			Buckets:     prometheus.ExponentialBuckets(0.000_01, 2, 20),
			ConstLabels: constLabels,
		}),
	}
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上提供 /metrics，ctx 结束时关闭
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Metrics) produced() {
	if m != nil {
		m.producedTotal.Inc()
	}
}

func (m *Metrics) consumed(latency time.Duration) {
	if m != nil {
		m.consumedTotal.Inc()
		m.latency.Observe(latency.Seconds())
	}
}

func (m *Metrics) noMessage() {
	if m != nil {
		m.noMessageTotal.Inc()
	}
}

func (m *Metrics) sendError() {
	if m != nil {
		m.sendErrorsTotal.Inc()
	}
}

func (m *Metrics) receiveError() {
	if m != nil {
		m.receiveErrorsTotal.Inc()
	}
}
