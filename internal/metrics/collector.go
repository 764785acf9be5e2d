// Package metrics 汇总实时会话的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector 指标收集器。nil Collector 的所有方法都是空操作，方便测试直接传 nil。
type Collector struct {
	registry *prometheus.Registry

	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	toolInvocations  *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec
	playbackQueue    prometheus.Gauge
	playbackSeconds  prometheus.Counter
	toolDuration     *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册在独立的 registry 上。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.framesSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_frames_sent_total",
			Help:      "Outbound live frames by kind",
		},
		[]string{"kind"},
	)

	c.framesReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_frames_received_total",
			Help:      "Inbound live frames by decoded variant",
		},
		[]string{"kind"},
	)

	c.framesDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_frames_dropped_total",
			Help:      "Frames dropped before reaching the wire or the dispatcher",
		},
		[]string{"reason"},
	)

	c.toolInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by name and outcome",
		},
		[]string{"tool", "outcome"},
	)

	c.toolDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "Tool execution latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.stateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_state_transitions_total",
			Help:      "Session state transitions",
		},
		[]string{"from", "to"},
	)

	c.playbackQueue = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playback_queue_depth",
		Help:      "Decoded audio items waiting for playback",
	})

	c.playbackSeconds = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playback_scheduled_seconds_total",
		Help:      "Seconds of audio scheduled for playback",
	})

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Handler 返回 /metrics 的 HTTP 处理器。
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry 暴露底层 registry，测试用。
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) FrameSent(kind string) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(kind).Inc()
}

func (c *Collector) FrameReceived(kind string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(kind).Inc()
}

func (c *Collector) FrameDropped(reason string) {
	if c == nil {
		return
	}
	c.framesDropped.WithLabelValues(reason).Inc()
}

// ToolInvoked 记录一次工具调用的结果和耗时。
func (c *Collector) ToolInvoked(tool, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.toolInvocations.WithLabelValues(tool, outcome).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(seconds)
}

func (c *Collector) StateTransition(from, to string) {
	if c == nil {
		return
	}
	c.stateTransitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) PlaybackQueue(depth int) {
	if c == nil {
		return
	}
	c.playbackQueue.Set(float64(depth))
}

func (c *Collector) PlaybackScheduled(seconds float64) {
	if c == nil {
		return
	}
	c.playbackSeconds.Add(seconds)
}
