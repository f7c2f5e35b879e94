package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics 监控接口
type Metrics interface {
	// Start 启动监控服务
	Start() error

	// Stop 停止监控服务
	Stop() error

	// RegisterGauge 注册仪表盘指标
	RegisterGauge(name, help string, labels []string) (Gauge, error)

	// RegisterCounter 注册计数器指标
	RegisterCounter(name, help string, labels []string) (Counter, error)

	// RegisterHistogram 注册直方图指标
	RegisterHistogram(name, help string, labels []string, buckets []float64) (Histogram, error)

	// GetRegistry 获取 Prometheus 注册表
	GetRegistry() *prometheus.Registry

	// Handler 返回 /metrics 与 /healthz 路由
	Handler() http.Handler

	// SetHealthCheck 设置健康检查函数
	SetHealthCheck(check HealthCheck)

	// IsRunning 检查服务是否运行
	IsRunning() bool
}

// HealthCheck 返回nil表示健康
type HealthCheck func() error

// Gauge 仪表盘接口
type Gauge interface {
	Set(value float64, labels ...string)
	Inc(labels ...string)
	Dec(labels ...string)
}

// Counter 计数器接口
type Counter interface {
	Inc(labels ...string)
	Add(value float64, labels ...string)
}

// Histogram 直方图接口
type Histogram interface {
	Observe(value float64, labels ...string)
}

// metricsImpl Metrics接口的实现
type metricsImpl struct {
	config   MetricsConfig
	registry *prometheus.Registry
	server   *http.Server
	running  bool
	health   HealthCheck
	logger   *logrus.Entry
	mu       sync.RWMutex

	// 已注册的指标名，跨类型唯一
	names map[string]struct{}
}

// NewMetrics 创建新的监控实例
func NewMetrics(config MetricsConfig) (Metrics, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &metricsImpl{
		config:   config,
		registry: prometheus.NewRegistry(),
		logger:   logrus.WithField("component", "metrics"),
		names:    make(map[string]struct{}),
	}, nil
}

// Start 启动监控服务
func (m *metricsImpl) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.config.Enabled {
		// 禁用时不启动服务，指标仍然可以注册和更新
		return nil
	}

	if m.running {
		return ErrServerAlreadyRunning
	}

	m.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", m.config.Host, m.config.Port),
		Handler:      m.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	server := m.server
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorf("Metrics server error: %v", err)
		}
	}()

	m.running = true
	m.logger.Infof("Metrics server listening on %s%s", m.server.Addr, m.config.Path)
	return nil
}

// Stop 停止监控服务
func (m *metricsImpl) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrServerNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.server.Shutdown(ctx); err != nil {
		return err
	}

	m.running = false
	return nil
}

// Handler 返回 /metrics 与 /healthz 路由
func (m *metricsImpl) Handler() http.Handler {
	return m.router()
}

func (m *metricsImpl) router() *mux.Router {
	router := mux.NewRouter()
	router.Handle(m.config.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", m.handleHealth).Methods(http.MethodGet)
	return router
}

// handleHealth 处理健康检查请求
// GET /healthz
func (m *metricsImpl) handleHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	check := m.health
	m.mu.RUnlock()

	if check != nil {
		if err := check(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// SetHealthCheck 设置健康检查函数
func (m *metricsImpl) SetHealthCheck(check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = check
}

// register 以 name 唯一注册一个 collector
func (m *metricsImpl) register(name string, collector prometheus.Collector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.names[name]; exists {
		return ErrMetricAlreadyRegistered
	}
	if err := m.registry.Register(collector); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	m.names[name] = struct{}{}
	return nil
}

// RegisterGauge 注册仪表盘指标
func (m *metricsImpl) RegisterGauge(name, help string, labels []string) (Gauge, error) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	if err := m.register(name, gauge); err != nil {
		return nil, err
	}
	return &gaugeImpl{gauge: gauge}, nil
}

// RegisterCounter 注册计数器指标
func (m *metricsImpl) RegisterCounter(name, help string, labels []string) (Counter, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	if err := m.register(name, counter); err != nil {
		return nil, err
	}
	return &counterImpl{counter: counter}, nil
}

// RegisterHistogram 注册直方图指标，buckets 为空时使用默认分桶
func (m *metricsImpl) RegisterHistogram(name, help string, labels []string, buckets []float64) (Histogram, error) {
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	if err := m.register(name, histogram); err != nil {
		return nil, err
	}
	return &histogramImpl{histogram: histogram}, nil
}

// GetRegistry 获取 Prometheus 注册表
func (m *metricsImpl) GetRegistry() *prometheus.Registry {
	return m.registry
}

// IsRunning 检查服务是否运行
func (m *metricsImpl) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

type gaugeImpl struct {
	gauge *prometheus.GaugeVec
}

func (g *gaugeImpl) Set(value float64, labels ...string) {
	g.gauge.WithLabelValues(labels...).Set(value)
}

func (g *gaugeImpl) Inc(labels ...string) {
	g.gauge.WithLabelValues(labels...).Inc()
}

func (g *gaugeImpl) Dec(labels ...string) {
	g.gauge.WithLabelValues(labels...).Dec()
}

type counterImpl struct {
	counter *prometheus.CounterVec
}

func (c *counterImpl) Inc(labels ...string) {
	c.counter.WithLabelValues(labels...).Inc()
}

func (c *counterImpl) Add(value float64, labels ...string) {
	c.counter.WithLabelValues(labels...).Add(value)
}

type histogramImpl struct {
	histogram *prometheus.HistogramVec
}

func (h *histogramImpl) Observe(value float64, labels ...string) {
	h.histogram.WithLabelValues(labels...).Observe(value)
}
