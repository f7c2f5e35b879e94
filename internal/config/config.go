package config

import (
	"fmt"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"gopkg.in/yaml.v3"

	"github.com/open-beagle/framesink/internal/metrics"
)

// Config framesink配置聚合器
type Config struct {
	// Sink 录制输出配置模块
	Sink *SinkConfig `yaml:"sink" json:"sink"`

	// Pipeline 管道配置模块
	Pipeline *PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Logging 日志配置模块
	Logging *LoggingConfig `yaml:"logging" json:"logging"`

	// Metrics 监控配置模块
	Metrics *metrics.MetricsConfig `yaml:"metrics" json:"metrics"`

	// 生命周期管理配置
	Lifecycle LifecycleConfig `yaml:"lifecycle" json:"lifecycle"`
}

// LifecycleConfig 生命周期管理配置
type LifecycleConfig struct {
	// 优雅关闭超时时间
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 配置文件变化时是否重启会话
	RestartOnChange bool `yaml:"restart_on_change" json:"restart_on_change"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	metricsConfig := metrics.DefaultMetricsConfig()

	cfg := &Config{
		Sink:     DefaultSinkConfig(),
		Pipeline: DefaultPipelineConfig(),
		Logging:  DefaultLoggingConfig(),
		Metrics:  &metricsConfig,
	}

	cfg.Lifecycle.ShutdownTimeout = 10 * time.Second
	cfg.Lifecycle.RestartOnChange = true

	return cfg
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(filename string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	GetLoggerWithPrefix("config").Debugf("Loaded configuration: %v", spew.Sdump(config))
	return config, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Sink != nil {
		if err := c.Sink.Validate(); err != nil {
			return fmt.Errorf("invalid sink config: %w", err)
		}
	}

	if c.Pipeline != nil {
		if err := c.Pipeline.Validate(); err != nil {
			return fmt.Errorf("invalid pipeline config: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return fmt.Errorf("invalid logging config: %w", err)
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("invalid metrics config: %w", err)
		}
	}

	if c.Lifecycle.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid lifecycle config: shutdown timeout must be positive, got: %v",
			c.Lifecycle.ShutdownTimeout)
	}

	return nil
}

// Merge 合并其他配置
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}

	if other.Sink != nil {
		if c.Sink == nil {
			c.Sink = DefaultSinkConfig()
		}
		c.Sink.Merge(other.Sink)
	}

	if other.Pipeline != nil {
		if c.Pipeline == nil {
			c.Pipeline = DefaultPipelineConfig()
		}
		c.Pipeline.Merge(other.Pipeline)
	}

	if other.Logging != nil {
		if c.Logging == nil {
			c.Logging = DefaultLoggingConfig()
		}
		if err := c.Logging.Merge(other.Logging); err != nil {
			return fmt.Errorf("failed to merge logging config: %w", err)
		}
	}

	if other.Metrics != nil {
		merged := *other.Metrics
		c.Metrics = &merged
	}

	if other.Lifecycle.ShutdownTimeout != 0 {
		c.Lifecycle.ShutdownTimeout = other.Lifecycle.ShutdownTimeout
	}
	c.Lifecycle.RestartOnChange = other.Lifecycle.RestartOnChange

	return c.Validate()
}

// String 返回配置的字符串表示
func (c *Config) String() string {
	sinkInfo := "disabled"
	if c.Sink != nil {
		sinkInfo = c.Sink.String()
	}

	pipelineInfo := "disabled"
	if c.Pipeline != nil {
		pipelineInfo = c.Pipeline.SinkName
	}

	metricsInfo := "disabled"
	if c.Metrics != nil && c.Metrics.Enabled {
		metricsInfo = fmt.Sprintf("%s:%d%s", c.Metrics.Host, c.Metrics.Port, c.Metrics.Path)
	}

	return fmt.Sprintf("Config{Sink: %s, Pipeline: %s, Metrics: %s}", sinkInfo, pipelineInfo, metricsInfo)
}

// GetSinkConfig 获取Sink配置
func (c *Config) GetSinkConfig() *SinkConfig {
	if c.Sink == nil {
		c.Sink = DefaultSinkConfig()
	}
	return c.Sink
}

// GetPipelineConfig 获取Pipeline配置
func (c *Config) GetPipelineConfig() *PipelineConfig {
	if c.Pipeline == nil {
		c.Pipeline = DefaultPipelineConfig()
	}
	return c.Pipeline
}

// GetMetricsConfig 获取Metrics配置
func (c *Config) GetMetricsConfig() metrics.MetricsConfig {
	if c.Metrics == nil {
		return metrics.DefaultMetricsConfig()
	}
	return *c.Metrics
}

// SaveToFile 保存配置到文件
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
