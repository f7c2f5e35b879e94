package metrics

import "strings"

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
	Host    string `yaml:"host" json:"host"`
}

// DefaultMetricsConfig 返回默认监控配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: false,
		Port:    9464,
		Path:    "/metrics",
		Host:    "127.0.0.1",
	}
}

// Validate 验证配置
func (c *MetricsConfig) Validate() error {
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}

	// 禁用时指标仍在进程内采集，只跳过端口检查
	if !c.Enabled {
		return nil
	}

	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if !strings.HasPrefix(c.Path, "/") || c.Path == "/healthz" {
		return ErrInvalidPath
	}
	return nil
}
