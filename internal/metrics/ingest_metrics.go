package metrics

import (
	"time"
)

// IngestMetrics 帧采集指标收集器
type IngestMetrics struct {
	metrics Metrics

	// 帧转发指标
	frames  Counter // 转发帧数
	dropped Counter // 未配置实体路径而丢弃的帧数
	errors  Counter // 按错误类型统计的失败帧数
	bytes   Counter // 转发字节数

	// 设备同步延迟
	deviceSync Histogram

	// 会话指标
	sessions      Counter // 按输出模式统计的会话数
	sessionActive Gauge   // 当前是否有活跃会话

	// 编码流指标
	codecAnnouncements Counter
	clockRegressions   Counter
}

// NewIngestMetrics 创建帧采集指标收集器
func NewIngestMetrics(metrics Metrics) (*IngestMetrics, error) {
	im := &IngestMetrics{
		metrics: metrics,
	}

	var err error

	im.frames, err = metrics.RegisterCounter(
		"framesink_frames_total",
		"Total number of frames forwarded to the recording sink",
		[]string{"route"},
	)
	if err != nil {
		return nil, err
	}

	im.dropped, err = metrics.RegisterCounter(
		"framesink_frames_dropped_total",
		"Total number of frames extracted but not forwarded because no entity path is configured",
		[]string{"route"},
	)
	if err != nil {
		return nil, err
	}

	im.errors, err = metrics.RegisterCounter(
		"framesink_frame_errors_total",
		"Total number of frames that failed, by error kind",
		[]string{"route", "kind"},
	)
	if err != nil {
		return nil, err
	}

	im.bytes, err = metrics.RegisterCounter(
		"framesink_bytes_total",
		"Total number of payload bytes forwarded to the recording sink",
		[]string{"route"},
	)
	if err != nil {
		return nil, err
	}

	// 设备同步通常在毫秒以内
	syncBuckets := []float64{0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1}
	im.deviceSync, err = metrics.RegisterHistogram(
		"framesink_device_sync_seconds",
		"Time spent waiting for device surfaces to become visible to the CPU",
		[]string{},
		syncBuckets,
	)
	if err != nil {
		return nil, err
	}

	im.sessions, err = metrics.RegisterCounter(
		"framesink_sessions_total",
		"Total number of recording sessions started, by output mode",
		[]string{"mode"},
	)
	if err != nil {
		return nil, err
	}

	im.sessionActive, err = metrics.RegisterGauge(
		"framesink_session_active",
		"Whether a recording session is currently active",
		[]string{},
	)
	if err != nil {
		return nil, err
	}

	im.codecAnnouncements, err = metrics.RegisterCounter(
		"framesink_codec_announcements_total",
		"Total number of codec descriptors emitted",
		[]string{"codec"},
	)
	if err != nil {
		return nil, err
	}

	im.clockRegressions, err = metrics.RegisterCounter(
		"framesink_clock_regressions_total",
		"Total number of decode timestamps that went backwards and were clamped",
		[]string{"entity_path"},
	)
	if err != nil {
		return nil, err
	}

	return im, nil
}

// FrameForwarded 记录一帧转发
func (im *IngestMetrics) FrameForwarded(route string, bytes int) {
	im.frames.Inc(route)
	im.bytes.Add(float64(bytes), route)
}

// FrameDropped 记录一帧丢弃
func (im *IngestMetrics) FrameDropped(route string) {
	im.dropped.Inc(route)
}

// FrameFailed 记录一帧失败
func (im *IngestMetrics) FrameFailed(route string, kind string) {
	im.errors.Inc(route, kind)
}

// DeviceSynced 记录设备同步耗时
func (im *IngestMetrics) DeviceSynced(d time.Duration) {
	im.deviceSync.Observe(d.Seconds())
}

// CodecAnnounced 记录编解码器声明
func (im *IngestMetrics) CodecAnnounced(codec string) {
	im.codecAnnouncements.Inc(codec)
}

// ClockRegressed 记录时间戳回退
func (im *IngestMetrics) ClockRegressed(entityPath string) {
	im.clockRegressions.Inc(entityPath)
}

// SessionStarted 记录会话启动
func (im *IngestMetrics) SessionStarted(mode string) {
	im.sessions.Inc(mode)
	im.sessionActive.Set(1)
}

// SessionStopped 记录会话结束
func (im *IngestMetrics) SessionStopped() {
	im.sessionActive.Set(0)
}
