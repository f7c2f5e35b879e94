package config

import (
	"fmt"
	"strings"
)

const (
	// DefaultNetworkAddress 网络地址哨兵值，等于该值时不会选择网络输出
	DefaultNetworkAddress = "127.0.0.1:9876"

	// DefaultRecordingID 未配置录制ID时使用的标签
	DefaultRecordingID = "framesink"

	// DefaultAppSinkName 管道中appsink元素的默认名称
	DefaultAppSinkName = "framesink"
)

// SinkConfig 录制输出配置
type SinkConfig struct {
	// RecordingID 录制标识
	RecordingID string `yaml:"recording_id" json:"recording_id"`

	// ImagePath 原始帧的实体路径，为空时不转发原始帧
	ImagePath string `yaml:"image_path" json:"image_path"`

	// VideoPath 编码流的实体路径，为空时不转发编码样本
	VideoPath string `yaml:"video_path" json:"video_path"`

	// SpawnViewer 是否启动本地查看器（设置输出文件或网络地址时忽略）
	SpawnViewer bool `yaml:"spawn_viewer" json:"spawn_viewer"`

	// OutputFile 录制文件路径
	OutputFile string `yaml:"output_file" json:"output_file"`

	// NetworkAddress 网络地址，非默认值时通过网络发送
	NetworkAddress string `yaml:"network_address" json:"network_address"`

	// ViewerCommand 查看器命令，录制流写入其标准输入
	ViewerCommand []string `yaml:"viewer_command" json:"viewer_command"`

	// DeviceAllocators 设备内存分配器名称
	DeviceAllocators []string `yaml:"device_allocators" json:"device_allocators"`
}

// DefaultSinkConfig 返回默认Sink配置
func DefaultSinkConfig() *SinkConfig {
	return &SinkConfig{
		RecordingID:    DefaultRecordingID,
		SpawnViewer:    true,
		NetworkAddress: DefaultNetworkAddress,
		ViewerCommand:  []string{"framesink", "inspect", "-"},
	}
}

// Validate 验证Sink配置，输出目标冲突在会话启动时检查
func (c *SinkConfig) Validate() error {
	if strings.TrimSpace(c.RecordingID) == "" {
		c.RecordingID = DefaultRecordingID
	}

	if c.NetworkAddress == "" {
		c.NetworkAddress = DefaultNetworkAddress
	}

	if c.ImagePath != "" && c.ImagePath == c.VideoPath {
		return fmt.Errorf("image path and video path must differ, both are %q", c.ImagePath)
	}

	for _, name := range c.DeviceAllocators {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("device allocator names must not be empty")
		}
	}

	return nil
}

// Merge 合并Sink配置
func (c *SinkConfig) Merge(other *SinkConfig) {
	if other == nil {
		return
	}

	if other.RecordingID != "" {
		c.RecordingID = other.RecordingID
	}
	if other.ImagePath != "" {
		c.ImagePath = other.ImagePath
	}
	if other.VideoPath != "" {
		c.VideoPath = other.VideoPath
	}
	if other.OutputFile != "" {
		c.OutputFile = other.OutputFile
	}
	if other.NetworkAddress != "" {
		c.NetworkAddress = other.NetworkAddress
	}
	if len(other.ViewerCommand) > 0 {
		c.ViewerCommand = other.ViewerCommand
	}
	if len(other.DeviceAllocators) > 0 {
		c.DeviceAllocators = other.DeviceAllocators
	}
	c.SpawnViewer = other.SpawnViewer
}

// String 返回Sink配置的字符串表示
func (c *SinkConfig) String() string {
	return fmt.Sprintf("%s(image=%q video=%q file=%q network=%q spawn=%t)",
		c.RecordingID, c.ImagePath, c.VideoPath, c.OutputFile, c.NetworkAddress, c.SpawnViewer)
}

// PipelineConfig 管道配置
type PipelineConfig struct {
	// Description gst-launch格式的管道描述，最后一个元素必须是appsink
	Description string `yaml:"description" json:"description"`

	// SinkName appsink元素名称
	SinkName string `yaml:"sink_name" json:"sink_name"`

	// Device 是否接受NVMM设备内存
	Device bool `yaml:"device" json:"device"`
}

// DefaultPipelineConfig 返回默认管道配置
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Description: "videotestsrc num-buffers=300 ! video/x-raw,format=RGB,width=640,height=480 ! " +
			"appsink name=" + DefaultAppSinkName,
		SinkName: DefaultAppSinkName,
	}
}

// Validate 验证管道配置
func (c *PipelineConfig) Validate() error {
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("pipeline description is required")
	}
	if c.SinkName == "" {
		c.SinkName = DefaultAppSinkName
	}
	if !strings.Contains(c.Description, "name="+c.SinkName) {
		return fmt.Errorf("pipeline description has no element named %q", c.SinkName)
	}
	return nil
}

// Merge 合并管道配置
func (c *PipelineConfig) Merge(other *PipelineConfig) {
	if other == nil {
		return
	}
	if other.Description != "" {
		c.Description = other.Description
	}
	if other.SinkName != "" {
		c.SinkName = other.SinkName
	}
	c.Device = other.Device
}
