package session

import (
	"fmt"

	"github.com/open-beagle/framesink/internal/config"
	"github.com/open-beagle/framesink/internal/media"
	"github.com/open-beagle/framesink/internal/recording"
)

// SelectTarget picks the output of a session from the sink configuration.
// An output file and a non-default network address together are a ConfigurationConflict;
// with neither, the viewer is spawned if enabled, otherwise records are discarded.
func SelectTarget(cfg *config.SinkConfig) (recording.Target, error) {
	if cfg == nil {
		cfg = config.DefaultSinkConfig()
	}

	address := cfg.NetworkAddress
	if address == "" {
		address = config.DefaultNetworkAddress
	}
	network := address != config.DefaultNetworkAddress

	switch {
	case cfg.OutputFile != "" && network:
		return recording.Target{}, media.NewError(media.KindConfigurationConflict, "lifecycle", "select-target",
			fmt.Sprintf("output file %q and network address %q are mutually exclusive", cfg.OutputFile, address), nil)
	case cfg.OutputFile != "":
		return recording.Target{Mode: recording.OutputDisk, Path: cfg.OutputFile}, nil
	case network:
		return recording.Target{Mode: recording.OutputNetwork, Address: address}, nil
	case cfg.SpawnViewer:
		command := cfg.ViewerCommand
		if len(command) == 0 {
			command = config.DefaultSinkConfig().ViewerCommand
		}
		return recording.Target{Mode: recording.OutputSpawnViewer, Command: command}, nil
	default:
		return recording.Target{Mode: recording.OutputNone}, nil
	}
}
