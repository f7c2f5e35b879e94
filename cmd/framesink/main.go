package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/framesink/internal/config"
)

const (
	AppName    = "framesink"
	AppVersion = "1.0.0"
)

const (
	defaultOutputFile = "example.fsr"
	defaultRemote     = "127.0.0.1:9090"
	defaultImagePath  = "camera/test_pattern"
)

// options holds the command line overrides
type options struct {
	configFile  string
	pipeline    string
	output      string
	address     string
	recordingID string
	imagePath   string
	videoPath   string
	device      bool
	logLevel    string
	logOutput   string
	logFile     string
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s [flags] [mode]\n", AppName)
		fmt.Fprintf(out, "       %s inspect [-v] <file|->\n", AppName)
		fmt.Fprintln(out, "\nModes:")
		fmt.Fprintln(out, "  spawn    - Spawn the local viewer (default)")
		fmt.Fprintf(out, "  disk     - Save the recording to disk (-output, default %s)\n", defaultOutputFile)
		fmt.Fprintf(out, "  network  - Send records to a remote viewer (-address, default %s)\n", defaultRemote)
		fmt.Fprintln(out, "\nFlags:")
		fs.PrintDefaults()
	}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "inspect" {
		if err := runInspect(os.Args[2:], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fs := flag.NewFlagSet(AppName, flag.ExitOnError)
	var opts options
	fs.StringVar(&opts.configFile, "config", "", "Configuration file path")
	fs.StringVar(&opts.pipeline, "pipeline", "", "Pipeline description ending in an appsink")
	fs.StringVar(&opts.output, "output", defaultOutputFile, "Recording file (disk mode)")
	fs.StringVar(&opts.address, "address", defaultRemote, "Viewer address (network mode)")
	fs.StringVar(&opts.recordingID, "recording-id", "", "Recording identifier")
	fs.StringVar(&opts.imagePath, "image-path", "", "Entity path for raw frames")
	fs.StringVar(&opts.videoPath, "video-path", "", "Entity path for encoded samples")
	fs.BoolVar(&opts.device, "device", false, "Accept NVMM device memory")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&opts.logOutput, "log-output", "", "Log output (stdout, stderr, file)")
	fs.StringVar(&opts.logFile, "log-file", "", "Log file path (when log-output is file)")
	version := fs.Bool("version", false, "Show version information")
	fs.Usage = usage(fs)
	_ = fs.Parse(os.Args[1:])

	if *version {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		return
	}

	// Without a mode the configuration file decides the output
	mode := ""
	if fs.NArg() > 0 {
		mode = fs.Arg(0)
	} else if opts.configFile == "" {
		mode = "spawn"
	}

	cfg, err := loadConfig(opts, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	if err := config.SetupLogger(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	logger := config.GetLoggerWithPrefix("main")

	app, err := NewApp(cfg, opts.configFile)
	if err != nil {
		logger.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	result := make(chan error, 1)
	go func() {
		result <- app.Run(ctx)
	}()

	logger.WithFields(logrus.Fields{
		"mode":    mode,
		"version": AppVersion,
	}).Infof("%s started, press Ctrl+C to stop", AppName)

	select {
	case err := <-result:
		finish(logger, err, cfg)
		return
	case sig := <-sigChan:
		logger.Infof("Received signal %v, shutting down", sig)
		cancel()
	}

	select {
	case err := <-result:
		finish(logger, err, cfg)
	case <-time.After(cfg.Lifecycle.ShutdownTimeout):
		logger.Errorf("Shutdown did not finish within %v", cfg.Lifecycle.ShutdownTimeout)
		os.Exit(1)
	}
}

func finish(logger *logrus.Entry, err error, cfg *config.Config) {
	if err != nil {
		logger.Errorf("Application stopped with error: %v", err)
		os.Exit(1)
	}
	if cfg.Sink.OutputFile != "" {
		logger.Infof("Recording saved to: %s", cfg.Sink.OutputFile)
		logger.Infof("View it with: %s inspect %s", AppName, cfg.Sink.OutputFile)
	}
	logger.Info("Application stopped gracefully")
}

// loadConfig reads the configuration file, if any, and applies the mode and flags
func loadConfig(opts options, mode string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		loaded, err := config.LoadConfigFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	if opts.pipeline != "" {
		cfg.Pipeline.Description = opts.pipeline
	}
	if opts.device {
		cfg.Pipeline.Device = true
	}
	if opts.recordingID != "" {
		cfg.Sink.RecordingID = opts.recordingID
	}
	if opts.imagePath != "" {
		cfg.Sink.ImagePath = opts.imagePath
	}
	if opts.videoPath != "" {
		cfg.Sink.VideoPath = opts.videoPath
	}
	if err := applyMode(cfg.Sink, mode, opts); err != nil {
		return nil, err
	}

	cfg.Logging.ApplyEnv()
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logOutput != "" {
		cfg.Logging.Output = opts.logOutput
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
		if opts.logOutput == "" {
			cfg.Logging.Output = "file"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyMode selects exactly one output for the mode, an empty mode changes nothing
func applyMode(sink *config.SinkConfig, mode string, opts options) error {
	switch mode {
	case "":
		return nil
	case "spawn":
		sink.SpawnViewer = true
		sink.OutputFile = ""
		sink.NetworkAddress = config.DefaultNetworkAddress
	case "disk":
		sink.OutputFile = opts.output
		sink.NetworkAddress = config.DefaultNetworkAddress
	case "network":
		if opts.address == "" || opts.address == config.DefaultNetworkAddress {
			return fmt.Errorf("network mode needs an address other than %s", config.DefaultNetworkAddress)
		}
		sink.NetworkAddress = opts.address
		sink.OutputFile = ""
	default:
		return fmt.Errorf("invalid mode: %s", mode)
	}

	if sink.RecordingID == "" || sink.RecordingID == config.DefaultRecordingID {
		sink.RecordingID = "example-pipeline-" + mode
	}
	if sink.ImagePath == "" && sink.VideoPath == "" {
		sink.ImagePath = defaultImagePath
	}
	return nil
}
