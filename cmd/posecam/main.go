// posecam - live body-pose overlay on a camera feed
// Captures frames, estimates body keypoints and serves an annotated preview.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/teslashibe/go-posecam/internal/config"
	"github.com/teslashibe/go-posecam/internal/log"
	"github.com/teslashibe/go-posecam/pkg/app"
	"github.com/teslashibe/go-posecam/pkg/pose"
)

func init() {
	// HighGUI windows must be driven from the main thread.
	runtime.LockOSThread()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is main without os.Exit, so deferred cleanup always runs.
func run(args []string) int {
	cfg, opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "posecam: %v\n", err)
		return 2
	}

	if err := log.Init(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "posecam: logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	a, err := app.New(cfg, opts)
	if err != nil {
		log.Error("configuration error", zap.Error(err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	defer a.Shutdown()
	if err := a.Init(ctx); err != nil {
		log.Error("initialization failed", zap.Error(err))
		return 1
	}

	log.Info("posecam running", zap.String("listen", cfg.Web.Listen))
	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", zap.Error(err))
		return 1
	}
	return 0
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags(args []string) (config.Config, app.Options, error) {
	var opts app.Options
	flags := flag.NewFlagSet("posecam", flag.ContinueOnError)

	configPath := flags.String("config", config.Path(""), "YAML config file (overrides POSECAM_CONFIG)")
	listen := flags.String("listen", "", "HTTP listen address")
	source := flags.String("source", "", "Frame source: camera, file, synthetic")
	file := flags.String("file", "", "Video file for the file source")
	preset := flags.String("preset", "", "Camera preset: default, front, landscape, low, 720p, 1080p")
	backend := flags.String("pose", "", "Pose backend: yolo, remote, none")
	model := flags.String("model", "", "YOLOv8-pose ONNX model path")
	poseURL := flags.String("pose-url", "", "Remote pose service URL")
	window := flags.Bool("window", false, "Show a native preview window")
	debug := flags.Bool("debug", false, "Enable debug logging")
	flags.BoolVar(&opts.ExitOnSetupError, "exit-on-setup-error", false, "Exit if the camera cannot be configured at startup")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, opts, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, opts, err
	}

	if *preset != "" {
		if err := applyPreset(&cfg, *preset); err != nil {
			return cfg, opts, err
		}
	}
	if *listen != "" {
		cfg.Web.Listen = *listen
	}
	if *source != "" {
		cfg.Source.Kind = *source
	}
	if *file != "" {
		cfg.Source.Kind = config.SourceFile
		cfg.Source.Path = *file
	}
	if *backend != "" {
		cfg.Pose.Backend = *backend
	}
	if *model != "" {
		cfg.Pose.YOLO.ModelPath = *model
	}
	if *poseURL != "" {
		cfg.Pose.Backend = pose.BackendRemote
		cfg.Pose.Remote.URL = *poseURL
	}
	if *window {
		cfg.Display.Enabled = true
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	return cfg, opts, nil
}
