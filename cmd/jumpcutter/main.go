// Package main provides the jumpcutter command: retime a video by playing
// its silent and sounded parts at different speeds, or serve the same
// pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/maauso/jumpcutter/internal/apperr"
	"github.com/maauso/jumpcutter/internal/bootstrap"
	"github.com/maauso/jumpcutter/internal/cli"
	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/job"
	"github.com/maauso/jumpcutter/internal/server"
	"github.com/maauso/jumpcutter/internal/speed"
)

var (
	version = "0.1.0"
)

// CLI defines the command-line interface
type CLI struct {
	Config kong.ConfigFlag `short:"c" type:"path" help:"YAML file with flag defaults (optional)"`

	Retime  RetimeCmd  `cmd:"" default:"withargs" help:"Retime a video file"`
	Serve   ServeCmd   `cmd:"" help:"Run the HTTP job API"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// RetimeCmd retimes a single file.
type RetimeCmd struct {
	Input  string `arg:"" name:"input" type:"existingfile" help:"Video file to retime"`
	Output string `short:"o" type:"path" help:"Output file (default: <input>_ALTERED<ext>)"`

	SilentThreshold float64     `default:"0.03" help:"Normalized peak a frame must reach to count as sounded (0-1]"`
	SilenceDuration int         `default:"0" help:"Minimum run of silent frames kept as silence"`
	FrameMargin     float64     `default:"1" help:"Frames kept around sounded frames"`
	Speed           speed.Table `default:"5:1" help:"Playback speeds as silent:sounded; 999999 jump-cuts silence"`
	SilentSpeed     *float64    `help:"Override the silent part of --speed"`
	SoundedSpeed    *float64    `help:"Override the sounded part of --speed"`
	SectionSize     int         `default:"300" help:"Segments rendered per engine invocation"`
	Trim            bool        `help:"Drop a silent first and last segment"`
	Simulate        bool        `help:"Report projected durations without rendering"`
	FrameRate       float64     `default:"30" help:"Frame rate used when it cannot be probed"`
	SampleRate      int         `default:"44100" help:"Sample rate used when it cannot be probed"`
	BitRate         int         `default:"160000" help:"Audio bit rate used when it cannot be probed"`
	Concurrency     int         `help:"Sections rendered in parallel (default: MAX_CONCURRENT_SECTIONS)"`
	PushToS3        bool        `name:"push-to-s3" help:"Upload the result to the configured S3 bucket"`
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Port int `help:"Listen port (default: PORT)"`
}

// VersionCmd prints the version.
type VersionCmd struct{}

func main() {
	// .env is optional; the process environment still applies without it
	_ = godotenv.Load()

	var c CLI
	kctx := kong.Parse(&c,
		kong.Name("jumpcutter"),
		kong.Description("Speed up the silent parts of a video"),
		kong.UsageOnError(),
		kong.Configuration(cli.YAMLLoader),
		kong.Help(cli.HelpPrinter),
		kong.Vars{
			"version": version,
		},
	)

	if err := kctx.Run(); err != nil {
		cli.PrintError(err)
		os.Exit(1)
	}
}

// Run implements the retime command.
func (r *RetimeCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout is reserved for the summary
	logger := cfg.NewLoggerTo(os.Stderr)
	slog.SetDefault(logger)

	opts := r.options()
	if err := opts.Validate(); err != nil {
		return err
	}

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	if r.Concurrency > 0 {
		deps.Service.SetMaxConcurrentSections(r.Concurrency)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := deps.Service.Retime(ctx, job.RetimeInput{
		InputPath:  r.Input,
		OutputPath: r.Output,
		Options:    opts,
		PushToS3:   r.PushToS3,
	})
	if err != nil {
		return err
	}

	if opts.Simulate {
		return result.Summary.Write(os.Stdout)
	}
	fmt.Println(cli.RenderSummary(*result.Summary))
	cli.PrintResult(os.Stdout, result.OutputPath, result.OutputURL)
	return nil
}

func (r *RetimeCmd) options() config.Options {
	// an explicit override wins even when it is invalid, so Validate sees it
	sp := r.Speed
	if r.SilentSpeed != nil {
		sp.Silent = *r.SilentSpeed
	}
	if r.SoundedSpeed != nil {
		sp.Sounded = *r.SoundedSpeed
	}
	return config.Options{
		SilentThreshold:   r.SilentThreshold,
		SilenceDuration:   r.SilenceDuration,
		FrameMargin:       r.FrameMargin,
		Speed:             sp,
		SectionSize:       r.SectionSize,
		Trim:              r.Trim,
		Simulate:          r.Simulate,
		DefaultFrameRate:  r.FrameRate,
		DefaultSampleRate: r.SampleRate,
		DefaultBitRate:    r.BitRate,
	}
}

// Run implements the serve command.
func (s *ServeCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s.Port > 0 {
		cfg.Port = s.Port
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting jumpcutter API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Int("max_concurrent_sections", cfg.MaxConcurrentSections),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	root, err := server.NewMediaRoot(cfg.MediaRoot)
	if err != nil {
		return fmt.Errorf("%w: MEDIA_ROOT: %w", apperr.ErrConfig, err)
	}
	logger.Info("serving media",
		slog.String("media_root", root.Dir()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	handlers := server.NewHandlers(deps.Service, logger, server.WithMediaRoot(root))
	routerCfg := server.DefaultConfig()
	routerCfg.Metrics = deps.Metrics.Handler()
	routerCfg.Recorder = deps.Metrics
	router := server.NewRouter(handlers, logger, routerCfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// Run implements the version command.
func (VersionCmd) Run() error {
	cli.PrintVersion(version)
	return nil
}
