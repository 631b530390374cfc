package cmd

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/smartbin/internal/archive"
	"github.com/example/smartbin/internal/auth"
	"github.com/example/smartbin/internal/camera"
	"github.com/example/smartbin/internal/config"
	"github.com/example/smartbin/internal/connectivity"
	"github.com/example/smartbin/internal/handlers"
	"github.com/example/smartbin/internal/hardware"
	"github.com/example/smartbin/internal/httpserver"
	"github.com/example/smartbin/internal/usecase"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sensor, classify and sort loop",
		Long: `Run configures the GPIO pins, warms up the camera, loads the fallback model
and then polls the proximity sensor until interrupted. When STATUS_ADDR and
DATABASE_DSN are set, a status API is served alongside the loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			board, err := openBoard(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := board.Close(); err != nil {
					logger.Error("hardware cleanup failed", zap.Error(err))
				}
			}()

			cam, err := camera.NewStillCamera(cfg.Camera.Command, camera.Resolution{
				Width:  cfg.Camera.Width,
				Height: cfg.Camera.Height,
			}, logger)
			if err != nil {
				return err
			}
			if !warmUp(ctx, board, cfg.Camera.Warmup, logger) {
				return nil
			}

			local, err := loadLocalModel(cfg, logger)
			if err != nil {
				return err
			}
			remote, closeRemote, err := newRemoteClassifier(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeRemote()

			history, closeHistory, err := openHistory(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeHistory()

			probe := connectivity.NewProbe(cfg.Connectivity.URL, cfg.Connectivity.Timeout, logger)
			policy := archive.NewPolicy(cfg.ArchiveRoot(), probe, logger)

			var recorder usecase.CycleRecorder
			if history != nil {
				recorder = history
			}

			statusDone := startStatusServer(ctx, cfg, history, logger)

			pipeline := usecase.NewPipeline(board, cam, remote, local, policy, recorder, usecase.PipelineOptions{
				CaptureDir:   filepath.Join(cfg.Storage.BaseDir, cfg.Storage.CaptureDir),
				ISO:          cfg.Camera.ISO,
				LEDPulse:     cfg.Pipeline.LEDPulse,
				SettleDelay:  cfg.Pipeline.SettleDelay,
				PollInterval: cfg.Pipeline.PollInterval,
				UploadScale:  cfg.Pipeline.UploadScale,

				CaptureTimeout: cfg.Camera.Timeout,
				RecordTimeout:  cfg.Pipeline.RecordTimeout,
			}, logger)

			err = pipeline.Run(ctx)
			<-statusDone
			return err
		},
	}
}

// warmUp holds the status LED on while the camera sensor settles. It reports
// false when ctx ended first.
func warmUp(ctx context.Context, board hardware.Indicators, d time.Duration, logger *zap.Logger) bool {
	logger.Info("warming up camera", zap.Duration("duration", d))
	if err := board.SetLED(hardware.StatusLED, true); err != nil {
		logger.Warn("failed to light status LED", zap.Error(err))
	}
	completed := usecase.Wait(ctx, d)
	if err := board.SetLED(hardware.StatusLED, false); err != nil {
		logger.Warn("failed to clear status LED", zap.Error(err))
	}
	return completed
}

// startStatusServer serves the status API until ctx ends. The returned
// channel closes once the server has stopped.
func startStatusServer(ctx context.Context, cfg *config.Config, history *usecase.CycleHistory, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if cfg.Status.Addr == "" {
		close(done)
		return done
	}
	if history == nil {
		logger.Warn("status API needs DATABASE_DSN, not starting", zap.String("addr", cfg.Status.Addr))
		close(done)
		return done
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.RegisterRoutes(router, history, auth.JWTMiddleware(cfg.Status.JWTSecret, cfg.Status.JWTAudience), logger)

	server := &http.Server{
		Addr:              cfg.Status.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		defer close(done)
		logger.Info("status API listening", zap.String("addr", cfg.Status.Addr))
		if err := httpserver.Serve(ctx, server, nil, 5*time.Second, logger); err != nil {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	return done
}
